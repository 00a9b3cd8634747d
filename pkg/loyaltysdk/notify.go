package loyaltysdk

import (
	"context"
	"log/slog"
)

// Notification is a user-facing message describing a failed request.
type Notification struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// Notifier receives notifications for terminal request failures. Session
// expiry is not notified here; it is reported to the SessionListener.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

var messages = map[Kind]string{
	KindAuth:       "Your session has expired. Please sign in again.",
	KindInput:      "Bad request. Please check your input.",
	KindPermission: "Access denied. You do not have permission.",
	KindNotFound:   "Resource not found.",
	KindRateLimit:  "Too many requests. Please try again later.",
	KindServer:     "Server error. Please try again later.",
	KindNetwork:    "Network error. Please check your connection.",
	KindTimeout:    "Request timeout. Please try again.",
	KindUnknown:    "An unexpected error occurred.",
}

// NotificationFor classifies err and picks the matching message.
func NotificationFor(err error) Notification {
	kind := Classify(err)
	return Notification{
		Kind:    kind,
		Status:  StatusOf(err),
		Message: messages[kind],
		Err:     err,
	}
}

// LogNotifier writes notifications to a logger. It is the default Notifier.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note Notification) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.WarnContext(ctx, note.Message,
		"kind", string(note.Kind),
		"status", note.Status,
		"err", note.Err,
	)
}
