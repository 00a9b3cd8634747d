package loyaltysdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// ErrNoRefreshToken is returned by Refresh when the client holds no refresh token.
	ErrNoRefreshToken = errors.New("loyaltysdk: no refresh token available")

	// ErrSessionCleared is returned to requests waiting on a refresh whose
	// session was cleared (logout) before the refresh completed.
	ErrSessionCleared = errors.New("loyaltysdk: session cleared during refresh")
)

// Error codes the client assigns when the server gave none.
const (
	CodeNetworkError   = "network_error"
	CodeTimeout        = "timeout"
	CodeSessionExpired = "session_expired"
)

// ============================================================================
// Kind - error taxonomy
// ============================================================================

// Kind classifies an error for retry and notification decisions.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindInput      Kind = "input"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindRateLimit  Kind = "rate_limit"
	KindServer     Kind = "server"
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindUnknown    Kind = "unknown"
)

// ============================================================================
// APIError - normalized error
// ============================================================================

// APIError is the normalized error returned for every failed request.
// Status is zero when no response was received.
type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Status  int               `json:"status,omitempty"`
	Fields  map[string]string `json:"errors,omitempty"`

	// Err is the underlying transport error, if any
	Err error `json:"-"`
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Kind maps the error onto the taxonomy.
func (e *APIError) Kind() Kind {
	switch s := e.Status; {
	case s == http.StatusUnauthorized:
		return KindAuth
	case s == http.StatusBadRequest, s == http.StatusUnprocessableEntity:
		return KindInput
	case s == http.StatusForbidden:
		return KindPermission
	case s == http.StatusNotFound:
		return KindNotFound
	case s == http.StatusTooManyRequests:
		return KindRateLimit
	case s >= 500:
		return KindServer
	case s == 0 && e.Code == CodeTimeout:
		return KindTimeout
	case s == 0 && e.Code == CodeNetworkError:
		return KindNetwork
	}
	return KindUnknown
}

// Classify returns the Kind of any error produced by this package.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	var vErr ValidationError
	if errors.As(err, &vErr) {
		return KindInput
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts and 5xx responses. 4xx responses never are.
func IsTransient(err error) bool {
	switch Classify(err) {
	case KindNetwork, KindTimeout, KindServer:
		return true
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// transportError wraps a failure to obtain any response.
func transportError(err error) *APIError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &APIError{Message: "request timed out", Code: CodeTimeout, Err: err}
	}
	return &APIError{Message: "network error", Code: CodeNetworkError, Err: err}
}

// parseErrorResponse builds an APIError from a non-2xx response body.
func parseErrorResponse(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	apiErr.Status = resp.StatusCode
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// ============================================================================
// ValidationError
// ============================================================================

// ValidationError maps field names to messages. It is returned before a
// request is sent when its payload fails validation.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
