package loyaltysdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"golang.org/x/time/rate"
)

// SessionListener is told when the client changes tokens on its own.
// The session controller implements it to persist refreshed tokens and to
// wipe the stored session and navigate to login when a refresh fails.
type SessionListener interface {
	TokensRefreshed(ctx context.Context, pair TokenPair) error
	SessionExpired(ctx context.Context, cause error)
}

// Client is a client for the loyalty REST API. It signs requests with the
// held access token and transparently refreshes it when the API answers 401.
//
// Create one per session with NewClient and pass it to the code that needs it.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Logger is used when the request context carries no logger
	Logger *slog.Logger

	// Notifier receives terminal non-auth failures. Defaults to LogNotifier.
	Notifier Notifier

	// Listener is told about refreshed tokens and expired sessions
	Listener SessionListener

	// Limiter throttles outbound requests when non-nil
	Limiter *rate.Limiter

	// Metrics records request and refresh counters when non-nil
	Metrics *Metrics

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	generation   uint64 // bumped whenever tokens are replaced from outside the refresh path
	refreshing   bool
	waiters      []chan refreshResult
}

// NewClient creates a client with a 10 second request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetTokens installs a token pair, typically after login or rehydration.
func (c *Client) SetTokens(pair TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = pair.AccessToken
	c.refreshToken = pair.RefreshToken
	c.generation++
}

// ClearTokens forgets both tokens.
func (c *Client) ClearTokens() {
	c.SetTokens(TokenPair{})
}

// Tokens returns a copy of the held token pair.
func (c *Client) Tokens() TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TokenPair{AccessToken: c.accessToken, RefreshToken: c.refreshToken}
}

// HasRefreshToken reports whether a refresh token is held.
func (c *Client) HasRefreshToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken != ""
}

// AccessTokenExpiry returns the exp claim of the held access token. The
// token is decoded, not verified.
func (c *Client) AccessTokenExpiry() (time.Time, error) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	return jwtx.ExpiresAt(token)
}

func (c *Client) logger(ctx context.Context) *slog.Logger {
	if c.Logger != nil {
		return slogFromContext(ctx, c.Logger)
	}
	return slogFromContext(ctx, slog.Default())
}

// Notify reports err to the Notifier when it is a terminal failure the user
// should see. Callers that send requests with Silent and retry on their own
// use it once the final attempt has failed.
func (c *Client) Notify(ctx context.Context, err error) {
	if err == nil || !shouldNotify(err) {
		return
	}
	n := c.Notifier
	if n == nil {
		n = LogNotifier{Logger: c.logger(ctx)}
	}
	n.Notify(ctx, NotificationFor(err))
}
