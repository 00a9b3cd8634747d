// Package session orchestrates the login lifecycle. The Controller is the only
// writer of the token store: it installs sessions from login flows, keeps the
// API client's tokens in step with the store, and tears everything down on
// logout or when the client reports the session expired.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/tokenstore"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

const (
	// LoginPath is where an expired or logged out session is sent.
	LoginPath = "/login"

	DefaultProfileTTL = 5 * time.Minute

	// Extra attempts after the first one, transient failures only.
	credentialRetries = 2
	profileRetries    = 3
	logoutRetries     = 1
)

var ErrNotAuthenticated = errors.New("session: not authenticated")

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) { f(ctx, path) }

// CacheResetter drops every cached domain resource.
type CacheResetter interface {
	Reset()
}

// Controller owns the session lifecycle.
type Controller struct {
	client *loyaltysdk.Client
	store  *tokenstore.Store
	log    *slog.Logger

	// Cache is reset on logout and session expiry when set
	Cache CacheResetter

	// Navigator receives redirects to LoginPath when set
	Navigator Navigator

	// ProfileTTL is how long a fetched profile is considered fresh
	ProfileTTL time.Duration

	// BackOff builds the delay policy for retried calls; nil uses
	// loyaltysdk.DefaultBackOff
	BackOff func() backoff.BackOff

	now func() time.Time

	mu               sync.Mutex
	profileFetchedAt time.Time
	teardowns        uint64
	profiles         singleflight.Group

	// sessionMu orders token installs against teardown so a refresh that
	// lands after logout cannot write its pair back.
	sessionMu sync.Mutex

	unsubscribe func()
}

// New wires a controller between client and store. It registers itself as
// the client's SessionListener and mirrors every store change onto the
// client's held tokens.
func New(client *loyaltysdk.Client, store *tokenstore.Store, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		client:     client,
		store:      store,
		log:        log,
		ProfileTTL: DefaultProfileTTL,
		now:        time.Now,
	}
	client.Listener = c
	c.unsubscribe = store.Subscribe(c.syncClient)
	return c
}

// Close detaches the controller from the store.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Session returns the current session state.
func (c *Controller) Session() tokenstore.State {
	return c.store.Snapshot()
}

// syncClient keeps the client's signing tokens equal to the store's.
func (c *Controller) syncClient(st tokenstore.State) {
	if c.client.Tokens() != st.Tokens() {
		c.client.SetTokens(st.Tokens())
	}
}

func (c *Controller) logger(ctx context.Context) *slog.Logger {
	return slogx.FromContext(ctx, c.log)
}

func (c *Controller) retry(ctx context.Context, retries uint64, op func() error) error {
	var b backoff.BackOff
	if c.BackOff != nil {
		b = c.BackOff()
	}
	return loyaltysdk.Retry(ctx, b, retries, op)
}

// ============================================================================
// Restore
// ============================================================================

// Restore rehydrates the persisted session, signs the client with it, and
// refreshes the user profile when an access token was restored.
func (c *Controller) Restore(ctx context.Context) error {
	if err := c.store.Hydrate(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	st := c.store.Snapshot()
	c.client.SetTokens(st.Tokens())

	if st.AccessToken == "" {
		return nil
	}
	if _, err := c.FetchProfile(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) {
		c.logger(ctx).Warn("failed to refresh profile after restore", "err", err)
	}
	return nil
}

// ============================================================================
// Login flows
// ============================================================================

// SendOTP asks the API to email a login code to email.
func (c *Controller) SendOTP(ctx context.Context, email string) (string, error) {
	var resp *loyaltysdk.SendOTPResponse
	err := c.retry(ctx, credentialRetries, func() (err error) {
		resp, err = c.client.SendOTP(ctx, email, loyaltysdk.Silent())
		return err
	})
	if err != nil {
		c.client.Notify(ctx, err)
		return "", err
	}
	return resp.OTPID, nil
}

// VerifyOTP exchanges an emailed code for a session.
func (c *Controller) VerifyOTP(ctx context.Context, email, code string) (tokenstore.State, error) {
	return c.login(ctx, "otp", func() (*loyaltysdk.LoginResponse, error) {
		return c.client.VerifyOTP(ctx, email, code, loyaltysdk.Silent())
	})
}

// LoginWithGoogle exchanges a Google ID token for a session.
func (c *Controller) LoginWithGoogle(ctx context.Context, idToken string) (tokenstore.State, error) {
	return c.loginWithIDToken(ctx, loyaltysdk.LoginMethodGoogle, idToken)
}

// LoginWithPhone exchanges a phone ID token for a session.
func (c *Controller) LoginWithPhone(ctx context.Context, idToken string) (tokenstore.State, error) {
	return c.loginWithIDToken(ctx, loyaltysdk.LoginMethodPhone, idToken)
}

// IDTokenSource produces an ID token from an identity provider.
type IDTokenSource interface {
	PromptSignIn(ctx context.Context) (string, error)
}

// SignIn prompts src for an ID token and exchanges it for a session.
func (c *Controller) SignIn(ctx context.Context, method loyaltysdk.LoginMethod, src IDTokenSource) (tokenstore.State, error) {
	idToken, err := src.PromptSignIn(ctx)
	if err != nil {
		return tokenstore.State{}, fmt.Errorf("%s sign-in failed: %w", method, err)
	}
	return c.loginWithIDToken(ctx, method, idToken)
}

func (c *Controller) loginWithIDToken(ctx context.Context, method loyaltysdk.LoginMethod, idToken string) (tokenstore.State, error) {
	return c.login(ctx, string(method), func() (*loyaltysdk.LoginResponse, error) {
		return c.client.LoginWithIDToken(ctx, method, idToken, loyaltysdk.Silent())
	})
}

// login runs a credential exchange with retries and installs the result.
// A failed exchange leaves the stored session untouched.
func (c *Controller) login(ctx context.Context, method string, exchange func() (*loyaltysdk.LoginResponse, error)) (tokenstore.State, error) {
	var resp *loyaltysdk.LoginResponse
	err := c.retry(ctx, credentialRetries, func() (err error) {
		resp, err = exchange()
		return err
	})
	if err != nil {
		c.client.Notify(ctx, err)
		c.logger(ctx).Info("login failed", "method", method, "err", err)
		return tokenstore.State{}, err
	}

	user := resp.User
	c.sessionMu.Lock()
	if err := c.store.Login(ctx, &user, resp.AccessToken, resp.RefreshToken); err != nil {
		// The session is live in memory even if it could not be persisted.
		c.logger(ctx).Warn("session not persisted", "err", err)
	}
	c.client.SetTokens(resp.Tokens())
	c.sessionMu.Unlock()
	c.markProfileFetched()

	c.logger(ctx).Info("logged in", "method", method, "user_id", user.ID)
	return c.store.Snapshot(), nil
}

// ============================================================================
// Refresh and profile
// ============================================================================

// Refresh exchanges the held refresh token for a new pair. The new pair is
// persisted through TokensRefreshed.
func (c *Controller) Refresh(ctx context.Context) (loyaltysdk.TokenPair, error) {
	return c.client.Refresh(ctx)
}

// FetchProfile returns the current user, fetching it when the cached copy
// is older than ProfileTTL. A 401 is left to the client's refresh path;
// if it still fails and no refresh token is held the session is logged out.
func (c *Controller) FetchProfile(ctx context.Context) (*loyaltysdk.UserProfile, error) {
	st := c.store.Snapshot()
	if st.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	if st.User != nil && c.profileFresh() {
		return st.User, nil
	}

	v, err, _ := c.profiles.Do("profile", func() (any, error) {
		return c.fetchProfile(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*loyaltysdk.UserProfile), nil
}

// ForceFetchProfile ignores the staleness window.
func (c *Controller) ForceFetchProfile(ctx context.Context) (*loyaltysdk.UserProfile, error) {
	c.mu.Lock()
	c.profileFetchedAt = time.Time{}
	c.mu.Unlock()
	return c.FetchProfile(ctx)
}

func (c *Controller) fetchProfile(ctx context.Context) (*loyaltysdk.UserProfile, error) {
	var profile *loyaltysdk.UserProfile
	err := c.retry(ctx, profileRetries, func() (err error) {
		profile, err = c.client.GetProfile(ctx, loyaltysdk.Silent())
		return err
	})
	if err != nil {
		// When the client itself expired the session the store is already empty.
		if loyaltysdk.IsUnauthorized(err) && !c.client.HasRefreshToken() && c.store.Snapshot().AccessToken != "" {
			c.logger(ctx).Info("profile rejected and no refresh token held, logging out")
			if lerr := c.Logout(ctx); lerr != nil {
				c.logger(ctx).Warn("logout after rejected profile failed", "err", lerr)
			}
			return nil, err
		}
		c.client.Notify(ctx, err)
		return nil, err
	}

	if err := c.store.SetUser(ctx, profile); err != nil {
		c.logger(ctx).Warn("profile not persisted", "err", err)
	}
	c.markProfileFetched()
	return profile, nil
}

func (c *Controller) profileFresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.profileFetchedAt.IsZero() && c.now().Sub(c.profileFetchedAt) < c.ProfileTTL
}

func (c *Controller) markProfileFetched() {
	c.mu.Lock()
	c.profileFetchedAt = c.now()
	c.mu.Unlock()
}

// ============================================================================
// Logout and expiry
// ============================================================================

// Logout invalidates the refresh token server-side on a best-effort basis,
// then always clears the local session and cached data and navigates to
// login. The returned error only reports local persistence failures.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	before := c.teardowns
	c.mu.Unlock()

	if c.client.HasRefreshToken() {
		err := c.retry(ctx, logoutRetries, func() error {
			return c.client.Logout(ctx, loyaltysdk.Silent())
		})
		if err != nil {
			c.logger(ctx).Warn("remote logout failed", "err", err)
		}
	}

	c.mu.Lock()
	expired := c.teardowns != before
	c.mu.Unlock()
	if expired {
		// The remote call hit a failed refresh and the session is already gone.
		c.logger(ctx).Info("logged out", "expired", true)
		return nil
	}

	err := c.teardown(ctx)
	c.logger(ctx).Info("logged out")
	return err
}

// TokensRefreshed implements loyaltysdk.SessionListener. A pair the client no
// longer holds belongs to a session that was torn down or replaced meanwhile.
func (c *Controller) TokensRefreshed(ctx context.Context, pair loyaltysdk.TokenPair) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.client.Tokens() != pair {
		c.logger(ctx).Debug("dropping refreshed tokens of a closed session")
		return nil
	}
	return c.store.SetTokens(ctx, pair)
}

// SessionExpired implements loyaltysdk.SessionListener.
func (c *Controller) SessionExpired(ctx context.Context, cause error) {
	c.logger(ctx).Info("session expired", "cause", cause)
	if err := c.teardown(ctx); err != nil {
		c.logger(ctx).Error("failed to clear expired session", "err", err)
	}
}

func (c *Controller) teardown(ctx context.Context) error {
	c.sessionMu.Lock()
	c.client.ClearTokens()
	err := c.store.ClearAuth(ctx)
	c.sessionMu.Unlock()

	c.mu.Lock()
	c.profileFetchedAt = time.Time{}
	c.teardowns++
	c.mu.Unlock()

	if c.Cache != nil {
		c.Cache.Reset()
	}
	if c.Navigator != nil {
		c.Navigator.Navigate(ctx, LoginPath)
	}
	return err
}
