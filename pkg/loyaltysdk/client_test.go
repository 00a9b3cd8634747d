package loyaltysdk_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/apitest"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu        sync.Mutex
	refreshed []loyaltysdk.TokenPair
	expired   []error
}

func (l *recordingListener) TokensRefreshed(_ context.Context, pair loyaltysdk.TokenPair) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshed = append(l.refreshed, pair)
	return nil
}

func (l *recordingListener) SessionExpired(_ context.Context, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expired = append(l.expired, cause)
}

func (l *recordingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refreshed), len(l.expired)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []loyaltysdk.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note loyaltysdk.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) all() []loyaltysdk.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]loyaltysdk.Notification(nil), n.notes...)
}

func newClient(t *testing.T, api *apitest.Server) (*loyaltysdk.Client, *recordingListener, *recordingNotifier) {
	t.Helper()
	c := loyaltysdk.NewClient(api.URL)
	l := &recordingListener{}
	n := &recordingNotifier{}
	c.Listener = l
	c.Notifier = n
	c.Metrics = loyaltysdk.NewMetrics(prometheus.NewRegistry())
	return c, l, n
}

func login(c *loyaltysdk.Client, api *apitest.Server) loyaltysdk.LoginResponse {
	resp := api.Login(apitest.AdminEmail)
	c.SetTokens(resp.Tokens())
	return resp
}

func TestSignedRequestCarriesBearer(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, _, _ := newClient(t, api)
	resp := login(c, api)

	customers, err := c.ListCustomers(t.Context())
	require.NoError(t, err)
	require.Len(t, customers, 3)
	require.Equal(t, []string{"Bearer " + resp.AccessToken}, api.Authorizations(http.MethodGet, "/users"))
}

func TestRefreshOn401IsTransparent(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, listener, notifier := newClient(t, api)
	old := login(c, api)

	api.ExpireAccessTokens()

	customers, err := c.ListCustomers(t.Context())
	require.NoError(t, err)
	require.Len(t, customers, 3)

	require.Equal(t, 1, api.Calls(http.MethodPost, "/auth/refresh"))

	fresh := c.Tokens()
	require.NotEqual(t, old.AccessToken, fresh.AccessToken)
	require.NotEqual(t, old.RefreshToken, fresh.RefreshToken, "refresh token rotated")
	require.Equal(t, []string{
		"Bearer " + old.AccessToken,
		"Bearer " + fresh.AccessToken,
	}, api.Authorizations(http.MethodGet, "/users"))

	// The refresh call itself is never signed
	require.Equal(t, []string{""}, api.Authorizations(http.MethodPost, "/auth/refresh"))

	refreshed, expired := listener.counts()
	require.Equal(t, 1, refreshed)
	require.Zero(t, expired)
	require.Empty(t, notifier.all())
	require.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.Refreshes.WithLabelValues("success")))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, listener, _ := newClient(t, api)
	old := login(c, api)

	api.ExpireAccessTokens()
	api.Delay(http.MethodPost, "/auth/refresh", 200*time.Millisecond)

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.ListCustomers(t.Context())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	require.Equal(t, 1, api.Calls(http.MethodPost, "/auth/refresh"))

	fresh := "Bearer " + c.Tokens().AccessToken
	var oldCalls, newCalls int
	for _, h := range api.Authorizations(http.MethodGet, "/users") {
		switch h {
		case "Bearer " + old.AccessToken:
			oldCalls++
		case fresh:
			newCalls++
		default:
			t.Fatalf("unexpected authorization %q", h)
		}
	}
	require.Equal(t, n, oldCalls, "every request hit 401 once")
	require.Equal(t, n, newCalls, "every request retried exactly once")

	refreshed, _ := listener.counts()
	require.Equal(t, 1, refreshed)
	require.Positive(t, testutil.ToFloat64(c.Metrics.Queued))
}

func TestRefreshFailureRejectsEveryQueuedRequest(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, listener, notifier := newClient(t, api)
	login(c, api)

	api.ExpireAccessTokens()
	api.RevokeRefreshTokens()
	api.Delay(http.MethodPost, "/auth/refresh", 200*time.Millisecond)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.ListStores(t.Context())
		}()
	}
	wg.Wait()

	require.Equal(t, 1, api.Calls(http.MethodPost, "/auth/refresh"))
	for i, err := range errs {
		var apiErr *loyaltysdk.APIError
		require.ErrorAs(t, err, &apiErr, "request %d", i)
		require.Equal(t, "invalid_grant", apiErr.Code)
		require.Equal(t, loyaltysdk.KindAuth, loyaltysdk.Classify(err))
	}

	// No request was retried after the failed refresh
	require.Equal(t, n, api.Calls(http.MethodGet, "/stores"))

	require.Equal(t, loyaltysdk.TokenPair{}, c.Tokens())
	_, expired := listener.counts()
	require.Equal(t, 1, expired)
	require.Empty(t, notifier.all(), "auth failures are not notified")
	require.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.Refreshes.WithLabelValues("failure")))
}

func TestNoRefreshTokenExpiresWithoutRefreshing(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, listener, _ := newClient(t, api)
	resp := api.Login(apitest.AdminEmail)
	c.SetTokens(loyaltysdk.TokenPair{AccessToken: resp.AccessToken})

	api.ExpireAccessTokens()

	_, err := c.ListCustomers(t.Context())
	require.Error(t, err)
	require.True(t, loyaltysdk.IsUnauthorized(err))

	require.Zero(t, api.Calls(http.MethodPost, "/auth/refresh"))
	require.Equal(t, loyaltysdk.TokenPair{}, c.Tokens())
	_, expired := listener.counts()
	require.Equal(t, 1, expired)
}

func TestIdempotencyKeySurvivesRefreshRetry(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, _, _ := newClient(t, api)
	login(c, api)

	api.ExpireAccessTokens()

	tx, err := c.CreateTransaction(t.Context(), loyaltysdk.CreateTransactionRequest{
		CustomerCode: "CX0001",
		Type:         loyaltysdk.TransactionEarn,
		Amount:       10,
		Description:  "Coffee",
	})
	require.NoError(t, err)
	require.Equal(t, 20, tx.Points)

	keys := api.IdempotencyKeys(http.MethodPost, "/transactions")
	require.Len(t, keys, 2)
	require.NotEmpty(t, keys[0])
	require.Equal(t, keys[0], keys[1])
}

func TestExplicitRefresh(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, listener, _ := newClient(t, api)

	_, err := c.Refresh(t.Context())
	require.ErrorIs(t, err, loyaltysdk.ErrNoRefreshToken)

	old := login(c, api)
	pair, err := c.Refresh(t.Context())
	require.NoError(t, err)
	require.NotEqual(t, old.AccessToken, pair.AccessToken)
	require.Equal(t, pair, c.Tokens())

	refreshed, _ := listener.counts()
	require.Equal(t, 1, refreshed)

	// A failed explicit refresh leaves the session alone
	api.RevokeRefreshTokens()
	_, err = c.Refresh(t.Context())
	require.Error(t, err)
	require.Equal(t, pair, c.Tokens())
	_, expired := listener.counts()
	require.Zero(t, expired)
}

func TestClearTokensDuringRefreshDiscardsResult(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, _, _ := newClient(t, api)
	login(c, api)

	api.ExpireAccessTokens()
	api.Delay(http.MethodPost, "/auth/refresh", 200*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := c.ListCustomers(t.Context())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return api.Calls(http.MethodPost, "/auth/refresh") == 1
	}, time.Second, 5*time.Millisecond)
	c.ClearTokens()

	require.ErrorIs(t, <-done, loyaltysdk.ErrSessionCleared)
	require.Equal(t, loyaltysdk.TokenPair{}, c.Tokens())
}

func TestNotificationsByStatus(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, _, notifier := newClient(t, api)
	login(c, api)

	_, err := c.GetCustomer(t.Context(), "missing")
	require.Equal(t, loyaltysdk.KindNotFound, loyaltysdk.Classify(err))

	api.FailNext(http.MethodGet, "/analytics", 1, http.StatusServiceUnavailable)
	_, err = c.GetAnalytics(t.Context())
	require.True(t, loyaltysdk.IsTransient(err))

	_, err = c.GetCustomer(t.Context(), "missing", loyaltysdk.Silent())
	require.Error(t, err)

	notes := notifier.all()
	require.Len(t, notes, 2)
	require.Equal(t, loyaltysdk.KindNotFound, notes[0].Kind)
	require.Equal(t, "Resource not found.", notes[0].Message)
	require.Equal(t, loyaltysdk.KindServer, notes[1].Kind)
	require.Equal(t, http.StatusServiceUnavailable, notes[1].Status)
}

func TestValidationFailsBeforeSending(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, _, notifier := newClient(t, api)
	login(c, api)

	_, err := c.CreateTransaction(t.Context(), loyaltysdk.CreateTransactionRequest{
		CustomerCode: "CX",
		Type:         "gift",
		Amount:       -1,
	})

	var vErr loyaltysdk.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr, "customerCode")
	require.Contains(t, vErr, "type")
	require.Contains(t, vErr, "amount")
	require.Contains(t, vErr, "description")
	require.Zero(t, api.Calls(http.MethodPost, "/transactions"))
	require.Empty(t, notifier.all())
}

func TestTransportErrorsAreClassified(t *testing.T) {
	t.Parallel()

	t.Run("timeout", func(t *testing.T) {
		api := apitest.New(t)
		c, _, _ := newClient(t, api)
		login(c, api)
		c.HTTPClient.Timeout = 50 * time.Millisecond
		api.Delay(http.MethodGet, "/settings", 500*time.Millisecond)

		_, err := c.GetSettings(t.Context())
		require.Equal(t, loyaltysdk.KindTimeout, loyaltysdk.Classify(err))
		require.True(t, loyaltysdk.IsTransient(err))
	})

	t.Run("network", func(t *testing.T) {
		api := apitest.Start()
		url := api.URL
		api.Close()

		c := loyaltysdk.NewClient(url)
		c.Notifier = &recordingNotifier{}
		_, err := c.GetSettings(t.Context())
		require.Equal(t, loyaltysdk.KindNetwork, loyaltysdk.Classify(err))
		require.True(t, loyaltysdk.IsTransient(err))
	})
}

func TestAccessTokenExpiry(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)
	c, _, _ := newClient(t, api)

	_, err := c.AccessTokenExpiry()
	require.Error(t, err)

	c.SetTokens(loyaltysdk.TokenPair{AccessToken: api.SignAccessToken(apitest.AdminEmail, time.Hour)})
	exp, err := c.AccessTokenExpiry()
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)
}

func TestRetryOnlyTransient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	attempts := 0
	err := loyaltysdk.Retry(ctx, &backoff.ZeroBackOff{}, 2, func() error {
		attempts++
		return &loyaltysdk.APIError{Status: http.StatusBadGateway, Message: "bad gateway"}
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)

	attempts = 0
	err = loyaltysdk.Retry(ctx, &backoff.ZeroBackOff{}, 2, func() error {
		attempts++
		return &loyaltysdk.APIError{Status: http.StatusBadRequest, Message: "bad request"}
	})
	require.Equal(t, http.StatusBadRequest, loyaltysdk.StatusOf(err))
	require.Equal(t, 1, attempts)

	attempts = 0
	err = loyaltysdk.Retry(ctx, &backoff.ZeroBackOff{}, 2, func() error {
		attempts++
		if attempts < 2 {
			return &loyaltysdk.APIError{Code: loyaltysdk.CodeNetworkError, Message: "connection refused"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestLogoutNamesRotatedRefreshToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := apitest.New(t)
	c, l, _ := newClient(t, api)
	login(c, api)

	api.ExpireAccessTokens()
	require.NoError(t, c.Logout(ctx))
	require.Equal(t, 1, api.Calls(http.MethodPost, loyaltysdk.PathRefresh))
	require.Equal(t, 2, api.Calls(http.MethodPost, loyaltysdk.PathLogout))

	refreshed, _ := l.counts()
	require.Equal(t, 1, refreshed)

	_, err := c.Refresh(ctx)
	require.True(t, loyaltysdk.IsUnauthorized(err), "the rotated refresh token was revoked")
}
