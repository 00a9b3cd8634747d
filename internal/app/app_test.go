package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/apitest"
	"github.com/aussiebroadwan/loyalty/internal/guard"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"LOYALTY_API_URL", "LOYALTY_SESSION_FILE", "LOYALTY_REQUEST_TIMEOUT", "LOYALTY_RATE_LIMIT_RPS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "http://localhost:8080", cfg.APIURL)
	require.Equal(t, "loyalty-session.db", cfg.SessionFile)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.Zero(t, cfg.RateLimitRPS)
	require.Equal(t, 10, cfg.RateLimitBurst)
	require.Equal(t, 5*time.Minute, cfg.CacheJanitorInterval)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LOYALTY_API_URL", "https://api.example.test")
	t.Setenv("LOYALTY_REQUEST_TIMEOUT", "3")
	t.Setenv("LOYALTY_CACHE_JANITOR_INTERVAL", "90s")
	t.Setenv("LOYALTY_RATE_LIMIT_RPS", "2.5")
	t.Setenv("LOYALTY_RATE_LIMIT_BURST", "not-a-number")

	cfg := LoadConfig()
	require.Equal(t, "https://api.example.test", cfg.APIURL)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, 90*time.Second, cfg.CacheJanitorInterval)
	require.InDelta(t, 2.5, cfg.RateLimitRPS, 0.001)
	require.Equal(t, 10, cfg.RateLimitBurst, "invalid values fall back to the default")
}

func testConfig(api *apitest.Server, file, key string) Config {
	return Config{
		APIURL:               api.URL,
		SessionFile:          file,
		SessionKey:           key,
		RequestTimeout:       5 * time.Second,
		RateLimitRPS:         100,
		RateLimitBurst:       10,
		CacheJanitorInterval: time.Minute,
	}
}

func startApp(t *testing.T, cfg Config) *Application {
	t.Helper()
	app, err := New(cfg, slogx.Discard())
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	return app
}

func TestApplicationSessionSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := apitest.New(t)
	cfg := testConfig(api, filepath.Join(t.TempDir(), "session.db"), "correct horse battery staple")

	first := startApp(t, cfg)
	require.Equal(t, guard.Redirect, first.Guard().Resolve(ctx, "/dashboard").Decision)
	require.Equal(t, "/login", first.Guard().Path())

	_, err := first.Session().SendOTP(ctx, apitest.AdminEmail)
	require.NoError(t, err)
	_, err = first.Session().VerifyOTP(ctx, apitest.AdminEmail, api.OTPFor(apitest.AdminEmail))
	require.NoError(t, err)
	require.Equal(t, "/dashboard", first.Guard().Path(), "signed in users leave the login page")

	users, err := first.Queries().Users(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, users)
	require.NoError(t, first.Shutdown())

	second := startApp(t, cfg)
	defer func() { require.NoError(t, second.Shutdown()) }()

	st := second.Session().Session()
	require.True(t, st.IsAuthenticated())
	require.Equal(t, apitest.AdminEmail, st.User.Email)
	require.Equal(t, guard.Render, second.Guard().Resolve(ctx, "/settings").Decision)

	require.NoError(t, second.Session().Logout(ctx))
	require.Equal(t, "/login", second.Guard().Path())
}

func TestApplicationWrongSessionKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := apitest.New(t)
	file := filepath.Join(t.TempDir(), "session.db")

	first := startApp(t, testConfig(api, file, "first key"))
	_, err := first.Session().SendOTP(ctx, apitest.AdminEmail)
	require.NoError(t, err)
	_, err = first.Session().VerifyOTP(ctx, apitest.AdminEmail, api.OTPFor(apitest.AdminEmail))
	require.NoError(t, err)
	require.NoError(t, first.Shutdown())

	second := startApp(t, testConfig(api, file, "second key"))
	defer func() { require.NoError(t, second.Shutdown()) }()
	require.False(t, second.Session().Session().IsAuthenticated())
	require.Equal(t, guard.Redirect, second.Guard().Resolve(ctx, "/users").Decision)
}

func TestApplicationMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := apitest.New(t)

	app := startApp(t, testConfig(api, ":memory:", ""))
	defer func() { require.NoError(t, app.Shutdown()) }()

	_, err := app.Session().SendOTP(ctx, "someone@loyalty.test")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, app.WriteMetrics(&buf))
	require.Contains(t, buf.String(), "loyalty_client_requests_total")
}

func TestGoogleProviderRequiresClientID(t *testing.T) {
	t.Parallel()
	api := apitest.New(t)

	app, err := New(testConfig(api, ":memory:", ""), slogx.Discard())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Shutdown()) }()

	_, err = app.GoogleProvider(context.Background(), &bytes.Buffer{})
	require.ErrorContains(t, err, "GOOGLE_CLIENT_ID")
}
