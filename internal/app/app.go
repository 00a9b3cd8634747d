package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aussiebroadwan/loyalty/internal/guard"
	"github.com/aussiebroadwan/loyalty/internal/oauth"
	"github.com/aussiebroadwan/loyalty/internal/query"
	"github.com/aussiebroadwan/loyalty/internal/session"
	"github.com/aussiebroadwan/loyalty/internal/tokenstore"
	"github.com/aussiebroadwan/loyalty/internal/tokenstore/drivers/memory"
	"github.com/aussiebroadwan/loyalty/internal/tokenstore/drivers/sqlite"
	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/time/rate"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	memorySession = ":memory:"
)

// Application wires the session, data and navigation layers together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	registry *prometheus.Registry

	// Core dependencies
	store  *tokenstore.Store
	client *loyaltysdk.Client

	// Services
	session *session.Controller
	cache   *query.Cache
	queries *query.Service
	janitor *query.Janitor
	guard   *guard.Guard

	started bool
}

// New creates an Application. The logger defaults to one built from cfg.
func New(cfg Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "loyaltyctl",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}
	app := &Application{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	app.initClient()
	app.initServices()
	return app, nil
}

// initStore opens the session backend, sealing it when a key is configured.
func (app *Application) initStore() error {
	var backend tokenstore.Backend
	if app.cfg.SessionFile == "" || app.cfg.SessionFile == memorySession {
		backend = memory.New()
	} else {
		db, err := sqlite.Open(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.SessionFile))
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		backend = db
		app.logger.Debug("session store ready", "file", app.cfg.SessionFile)
	}

	if app.cfg.SessionKey != "" {
		sealer, err := cryptox.NewSealer(app.cfg.SessionKey)
		if err != nil {
			_ = backend.Close()
			return fmt.Errorf("failed to initialize session sealing: %w", err)
		}
		backend = tokenstore.Seal(backend, sealer)
	}

	app.store = tokenstore.New(backend, app.logger)
	return nil
}

func (app *Application) initClient() {
	c := loyaltysdk.NewClient(app.cfg.APIURL)
	if app.cfg.RequestTimeout > 0 {
		c.HTTPClient.Timeout = app.cfg.RequestTimeout
	}
	c.Logger = app.logger
	c.Metrics = loyaltysdk.NewMetrics(app.registry)
	if app.cfg.RateLimitRPS > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(app.cfg.RateLimitRPS), max(app.cfg.RateLimitBurst, 1))
	}
	app.client = c
}

func (app *Application) initServices() {
	app.session = session.New(app.client, app.store, app.logger)

	app.cache = query.NewCache(nil, query.NewMetrics(app.registry))
	app.queries = query.NewService(app.client, app.cache, app.logger)
	app.janitor = query.NewJanitor(app.cache, app.logger, app.cfg.CacheJanitorInterval)

	app.guard = guard.New(app.store, guard.DefaultRules(), app.logger)

	app.session.Cache = app.cache
	app.session.Navigator = app.guard
}

// Start restores the persisted session, releases the guard and starts the
// cache janitor.
func (app *Application) Start(ctx context.Context) error {
	if err := app.session.Restore(ctx); err != nil {
		return err
	}
	if _, err := app.guard.Ready(ctx); err != nil {
		return err
	}
	app.janitor.Start()
	app.started = true

	st := app.store.Snapshot()
	app.logger.Debug("application started", "authenticated", st.IsAuthenticated(), "api", app.cfg.APIURL)
	return nil
}

// Shutdown stops background work and closes the session store.
func (app *Application) Shutdown() error {
	if app.started {
		app.janitor.Stop()
		app.started = false
	}
	app.guard.Close()
	app.session.Close()

	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}
	return nil
}

func (app *Application) Config() Config                 { return app.cfg }
func (app *Application) Logger() *slog.Logger           { return app.logger }
func (app *Application) Client() *loyaltysdk.Client     { return app.client }
func (app *Application) Session() *session.Controller   { return app.session }
func (app *Application) Queries() *query.Service        { return app.queries }
func (app *Application) Guard() *guard.Guard            { return app.guard }
func (app *Application) Registry() *prometheus.Registry { return app.registry }

// GoogleProvider returns an initialized Google sign-in adapter.
func (app *Application) GoogleProvider(ctx context.Context, out io.Writer) (*oauth.GoogleProvider, error) {
	if app.cfg.GoogleClientID == "" {
		return nil, errors.New("google sign-in is not configured: set GOOGLE_CLIENT_ID")
	}
	p := &oauth.GoogleProvider{Out: out, Logger: app.logger}
	err := p.Initialize(ctx, oauth.Config{
		ClientID:     app.cfg.GoogleClientID,
		ClientSecret: app.cfg.GoogleClientSecret,
		RedirectURL:  app.cfg.GoogleRedirectURL,
		Issuer:       app.cfg.GoogleIssuer,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PhoneProvider returns an initialized phone sign-in adapter.
func (app *Application) PhoneProvider(ctx context.Context, in io.Reader, out io.Writer) (*oauth.PhoneProvider, error) {
	p := &oauth.PhoneProvider{In: in, Out: out}
	if err := p.Initialize(ctx, oauth.Config{}); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteMetrics writes every collected metric in the Prometheus text format.
func (app *Application) WriteMetrics(w io.Writer) error {
	families, err := app.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
