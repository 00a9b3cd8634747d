package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	GoogleIssuer = "https://accounts.google.com"

	DefaultRedirectURL = "http://127.0.0.1:8085/callback"

	defaultSignInTimeout = 5 * time.Minute
)

// GoogleProvider signs in with an OpenID Connect authorization-code flow
// protected by PKCE. The redirect lands on a loopback listener started for
// the duration of one PromptSignIn.
type GoogleProvider struct {
	// Open hands the authorization URL to the user, normally by launching a
	// browser. Defaults to printing it to Out.
	Open func(ctx context.Context, authURL string) error

	Out     io.Writer
	Logger  *slog.Logger
	Timeout time.Duration

	cfg      Config
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

var _ Provider = (*GoogleProvider)(nil)

func (p *GoogleProvider) Initialize(ctx context.Context, cfg Config) error {
	if cfg.ClientID == "" {
		return errors.New("oauth: client id is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to discover %s: %w", cfg.Issuer, err)
	}

	p.cfg = cfg
	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return nil
}

type callbackResult struct {
	idToken string
	err     error
}

func (p *GoogleProvider) PromptSignIn(ctx context.Context) (string, error) {
	if p.oauth == nil {
		return "", ErrNotInitialized
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultSignInTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	redirect, err := url.Parse(p.cfg.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("failed to listen for the sign-in callback: %w", err)
	}
	// Port 0 asks for any free port; the redirect must name the real one.
	redirect.Host = ln.Addr().String()

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		_ = ln.Close()
		return "", err
	}
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		_ = ln.Close()
		return "", err
	}
	pkce := oauth2.GenerateVerifier()

	cfg := *p.oauth
	cfg.RedirectURL = redirect.String()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		token, err := p.handleCallback(r, &cfg, state, nonce, pkce)
		if err != nil {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Signed in. You can close this window.")
		}
		select {
		case results <- callbackResult{idToken: token, err: err}:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(pkce),
		oidc.Nonce(nonce),
		oauth2.AccessTypeOnline,
	)
	if err := p.open(ctx, authURL); err != nil {
		return "", fmt.Errorf("failed to open sign-in page: %w", err)
	}

	select {
	case res := <-results:
		return res.idToken, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *GoogleProvider) handleCallback(r *http.Request, cfg *oauth2.Config, state, nonce, pkce string) (string, error) {
	if e := r.FormValue("error"); e != "" {
		return "", fmt.Errorf("oauth: authorization failed: %s %s", e, r.FormValue("error_description"))
	}
	if r.FormValue("state") != state {
		return "", ErrStateMismatch
	}
	code := r.FormValue("code")
	if code == "" {
		return "", errors.New("oauth: missing authorization code")
	}

	tok, err := cfg.Exchange(r.Context(), code, oauth2.VerifierOption(pkce))
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", ErrNoIDToken
	}

	idToken, err := p.verifier.Verify(r.Context(), raw)
	if err != nil {
		return "", fmt.Errorf("id token verification failed: %w", err)
	}
	if idToken.Nonce != nonce {
		return "", ErrNonceMismatch
	}

	p.logger().Debug("google sign-in completed", "subject", idToken.Subject)
	return raw, nil
}

func (p *GoogleProvider) open(ctx context.Context, authURL string) error {
	if p.Open != nil {
		return p.Open(ctx, authURL)
	}
	out := p.Out
	if out == nil {
		return errors.New("oauth: no way to show the sign-in url")
	}
	_, err := fmt.Fprintf(out, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	return err
}

func (p *GoogleProvider) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *GoogleProvider) RenderButton(w io.Writer) error {
	_, err := io.WriteString(w, "[ G  Sign in with Google ]\n")
	return err
}
