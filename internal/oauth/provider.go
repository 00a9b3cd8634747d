// Package oauth adapts identity providers to a single capability interface so
// the session controller never depends on a provider's callback shape.
package oauth

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotInitialized = errors.New("oauth: provider not initialized")
	ErrStateMismatch  = errors.New("oauth: state mismatch")
	ErrNonceMismatch  = errors.New("oauth: nonce mismatch")
	ErrNoIDToken      = errors.New("oauth: no id_token in token response")
	ErrEmptyToken     = errors.New("oauth: empty ID token")
)

// Config is what a provider needs to start. Fields a provider does not use
// are ignored.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
	Scopes       []string
}

// Provider is an identity provider that yields an ID token.
type Provider interface {
	// Initialize prepares the provider, typically by fetching discovery
	// metadata.
	Initialize(ctx context.Context, cfg Config) error

	// PromptSignIn runs the provider's interactive sign-in and returns the
	// raw ID token.
	PromptSignIn(ctx context.Context) (string, error)

	// RenderButton draws the provider's sign-in affordance.
	RenderButton(w io.Writer) error
}
