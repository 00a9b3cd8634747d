package oauth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
)

// PhoneProvider accepts an ID token minted by a phone verification service
// and pasted by the user.
type PhoneProvider struct {
	In  io.Reader
	Out io.Writer

	// Now is used to reject tokens that have already expired
	Now func() time.Time

	ready bool
}

var _ Provider = (*PhoneProvider)(nil)

func (p *PhoneProvider) Initialize(context.Context, Config) error {
	if p.In == nil {
		return fmt.Errorf("oauth: phone provider has no input")
	}
	p.ready = true
	return nil
}

func (p *PhoneProvider) PromptSignIn(ctx context.Context) (string, error) {
	if !p.ready {
		return "", ErrNotInitialized
	}
	if p.Out != nil {
		if _, err := io.WriteString(p.Out, "Paste the ID token from your phone verification: "); err != nil {
			return "", err
		}
	}

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			errs <- err
			return
		}
		lines <- line
	}()

	var token string
	select {
	case line := <-lines:
		token = strings.TrimSpace(line)
	case err := <-errs:
		return "", fmt.Errorf("failed to read ID token: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if token == "" {
		return "", ErrEmptyToken
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if jwtx.IsExpired(token, now()) {
		return "", fmt.Errorf("oauth: ID token is malformed or expired: %w", jwtx.ErrExpired)
	}
	return token, nil
}

func (p *PhoneProvider) RenderButton(w io.Writer) error {
	_, err := io.WriteString(w, "[ #  Sign in with phone ]\n")
	return err
}
