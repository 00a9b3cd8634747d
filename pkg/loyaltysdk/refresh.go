package loyaltysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type refreshResult struct {
	token string
	err   error
}

// recoverUnauthorized decides what a request that got 401 does next. It
// returns the access token to retry with, or the error to fail with.
//
//   - no refresh token held: the session is expired, no refresh is attempted
//   - a refresh is in flight: wait for it and reuse its token
//   - the held token already differs from the one sent: a refresh finished
//     between send and now, retry with the held token
//   - otherwise: become the refresher
func (c *Client) recoverUnauthorized(ctx context.Context, sent string, unauthorized *APIError) (string, error) {
	c.mu.Lock()
	if c.refreshToken == "" {
		c.mu.Unlock()
		c.expire(ctx, unauthorized)
		return "", unauthorized
	}
	if c.refreshing {
		return c.wait(ctx)
	}
	if c.accessToken != "" && c.accessToken != sent {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	pair, err := c.runRefresh(ctx, true)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// Refresh exchanges the held refresh token for a new pair outside the 401
// path. If a refresh is already running the caller joins it. A failed
// explicit refresh is returned to the caller and does not end the session.
func (c *Client) Refresh(ctx context.Context) (TokenPair, error) {
	c.mu.Lock()
	if c.refreshToken == "" {
		c.mu.Unlock()
		return TokenPair{}, ErrNoRefreshToken
	}
	if c.refreshing {
		if _, err := c.wait(ctx); err != nil {
			return TokenPair{}, err
		}
		return c.Tokens(), nil
	}
	return c.runRefresh(ctx, false)
}

// wait queues the caller behind the in-flight refresh. c.mu must be held;
// wait releases it.
func (c *Client) wait(ctx context.Context) (string, error) {
	ch := make(chan refreshResult, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	c.Metrics.observeQueued()
	c.logger(ctx).Debug("request queued behind token refresh")

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runRefresh performs the refresh call as the single refresher. c.mu must be
// held; runRefresh releases it. When expireOnFailure is set a failed refresh
// clears the tokens and reports the session as expired.
func (c *Client) runRefresh(ctx context.Context, expireOnFailure bool) (TokenPair, error) {
	c.refreshing = true
	refreshToken := c.refreshToken
	generation := c.generation
	c.mu.Unlock()

	log := c.logger(ctx)
	log.Info("refreshing access token")

	// The refresh serves every queued request, so it must outlive the caller
	// that happened to start it.
	resp, err := c.exchangeRefresh(context.WithoutCancel(ctx), refreshToken)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false

	if c.generation != generation {
		// Logout or a new login replaced the session while we were refreshing.
		c.mu.Unlock()
		c.Metrics.observeRefresh("discarded")
		release(waiters, refreshResult{err: ErrSessionCleared})
		return TokenPair{}, ErrSessionCleared
	}

	if err != nil {
		if expireOnFailure {
			c.accessToken, c.refreshToken = "", ""
			c.generation++
		}
		c.mu.Unlock()

		c.Metrics.observeRefresh("failure")
		log.Warn("token refresh failed", "err", err, "queued", len(waiters))
		if expireOnFailure {
			c.expire(ctx, err)
		}
		release(waiters, refreshResult{err: err})
		return TokenPair{}, err
	}

	c.accessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		c.refreshToken = resp.RefreshToken
	}
	pair := TokenPair{AccessToken: c.accessToken, RefreshToken: c.refreshToken}
	c.mu.Unlock()

	c.Metrics.observeRefresh("success")
	log.Info("access token refreshed", "queued", len(waiters))

	c.mu.Lock()
	current := c.generation == generation
	c.mu.Unlock()

	if current && c.Listener != nil {
		if err := c.Listener.TokensRefreshed(ctx, pair); err != nil {
			log.Warn("failed to persist refreshed tokens", "err", err)
		}
	}
	release(waiters, refreshResult{token: pair.AccessToken})
	return pair, nil
}

// release resolves waiters in the order they queued.
func release(waiters []chan refreshResult, r refreshResult) {
	for _, ch := range waiters {
		ch <- r
	}
}

// expire forgets the tokens and tells the listener the session is over.
func (c *Client) expire(ctx context.Context, cause error) {
	c.ClearTokens()
	c.logger(ctx).Info("session expired", "cause", cause)
	if c.Listener != nil {
		c.Listener.SessionExpired(ctx, cause)
	}
}

// exchangeRefresh calls the refresh endpoint. It never carries a bearer
// token and never re-enters the 401 path.
func (c *Client) exchangeRefresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body, err := json.Marshal(RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	resp, _, err := c.send(ctx, http.MethodPost, PathRefresh, body, http.Header{}, false, "")
	if err != nil {
		return nil, err
	}

	var out RefreshResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &APIError{
			Message: "refresh response carried no access token",
			Code:    CodeSessionExpired,
			Status:  http.StatusUnauthorized,
		}
	}
	return &out, nil
}
