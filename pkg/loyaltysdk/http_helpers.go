package loyaltysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/idx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/google/uuid"
)

// ============================================================================
// Request options
// ============================================================================

type requestOptions struct {
	headers         http.Header
	silent          bool
	unauthenticated bool
	rebuild         func() any
}

// RequestOption customises a single request.
type RequestOption func(*requestOptions)

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.headers.Set(key, value) }
}

// WithIdempotencyKey pins the Idempotency-Key sent with a mutation so that
// retries of the same logical call share it.
func WithIdempotencyKey(key string) RequestOption {
	return WithHeader("Idempotency-Key", key)
}

// Silent suppresses the failure notification for this request.
func Silent() RequestOption {
	return func(o *requestOptions) { o.silent = true }
}

// Unauthenticated sends the request without a bearer token and without
// taking part in the refresh-on-401 protocol.
func Unauthenticated() RequestOption {
	return func(o *requestOptions) { o.unauthenticated = true }
}

// bodyFrom re-encodes the body from build before the post-refresh retry, for
// bodies that carry the held tokens.
func bodyFrom(build func() any) RequestOption {
	return func(o *requestOptions) { o.rebuild = build }
}

// ============================================================================
// Verb helpers
// ============================================================================

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, in, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, in, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends a JSON request and decodes the JSON response into out (which may
// be nil). Failures are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	ro := requestOptions{headers: http.Header{}}
	for _, opt := range opts {
		opt(&ro)
	}
	if method != http.MethodGet && ro.headers.Get("Idempotency-Key") == "" {
		ro.headers.Set("Idempotency-Key", uuid.NewString())
	}

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	err := c.do(ctx, method, path, body, out, &ro)
	if err != nil && !ro.silent {
		c.Notify(ctx, err)
	}
	return err
}

func shouldNotify(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrSessionCleared) {
		return false
	}
	if Classify(err) == KindAuth {
		return false
	}
	var vErr ValidationError
	return !errors.As(err, &vErr)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, ro *requestOptions) error {
	sign := !ro.unauthenticated && path != PathRefresh

	resp, sent, err := c.send(ctx, method, path, body, ro.headers, sign, "")
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && sign {
		unauthorized := readError(resp)

		token, err := c.recoverUnauthorized(ctx, sent, unauthorized)
		if err != nil {
			return err
		}

		if ro.rebuild != nil {
			if body, err = json.Marshal(ro.rebuild()); err != nil {
				return fmt.Errorf("failed to encode request: %w", err)
			}
		}

		// Exactly one retry, signed with the recovered token.
		resp, _, err = c.send(ctx, method, path, body, ro.headers, sign, token)
		if err != nil {
			return err
		}
	}

	return decodeJSON(resp, out)
}

// send performs one HTTP exchange. When sign is set the request carries the
// override token, or else the currently held access token. It returns the
// token actually sent.
func (c *Client) send(
	ctx context.Context,
	method, path string,
	body []byte,
	headers http.Header,
	sign bool,
	override string,
) (*http.Response, string, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, "", transportError(err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	reqID := slogx.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = idx.New().String()
	}
	req.Header.Set("X-Request-ID", reqID)

	token := override
	if sign && token == "" {
		c.mu.Lock()
		token = c.accessToken
		c.mu.Unlock()
	}
	if sign && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.logger(ctx)
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Metrics.observeRequest(method, 0)
		if errors.Is(err, context.Canceled) {
			return nil, token, err
		}
		log.Debug("api request failed", "method", method, "path", path, "req_id", reqID, "err", err)
		return nil, token, transportError(err)
	}

	c.Metrics.observeRequest(method, resp.StatusCode)
	log.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"req_id", reqID,
	)
	return resp, token, nil
}

// decodeJSON decodes a 2xx response into target, or returns an *APIError.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return parseErrorResponse(resp, body)
}

func slogFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	return slogx.FromContext(ctx, fallback)
}
