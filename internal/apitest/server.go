// Package apitest runs an in-process fake of the loyalty REST API for tests.
// It implements every endpoint the SDK binds and exposes knobs to expire
// tokens, inject failures and delays, and inspect what was called.
package apitest

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

const issuer = "loyalty-apitest"

// AdminEmail is seeded with the ADMIN role.
const AdminEmail = "admin@loyalty.test"

// Options tune the fake API.
type Options struct {
	AccessTTL    time.Duration
	OTPRateLimit httpx.RateLimitConfig
	DefaultRole  string
	Logger       *slog.Logger
}

// Server is a running fake API.
type Server struct {
	URL string

	srv    *httptest.Server
	signer *jwtx.HS256
	opts   Options

	mu           sync.Mutex
	profiles     map[string]*loyaltysdk.UserProfile // by email
	otpSecrets   map[string]string                  // email -> totp secret
	refresh      map[string]string                  // refresh fingerprint -> email
	issued       []string                           // access token jtis
	revoked      map[string]bool
	customers    []*loyaltysdk.Customer
	transactions []*loyaltysdk.Transaction
	stores       []*loyaltysdk.Store
	settings     loyaltysdk.LoyaltySettings
	codeSeq      int

	knobMu sync.Mutex
	calls  map[string]int
	auths  map[string][]string
	idem   map[string][]string
	delays map[string]time.Duration
	faults map[string]*fault
}

type fault struct {
	remaining int
	status    int
}

// New starts a fake API and closes it when the test ends.
func New(t testing.TB, opts ...Options) *Server {
	t.Helper()
	s := Start(opts...)
	t.Cleanup(s.Close)
	return s
}

// Start starts a fake API. Callers must Close it.
func Start(opts ...Options) *Server {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.AccessTTL == 0 {
		o.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if o.OTPRateLimit.RequestsPerWindow == 0 {
		o.OTPRateLimit = httpx.RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
	}
	if o.DefaultRole == "" {
		o.DefaultRole = "STAFF"
	}
	if o.Logger == nil {
		o.Logger = slogx.Discard()
	}

	signer, err := jwtx.NewHS256([]byte(strings.Repeat("apitest-secret!", 3)), issuer)
	if err != nil {
		panic(err)
	}

	s := &Server{
		signer:     signer,
		opts:       o,
		profiles:   make(map[string]*loyaltysdk.UserProfile),
		otpSecrets: make(map[string]string),
		refresh:    make(map[string]string),
		revoked:    make(map[string]bool),
		calls:      make(map[string]int),
		auths:      make(map[string][]string),
		idem:       make(map[string][]string),
		delays:     make(map[string]time.Duration),
		faults:     make(map[string]*fault),
	}
	s.seed()

	s.srv = httptest.NewServer(httpx.Chain(s.routes(), s.instrument, slogx.HTTPMiddleware(o.Logger)))
	s.URL = s.srv.URL
	return s
}

func (s *Server) Close() { s.srv.Close() }

// Verify implements httpx.TokenVerifier. Revoked tokens fail like expired ones.
func (s *Server) Verify(token string) (jwtx.Claims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return jwtx.Claims{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[claims.ID] {
		return jwtx.Claims{}, jwtx.ErrExpired
	}
	return claims, nil
}

// instrument counts calls and applies injected delays and failures.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		s.knobMu.Lock()
		s.calls[route]++
		s.auths[route] = append(s.auths[route], r.Header.Get("Authorization"))
		s.idem[route] = append(s.idem[route], r.Header.Get("Idempotency-Key"))
		delay := s.delays[route]
		status := 0
		if f := s.faults[route]; f != nil && f.remaining > 0 {
			f.remaining--
			status = f.status
		}
		s.knobMu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			httpx.WriteError(w, status, "injected", http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Knobs
// ============================================================================

// FailNext makes the next n calls to method+path answer with status.
func (s *Server) FailNext(method, path string, n, status int) {
	s.knobMu.Lock()
	defer s.knobMu.Unlock()
	s.faults[method+" "+path] = &fault{remaining: n, status: status}
}

// Delay holds every call to method+path for d before handling it.
func (s *Server) Delay(method, path string, d time.Duration) {
	s.knobMu.Lock()
	defer s.knobMu.Unlock()
	s.delays[method+" "+path] = d
}

// Calls returns how many requests reached method+path.
func (s *Server) Calls(method, path string) int {
	s.knobMu.Lock()
	defer s.knobMu.Unlock()
	return s.calls[method+" "+path]
}

// Authorizations returns the Authorization header of every call to method+path, in order.
func (s *Server) Authorizations(method, path string) []string {
	s.knobMu.Lock()
	defer s.knobMu.Unlock()
	return append([]string(nil), s.auths[method+" "+path]...)
}

// IdempotencyKeys returns the Idempotency-Key header of every call to method+path.
func (s *Server) IdempotencyKeys(method, path string) []string {
	s.knobMu.Lock()
	defer s.knobMu.Unlock()
	return append([]string(nil), s.idem[method+" "+path]...)
}

// ResetCalls forgets recorded calls.
func (s *Server) ResetCalls() {
	s.knobMu.Lock()
	defer s.knobMu.Unlock()
	s.calls = make(map[string]int)
	s.auths = make(map[string][]string)
	s.idem = make(map[string][]string)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, jti := range s.issued {
		s.revoked[jti] = true
	}
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// Login issues a session for email directly, provisioning the user if needed.
func (s *Server) Login(email string) loyaltysdk.LoginResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.issueLocked(s.profileLocked(email))
	if err != nil {
		panic(err)
	}
	return resp
}

// SignAccessToken mints an access token for email that expires after ttl.
func (s *Server) SignAccessToken(email string, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(email)
	claims := jwtx.NewAccessClaims(p.ID, p.Email, roleNames(p), ttl, issuer, time.Now())
	token, err := s.signer.Sign(claims)
	if err != nil {
		panic(err)
	}
	s.issued = append(s.issued, claims.ID)
	return token
}
