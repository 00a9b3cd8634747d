package apitest

import (
	"net/http"

	"github.com/aussiebroadwan/loyalty/pkg/httpx"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	authn := httpx.AuthnMiddleware(s)
	admin := httpx.RequireAnyRole("ADMIN")
	secured := func(h http.HandlerFunc, mws ...httpx.Middleware) http.Handler {
		return httpx.Chain(h, append([]httpx.Middleware{authn}, mws...)...)
	}

	// Credential exchanges are public; OTP sending is rate limited by IP.
	mux.Handle("POST /auth/send-otp",
		httpx.Chain(http.HandlerFunc(s.handleSendOTP),
			httpx.RateLimitMiddleware(s.opts.OTPRateLimit, httpx.IPKeyExtractor),
		),
	)
	mux.HandleFunc("POST /auth/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("POST /login/google", s.handleLoginIDToken)
	mux.HandleFunc("POST /login/phone", s.handleLoginIDToken)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.Handle("POST /auth/logout", secured(s.handleLogout))

	mux.Handle("GET /users/profile", secured(s.handleProfile))
	mux.Handle("GET /users", secured(s.handleListCustomers))
	mux.Handle("POST /users", secured(s.handleCreateCustomer))
	mux.Handle("GET /users/code/{code}", secured(s.handleCustomerByCode))
	mux.Handle("GET /users/{id}", secured(s.handleGetCustomer))
	mux.Handle("PUT /users/{id}", secured(s.handleUpdateCustomer))
	mux.Handle("DELETE /users/{id}", secured(s.handleDeleteCustomer, admin))
	// {rest} instead of a literal keeps this from overlapping /users/code/{code}.
	mux.Handle("GET /users/{id}/{rest}", secured(s.handleCustomerSubresource))

	mux.Handle("GET /transactions", secured(s.handleListTransactions))
	mux.Handle("POST /transactions", secured(s.handleCreateTransaction))
	mux.Handle("GET /transactions/{id}", secured(s.handleGetTransaction))
	mux.Handle("PUT /transactions/{id}", secured(s.handleUpdateTransaction))
	mux.Handle("POST /transactions/{id}/cancel", secured(s.handleCancelTransaction))

	mux.Handle("GET /stores", secured(s.handleListStores))
	mux.Handle("POST /stores", secured(s.handleCreateStore, admin))
	mux.Handle("GET /stores/{id}", secured(s.handleGetStore))
	mux.Handle("PUT /stores/{id}", secured(s.handleUpdateStore, admin))
	mux.Handle("DELETE /stores/{id}", secured(s.handleDeleteStore, admin))
	mux.Handle("GET /stores/{id}/customers/lookup", secured(s.handleLookup))

	mux.Handle("GET /settings", secured(s.handleGetSettings))
	mux.Handle("PUT /settings", secured(s.handleUpdateSettings, admin))

	mux.Handle("GET /analytics", secured(s.handleAnalytics))

	return mux
}
