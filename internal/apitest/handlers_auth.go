package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/idx"
	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.SendOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.otpSecrets[req.Email]; !ok {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "Loyalty",
			AccountName: req.Email,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			slogx.FromContext(r.Context()).Error("failed to generate TOTP key", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to issue OTP")
			return
		}
		s.otpSecrets[req.Email] = key.Secret()
	}

	httpx.WriteJSON(w, http.StatusOK, loyaltysdk.SendOTPResponse{
		Message: "OTP sent to " + req.Email,
		OTPID:   idx.New().String(),
	})
}

// OTPFor returns the code currently valid for email. send-otp must have been called first.
func (s *Server) OTPFor(email string) string {
	s.mu.Lock()
	secret, ok := s.otpSecrets[email]
	s.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("apitest: no OTP issued for %s", email))
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		panic(err)
	}
	return code
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.otpSecrets[req.Email]
	if !ok || !totp.Validate(req.OTPCode, secret) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_otp", "Invalid or expired OTP code")
		return
	}
	delete(s.otpSecrets, req.Email)

	s.writeSessionLocked(w, r, s.profileLocked(req.Email))
}

// handleLoginIDToken accepts any JWT-shaped ID token carrying an email claim.
// Signature checks belong to the identity provider, which the fake does not run.
func (s *Server) handleLoginIDToken(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	claims, err := jwtx.Inspect(req.IDToken)
	if err != nil || claims.Email == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_id_token", "ID token could not be verified")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeSessionLocked(w, r, s.profileLocked(claims.Email))
}

func (s *Server) writeSessionLocked(w http.ResponseWriter, r *http.Request, p *loyaltysdk.UserProfile) {
	resp, err := s.issueLocked(p)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to issue session", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to issue session")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) issueLocked(p *loyaltysdk.UserProfile) (loyaltysdk.LoginResponse, error) {
	claims := jwtx.NewAccessClaims(p.ID, p.Email, roleNames(p), s.opts.AccessTTL, issuer, time.Now())
	access, err := s.signer.Sign(claims)
	if err != nil {
		return loyaltysdk.LoginResponse{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	s.issued = append(s.issued, claims.ID)

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return loyaltysdk.LoginResponse{}, err
	}
	s.refresh[cryptox.FingerprintToken(refresh)] = p.Email

	return loyaltysdk.LoginResponse{User: *p, AccessToken: access, RefreshToken: refresh}, nil
}

// handleRefresh rotates the refresh token on every successful exchange.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := cryptox.FingerprintToken(req.RefreshToken)
	email, ok := s.refresh[fp]
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_grant", "Refresh token is invalid or expired")
		return
	}
	delete(s.refresh, fp)

	resp, err := s.issueLocked(s.profileLocked(email))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to refresh session")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loyaltysdk.RefreshResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.LogoutRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	delete(s.refresh, cryptox.FingerprintToken(req.RefreshToken))
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	s.mu.Lock()
	p, ok := s.profiles[claims.Email]
	var out loyaltysdk.UserProfile
	if ok {
		out = *p
	}
	s.mu.Unlock()

	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
