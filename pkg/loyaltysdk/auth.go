package loyaltysdk

import (
	"context"
)

// Auth operations. Credential exchanges are sent unauthenticated: a 401 from
// them means bad credentials, not an expired session.

// SendOTP asks the API to email a one-time login code.
func (c *Client) SendOTP(ctx context.Context, email string, opts ...RequestOption) (*SendOTPResponse, error) {
	req := SendOTPRequest{Email: email}
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out SendOTPResponse
	if err := c.Post(ctx, PathSendOTP, req, &out, append(opts, Unauthenticated())...); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP exchanges an emailed code for a session.
func (c *Client) VerifyOTP(ctx context.Context, email, code string, opts ...RequestOption) (*LoginResponse, error) {
	req := VerifyOTPRequest{Email: email, OTPCode: code, Type: OTPTypeLogin}
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := c.Post(ctx, PathVerifyOTP, req, &out, append(opts, Unauthenticated())...); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginWithIDToken exchanges a provider ID token for a session.
func (c *Client) LoginWithIDToken(
	ctx context.Context,
	method LoginMethod,
	idToken string,
	opts ...RequestOption,
) (*LoginResponse, error) {
	req := LoginRequest{IDToken: idToken, Method: method}
	if err := validate(&req); err != nil {
		return nil, err
	}

	path := PathLoginGoogle
	if method == LoginMethodPhone {
		path = PathLoginPhone
	}

	var out LoginResponse
	if err := c.Post(ctx, path, req, &out, append(opts, Unauthenticated())...); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile returns the authenticated user.
func (c *Client) GetProfile(ctx context.Context, opts ...RequestOption) (*UserProfile, error) {
	var out UserProfile
	if err := c.Get(ctx, PathProfile, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the held refresh token server-side. It does not clear
// the client's tokens; callers do that regardless of the outcome. A refresh
// on the way rotates the refresh token, so the retry names the rotated one.
func (c *Client) Logout(ctx context.Context, opts ...RequestOption) error {
	build := func() any { return LogoutRequest{RefreshToken: c.Tokens().RefreshToken} }
	return c.Post(ctx, PathLogout, build(), nil, append(opts, bodyFrom(build))...)
}
