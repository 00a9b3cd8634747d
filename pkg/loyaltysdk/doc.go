/*
Package loyaltysdk provides a client for the Loyalty CMS REST API.

# Overview

A Client signs every request with the held access token and decodes JSON
responses. Failures come back as *APIError values carrying the message, code
and HTTP status the API returned; Classify maps them onto a small taxonomy
(auth, input, permission, not found, rate limit, server, network, timeout)
that drives retry and notification decisions.

	client := loyaltysdk.NewClient("https://loyalty.example.com/api")
	client.SetTokens(loyaltysdk.TokenPair{AccessToken: at, RefreshToken: rt})

	customers, err := client.ListCustomers(ctx)
	if loyaltysdk.Classify(err) == loyaltysdk.KindPermission {
		// 403
	}

There is no package-level client. Construct one per session and pass it to
the code that needs it.

# Refresh on 401

When a signed request is answered with 401 and a refresh token is held, the
client exchanges the refresh token at /auth/refresh and retries the request
once with the new access token. Concurrent requests that hit 401 while that
refresh is running are queued and released, in order, with the new token.
Only one refresh call is made no matter how many requests fail together.

If the refresh fails, every queued request fails with the same error, the
held tokens are cleared and the SessionListener is told the session expired.
If no refresh token is held the session is expired immediately, without a
refresh call.

	client.Listener = controller // persists refreshed tokens, redirects on expiry

# Notifications

Terminal failures other than 401 are passed to the Notifier with a
user-facing message chosen by status. Pass Silent() to suppress this for a
single request.
*/
package loyaltysdk
