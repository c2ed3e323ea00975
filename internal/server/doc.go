// Package server provides HTTP routing, middleware, and the handlers harmony serves.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// hands the token to an optional [TokenSink] and sends the result through a channel.
// It only processes one callback to prevent replay attacks.
//
// # Token Refresh
//
// [TokenHandler] serves POST /token/refresh. It exchanges the stored refresh token of a user
// for a new access token and updates the stored session. Missing client credentials produce a
// structured configuration error without contacting the provider.
//
// # Metrics
//
// [NewRouter] mounts the Prometheus handler at /metrics next to the application routes.
package server
