// Package services talks to the music provider's REST API.
//
// # Spotify Client
//
// [SpotifyService] issues bearer-authenticated calls through resty. Requests are paced by a token-bucket limiter
// and guarded by a circuit breaker that opens after consecutive transport or 5xx failures.
// A 401 forces one token refresh through the [TokenProvider] and retries once.
//
// # Payloads
//
// Responses decode into explicit record types ([Track], [Artist], [PlaylistItem], ...).
// Each is validated on receipt; malformed list entries are logged and skipped,
// and pagination stops on a missing or malformed cursor instead of looping.
//
// # Authorization
//
// [SpotifyAuth] wraps the authorization-code flow used by the CLI and the HTTP callback.
//
// # Error Handling
//
// Non-2xx responses become [*APIError] carrying the status and a truncated body:
//   - [IsUnauthorized] : token rejected after the retry; callers should prompt re-authentication
//   - [IsRestriction] : market, product or rights restriction on playback
//   - [shared.ErrServiceUnavailable] : the breaker is open
//   - [shared.ErrMalformedPayload] : a body that does not match the expected shape
package services
