// Package session owns the signed-in user and their provider token.
//
//   - [TokenCache] hands out a valid access token and coalesces concurrent refreshes into one call.
//   - [OAuthRefresher] exchanges the stored refresh token and writes the result back to the [Store].
//   - [Manager] broadcasts sign-in, sign-out and token rotation to subscribers.
//
// Nothing here is global: the composition root builds one of each and passes them to consumers.
package session
