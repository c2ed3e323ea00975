package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/harmony/internal/shared"
	"golang.org/x/oauth2"
)

// TokenProvider supplies bearer tokens. [session.TokenCache] is the production implementation.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// StaticToken is a [TokenProvider] that never refreshes.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

func (t StaticToken) ForceRefresh(context.Context) (string, error) {
	return "", fmt.Errorf("%w: static token cannot be refreshed", shared.ErrNotAuthenticated)
}

// Scopes requested during sign-in.
var Scopes = []string{
	"user-read-private",
	"user-read-email",
	"user-top-read",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-library-read",
	"user-library-modify",
	"user-read-playback-state",
	"user-modify-playback-state",
	"streaming",
}

// SpotifyAuth runs the authorization-code flow.
type SpotifyAuth struct {
	config *oauth2.Config
}

// NewSpotifyAuth validates creds and builds the OAuth client configuration.
func NewSpotifyAuth(creds shared.SpotifyConfig) (*SpotifyAuth, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &SpotifyAuth{config: creds.OAuth2Config(Scopes...)}, nil
}

// AuthURL returns the consent page URL carrying state.
func (a *SpotifyAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (a *SpotifyAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return tok, nil
}

// Config exposes the underlying OAuth configuration.
func (a *SpotifyAuth) Config() *oauth2.Config { return a.config }
