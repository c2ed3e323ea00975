package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
	"golang.org/x/oauth2"
)

// Store persists provider sessions.
type Store interface {
	Load(ctx context.Context, userID string) (models.ProviderSession, error)
	Save(ctx context.Context, s models.ProviderSession) error
}

// OAuthRefresher exchanges a user's stored refresh token for a new access token.
type OAuthRefresher struct {
	creds      shared.SpotifyConfig
	store      Store
	userID     string
	tokenURL   string
	httpClient *http.Client
}

// RefresherOption configures an [OAuthRefresher].
type RefresherOption func(*OAuthRefresher)

// WithTokenURL points the exchange at a different token endpoint.
func WithTokenURL(u string) RefresherOption {
	return func(r *OAuthRefresher) { r.tokenURL = u }
}

// WithHTTPClient sets the client used for the exchange.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *OAuthRefresher) { r.httpClient = c }
}

func NewOAuthRefresher(creds shared.SpotifyConfig, store Store, userID string, opts ...RefresherOption) *OAuthRefresher {
	r := &OAuthRefresher{creds: creds, store: store, userID: userID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh performs the exchange and saves the new token to the store.
//
// Missing client credentials return a [shared.ConfigError] before any request is made.
// A refused grant wraps [shared.ErrNotAuthenticated]; an unreachable or failing token
// endpoint only wraps [shared.ErrRefreshFailed].
// The stored refresh token is kept when the provider does not rotate it.
func (r *OAuthRefresher) Refresh(ctx context.Context) (*oauth2.Token, error) {
	if err := r.creds.Validate(); err != nil {
		return nil, err
	}

	stored, err := r.store.Load(ctx, r.userID)
	if err != nil {
		return nil, err
	}
	if stored.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrNoRefreshToken)
	}

	conf := r.creds.OAuth2Config()
	if r.tokenURL != "" {
		conf.Endpoint.TokenURL = r.tokenURL
	}
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		if rejected(err) {
			return nil, fmt.Errorf("%w: %w: %v", shared.ErrNotAuthenticated, shared.ErrRefreshFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = stored.RefreshToken
	}

	stored.AccessToken = tok.AccessToken
	stored.RefreshToken = tok.RefreshToken
	stored.TokenType = tok.TokenType
	stored.ExpiresAt = tok.Expiry
	stored.UpdatedAt = time.Now().UTC()
	if err := r.store.Save(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to store refreshed session: %w", err)
	}

	return tok, nil
}

// rejected reports whether the token endpoint refused the grant itself, as opposed
// to failing with a server error or not answering at all.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	return re.Response == nil || re.Response.StatusCode < http.StatusInternalServerError
}

// TokenFromSession converts a stored session to an [oauth2.Token].
func TokenFromSession(s models.ProviderSession) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.ExpiresAt,
	}
}
