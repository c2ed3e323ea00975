package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/repositories"
	"github.com/desertthunder/harmony/internal/server"
	"github.com/desertthunder/harmony/internal/services"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// AuthLogin performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and stores the
// exchanged tokens as the user's provider session.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	auth, err := services.NewSpotifyAuth(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	manager := session.NewManager(r.logger)
	defer manager.Subscribe(func(s models.UserSession, ev session.Event) {
		r.logger.Info("session changed", "event", ev.String(), "user", s.UserID)
	})()

	var user *models.User
	sink := func(ctx context.Context, tok *oauth2.Token) error {
		saved, err := r.saveSession(ctx, tok)
		if err != nil {
			manager.Fail(err)
			return err
		}
		user = saved
		manager.SignIn(saved.ID(), saved.ProviderUserID())
		return nil
	}

	if err := r.doOAuth(ctx, auth.Config(), sink); err != nil {
		return err
	}

	r.writePlainln("✓ Signed in as %s", user.Username())
	r.writePlain("You can now use: harmony sync --user %s\n", user.Username())
	return nil
}

// AuthStatus reports whether the user's stored token is usable, refreshing it if needed.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	user, err := r.user(cmd.String("user"))
	if err != nil {
		return err
	}

	tokens, err := r.tokens(ctx, user.ID())
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return r.writePlain("✗ %s is not signed in\n", user.Username())
	} else if err != nil {
		return err
	}

	if _, err := tokens.Token(ctx); err != nil {
		r.logger.Warn("token unusable", "user", user.Username(), "error", err)
		return r.writePlain("✗ Session for %s needs re-authentication: %v\n", user.Username(), err)
	}

	current := tokens.Current()
	r.writePlain("✓ %s is signed in\n", user.Username())
	if current != nil && !current.Expiry.IsZero() {
		r.writePlain("  Token expires: %s\n", current.Expiry.Local().Format(time.RFC1123))
	}
	return nil
}

// AuthLogout deletes the user's stored session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	user, err := r.user(cmd.String("user"))
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	if err := repositories.NewSessionRepository(db).Delete(ctx, user.ID()); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return r.writePlain("✓ Signed out %s\n", user.Username())
}

// saveSession looks up the provider profile behind tok, creates the local user on
// first sign-in and stores the token.
func (r *Runner) saveSession(ctx context.Context, tok *oauth2.Token) (*models.User, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	me, err := r.spotify(services.StaticToken(tok.AccessToken)).CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	db, err := r.database()
	if err != nil {
		return nil, err
	}

	users := repositories.NewUserRepository(db)
	user, err := users.GetByUsername(me.ID)
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		user = models.NewUser(0, me.ID, avatar(me))
		user.SetProviderUserID(me.ID)
		if err := users.Create(user); err != nil {
			return nil, err
		}
		r.logger.Info("created user", "user", me.ID)
	case err != nil:
		return nil, err
	default:
		user.SetAvatarURL(avatar(me))
		user.SetProviderUserID(me.ID)
		if err := users.Update(user); err != nil {
			return nil, err
		}
	}

	err = repositories.NewSessionRepository(db).Save(ctx, models.ProviderSession{
		UserID:         user.ID(),
		ProviderUserID: me.ID,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenType:      tok.TokenType,
		ExpiresAt:      tok.Expiry,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return user, nil
}

func avatar(u *services.User) string {
	if len(u.Images) == 0 {
		return ""
	}
	return u.Images[0].URL
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, config *oauth2.Config, sink server.TokenSink) error {
	oauthHandler := server.NewOAuthHandler(config, uuid.NewString(), server.WithTokenSink(sink))
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverAddr := r.config.Server.Addr()
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	authURL := oauthHandler.AuthCodeURL()
	r.writePlain("→ Opening browser for Spotify sign-in...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	return nil
}
