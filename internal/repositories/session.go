package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// SessionRepository stores provider credentials per user.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save inserts or replaces the stored session for s.UserID.
func (r *SessionRepository) Save(ctx context.Context, s models.ProviderSession) error {
	if s.UserID == "" {
		return fmt.Errorf("%w: session user id is required", shared.ErrInvalidInput)
	}
	if s.TokenType == "" {
		s.TokenType = "Bearer"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provider_sessions (user_id, provider_user_id, access_token, refresh_token, token_type, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			provider_user_id = excluded.provider_user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, s.UserID, s.ProviderUserID, s.AccessToken, s.RefreshToken, s.TokenType, s.ExpiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns the stored session, or [shared.ErrNotAuthenticated] when there is none.
func (r *SessionRepository) Load(ctx context.Context, userID string) (models.ProviderSession, error) {
	var s models.ProviderSession
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, provider_user_id, access_token, refresh_token, token_type, expires_at, updated_at
		FROM provider_sessions WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.ProviderUserID, &s.AccessToken, &s.RefreshToken, &s.TokenType, &s.ExpiresAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProviderSession{}, fmt.Errorf("%w: no stored session for %s", shared.ErrNotAuthenticated, userID)
	}
	if err != nil {
		return models.ProviderSession{}, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// Delete forgets the stored session.
func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM provider_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
