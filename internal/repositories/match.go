package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/harmony/internal/models"
)

// MatchRepository saves ranked results per user.
type MatchRepository struct {
	db *sql.DB
}

func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Record replaces userID's saved matches with ranked.
func (r *MatchRepository) Record(ctx context.Context, userID string, ranked []models.RankedCandidate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}

	now := time.Now().UTC()
	for _, rc := range ranked {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO matches (user_id, playlist_id, score, created_at) VALUES (?, ?, ?, ?)`,
			userID, rc.ID, rc.Score, now,
		); err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
	}

	return tx.Commit()
}

// Matches lists userID's saved matches, best first.
func (r *MatchRepository) Matches(ctx context.Context, userID string) ([]models.SavedMatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, playlist_id, score, created_at
		FROM matches
		WHERE user_id = ?
		ORDER BY score DESC, playlist_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var out []models.SavedMatch
	for rows.Next() {
		var m models.SavedMatch
		if err := rows.Scan(&m.UserID, &m.PlaylistID, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
