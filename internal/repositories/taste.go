package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// TasteRepository stores the artist ids that make up each user's taste profile.
type TasteRepository struct {
	db *sql.DB
}

func NewTasteRepository(db *sql.DB) *TasteRepository {
	return &TasteRepository{db: db}
}

// ReplaceTopArtists overwrites userID's top artists; rank follows slice order.
func (r *TasteRepository) ReplaceTopArtists(ctx context.Context, userID string, artistIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM top_artists WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear top artists: %w", err)
	}

	for rank, artistID := range artistIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO top_artists (user_id, artist_id, rank) VALUES (?, ?, ?)`,
			userID, artistID, rank,
		); err != nil {
			return fmt.Errorf("failed to insert top artist: %w", err)
		}
	}

	return tx.Commit()
}

// TopArtists returns userID's directly tracked artists by rank.
func (r *TasteRepository) TopArtists(ctx context.Context, userID string) ([]string, error) {
	return r.strings(ctx, `SELECT artist_id FROM top_artists WHERE user_id = ? ORDER BY rank ASC`, userID)
}

// SubmittedArtists returns the distinct artists across userID's live submissions.
func (r *TasteRepository) SubmittedArtists(ctx context.Context, userID string) ([]string, error) {
	return r.strings(ctx, `
		SELECT DISTINCT ta.artist_id
		FROM playlists p
		JOIN playlist_tracks pt ON pt.playlist_id = p.id
		JOIN track_artists ta ON ta.track_id = pt.track_id
		WHERE p.submitted_by = ? AND p.deleted_at IS NULL
		ORDER BY ta.artist_id ASC
	`, userID)
}

func (r *TasteRepository) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
