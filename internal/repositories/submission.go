package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

const submissionColumns = `id, sequence, name, image_url, submitted_by, created_at, updated_at, deleted_at`

// SubmissionRepository implements [models.Repository] for submitted playlists.
//
// Items are stored in playlist_tracks by position; artist membership per track lives in track_artists.
type SubmissionRepository struct {
	db *sql.DB
}

// NewSubmissionRepository creates a new SubmissionRepository with the given database connection
func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission and its items. The id is the provider's playlist id.
func (r *SubmissionRepository) Create(sub *models.Submission) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	sub.SetSequence(sequence)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO playlists (` + submissionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`
	if _, err := tx.Exec(query,
		sub.ID(), sequence, sub.Name(), sub.ImageURL(), sub.SubmittedBy(),
		sub.CreatedAt().UTC(), sub.UpdatedAt().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	if err := insertItems(tx, sub.ID(), sub.Items()); err != nil {
		return err
	}

	return tx.Commit()
}

// Get retrieves a live submission with its items.
func (r *SubmissionRepository) Get(id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM playlists WHERE id = ? AND deleted_at IS NULL`

	sub, err := scanSubmission(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(id)
	if err != nil {
		return nil, err
	}
	sub.SetItems(items)
	return sub, nil
}

// Update replaces a live submission's metadata and items.
func (r *SubmissionRepository) Update(sub *models.Submission) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	sub.SetUpdatedAt(now)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE playlists
		SET name = ?, image_url = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, sub.Name(), sub.ImageURL(), now, sub.ID())
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	if err := expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, sub.ID())); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, sub.ID()); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	if err := insertItems(tx, sub.ID(), sub.Items()); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete soft-deletes a submission by ID
func (r *SubmissionRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE playlists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id))
}

// List retrieves live submissions ordered by sequence.
//
// Criteria: "submitted_by" keeps one user's submissions, "exclude_submitted_by" drops them.
func (r *SubmissionRepository) List(criteria map[string]any) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM playlists WHERE deleted_at IS NULL`
	args := []any{}

	if userID, ok := criteria["submitted_by"].(string); ok && userID != "" {
		query += " AND submitted_by = ?"
		args = append(args, userID)
	}
	if userID, ok := criteria["exclude_submitted_by"].(string); ok && userID != "" {
		query += " AND submitted_by != ?"
		args = append(args, userID)
	}

	query += " ORDER BY sequence ASC"

	subs, err := r.queryAll(query, args...)
	if err != nil {
		return nil, err
	}

	// items are loaded after the outer rows are closed
	for _, sub := range subs {
		items, err := r.loadItems(sub.ID())
		if err != nil {
			return nil, err
		}
		sub.SetItems(items)
	}

	return subs, nil
}

// Candidates returns every live submission as a ranking candidate.
func (r *SubmissionRepository) Candidates() ([]models.Candidate, error) {
	subs, err := r.List(nil)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, len(subs))
	for i, sub := range subs {
		candidates[i] = sub.Candidate()
	}
	return candidates, nil
}

func (r *SubmissionRepository) queryAll(query string, args ...any) ([]*models.Submission, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return subs, nil
}

func (r *SubmissionRepository) loadItems(playlistID string) ([]models.CandidateItem, error) {
	rows, err := r.db.Query(`
		SELECT pt.position, pt.track_id, ta.artist_id
		FROM playlist_tracks pt
		LEFT JOIN track_artists ta ON ta.track_id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position ASC, ta.artist_id ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	var items []models.CandidateItem
	last := -1
	for rows.Next() {
		var (
			position int
			trackID  string
			artistID sql.NullString
		)
		if err := rows.Scan(&position, &trackID, &artistID); err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}

		if position != last {
			items = append(items, models.CandidateItem{TrackID: trackID})
			last = position
		}
		if artistID.Valid {
			items[len(items)-1].ArtistIDs = append(items[len(items)-1].ArtistIDs, artistID.String)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func insertItems(tx *sql.Tx, playlistID string, items []models.CandidateItem) error {
	for position, item := range items {
		if _, err := tx.Exec(
			`INSERT INTO playlist_tracks (playlist_id, position, track_id) VALUES (?, ?, ?)`,
			playlistID, position, item.TrackID,
		); err != nil {
			return fmt.Errorf("failed to insert playlist track: %w", err)
		}

		for _, artistID := range item.ArtistIDs {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO track_artists (track_id, artist_id) VALUES (?, ?)`,
				item.TrackID, artistID,
			); err != nil {
				return fmt.Errorf("failed to insert track artist: %w", err)
			}
		}
	}
	return nil
}

func scanSubmission(row scanner) (*models.Submission, error) {
	var (
		id          string
		sequence    int
		name        string
		imageURL    string
		submittedBy string
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(&id, &sequence, &name, &imageURL, &submittedBy, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	sub := models.NewSubmission(id, name, imageURL, submittedBy, nil)
	sub.SetSequence(sequence)
	sub.SetCreatedAt(createdAt)
	sub.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		sub.SetDeletedAt(&deletedAt.Time)
	}
	return sub, nil
}
