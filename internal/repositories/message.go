package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

const messageColumns = `id, room, content, author_id, author_name, author_avatar, client_ref, created_at`

// MessageRepository persists room history.
//
// Authorship is enforced here: Edit and Delete compare the stored author with the caller.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert stores msg and returns the persisted copy with its numeric id.
func (r *MessageRepository) Insert(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (room, content, author_id, author_name, author_avatar, client_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.Room, msg.Content, msg.Author.ProfileID, msg.Author.Username, msg.Author.AvatarURL, msg.ClientRef, msg.CreatedAt, msg.CreatedAt)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to read message id: %w", err)
	}

	msg.ID = models.PersistedID(id)
	msg.Optimistic = false
	msg.PendingEdit = false
	return msg, nil
}

// Recent returns the newest limit messages of room in ascending creation order.
func (r *MessageRepository) Recent(ctx context.Context, room string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// Get returns a single message.
func (r *MessageRepository) Get(ctx context.Context, id int64) (models.ChatMessage, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// Edit replaces the content of a message owned by authorID.
func (r *MessageRepository) Edit(ctx context.Context, id int64, authorID, content string) (models.ChatMessage, error) {
	msg, err := r.owned(ctx, id, authorID)
	if err != nil {
		return models.ChatMessage{}, err
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, updated_at = ? WHERE id = ? AND author_id = ?`,
		content, time.Now().UTC(), id, authorID,
	); err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to update message: %w", err)
	}

	msg.Content = content
	return msg, nil
}

// Delete removes a message owned by authorID.
func (r *MessageRepository) Delete(ctx context.Context, id int64, authorID string) error {
	if _, err := r.owned(ctx, id, authorID); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND author_id = ?`, id, authorID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %d", shared.ErrMessageNotFound, id))
}

func (r *MessageRepository) owned(ctx context.Context, id int64, authorID string) (models.ChatMessage, error) {
	msg, err := r.Get(ctx, id)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if msg.Author.ProfileID != authorID {
		return models.ChatMessage{}, fmt.Errorf("%w: message %d belongs to another user", shared.ErrForbidden, id)
	}
	return msg, nil
}

func scanMessage(row scanner) (models.ChatMessage, error) {
	var (
		id        int64
		msg       models.ChatMessage
		createdAt time.Time
	)

	err := row.Scan(&id, &msg.Room, &msg.Content, &msg.Author.ProfileID, &msg.Author.Username, &msg.Author.AvatarURL, &msg.ClientRef, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, shared.ErrMessageNotFound
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.ID = models.PersistedID(id)
	msg.CreatedAt = createdAt
	return msg, nil
}
