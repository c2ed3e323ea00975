package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/google/uuid"
)

const (
	DefaultPageSize         = 50
	DefaultMaxContentLength = 500
)

// MessageStore persists room history. Authorship is enforced by the store.
type MessageStore interface {
	Insert(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	Recent(ctx context.Context, room string, limit int) ([]models.ChatMessage, error)
	Edit(ctx context.Context, id int64, authorID, content string) (models.ChatMessage, error)
	Delete(ctx context.Context, id int64, authorID string) error
}

// RoomOption configures a [Room].
type RoomOption func(*Room)

// WithPageSize bounds the snapshot loaded on open.
func WithPageSize(n int) RoomOption {
	return func(r *Room) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithMaxContentLength bounds message content, in runes.
func WithMaxContentLength(n int) RoomOption {
	return func(r *Room) {
		if n > 0 {
			r.maxLength = n
		}
	}
}

// WithRoomLogger sets the room's logger.
func WithRoomLogger(l *log.Logger) RoomOption {
	return func(r *Room) { r.logger = l }
}

// WithRoomClock replaces time.Now for optimistic timestamps.
func WithRoomClock(now func() time.Time) RoomOption {
	return func(r *Room) { r.now = now }
}

// Room is one participant's live view of a chat room.
type Room struct {
	name       string
	author     models.Author
	client     *Client
	store      MessageStore
	channel    *Channel
	reconciler *Reconciler
	pageSize   int
	maxLength  int
	logger     *log.Logger
	now        func() time.Time
}

func NewRoom(name string, author models.Author, client *Client, store MessageStore, opts ...RoomOption) *Room {
	r := &Room{
		name:      name,
		author:    author,
		client:    client,
		store:     store,
		pageSize:  DefaultPageSize,
		maxLength: DefaultMaxContentLength,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = shared.NewLogger(nil)
	}
	r.logger = shared.WithLogger(r.logger, "room", name)
	r.reconciler = NewReconciler(r.logger)
	return r
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Reconciler exposes the room's message view.
func (r *Room) Reconciler() *Reconciler { return r.reconciler }

// Messages returns the current ordered view.
func (r *Room) Messages() []models.ChatMessage { return r.reconciler.Messages() }

// Subscribe registers fn for every view change.
func (r *Room) Subscribe(fn View) func() { return r.reconciler.Subscribe(fn) }

// State reports the channel state; Connecting before [Room.Open].
func (r *Room) State() State {
	if r.channel == nil {
		return Connecting
	}
	return r.channel.State()
}

// Open joins the room channel and loads the recent history.
//
// Handlers are registered before subscribing and the snapshot is fetched after,
// so broadcasts racing the fetch are merged rather than lost. A failed fetch is
// logged and contributes no messages. onState may be nil.
func (r *Room) Open(ctx context.Context, onState func(State)) error {
	ch, err := r.client.Channel(r.name)
	if err != nil {
		return err
	}
	ch.OnBroadcast(EventNewMessage, r.handleNew)
	ch.OnBroadcast(EventMessageEdited, r.handleEdited)
	ch.OnBroadcast(EventMessageDeleted, r.handleDeleted)
	if onState != nil {
		ch.OnStateChange(onState)
	}
	r.channel = ch

	subErr := ch.Subscribe(ctx)

	snapshot, err := r.store.Recent(ctx, r.name, r.pageSize)
	if err != nil {
		r.logger.Error("failed to load message history", "error", err)
	} else {
		r.reconciler.Merge(SourceSnapshot, snapshot...)
	}
	return subErr
}

// Close leaves the room channel.
func (r *Room) Close() error {
	if r.channel == nil {
		return nil
	}
	return r.channel.Leave()
}

// Send posts content as the room's author.
//
// The message appears immediately as an optimistic entry, is persisted, then
// broadcast and confirmed. If persisting fails the optimistic entry stays visible.
func (r *Room) Send(ctx context.Context, content string) (models.ChatMessage, error) {
	content, err := r.validate(content)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if s := r.State(); s != Subscribed {
		metrics.SendsDropped.Inc()
		r.logger.Warn("send while not subscribed", "state", s)
		return models.ChatMessage{}, fmt.Errorf("%w: room %s is %s", shared.ErrNotSubscribed, r.name, s)
	}

	ref := uuid.NewString()
	optimistic := models.ChatMessage{
		ID:         models.LocalID(ref),
		ClientRef:  ref,
		Room:       r.name,
		Content:    content,
		Author:     r.author,
		CreatedAt:  r.now().UTC(),
		Optimistic: true,
	}
	r.reconciler.Merge(SourceOptimistic, optimistic)

	optimistic.Optimistic = false
	stored, err := r.store.Insert(ctx, optimistic)
	if err != nil {
		r.logger.Error("failed to persist message", "ref", ref, "error", err)
		return optimistic, err
	}

	if err := r.channel.Send(ctx, EventNewMessage, stored); err != nil {
		r.logger.Warn("failed to broadcast message", "id", stored.ID, "error", err)
	}
	r.reconciler.Merge(SourceConfirm, stored)
	return stored, nil
}

// BeginEdit marks id as being edited in the view.
func (r *Room) BeginEdit(id models.MessageID) bool { return r.reconciler.BeginEdit(id) }

// CancelEdit clears the edit mark on id.
func (r *Room) CancelEdit(id models.MessageID) bool { return r.reconciler.CancelEdit(id) }

// Edit changes the content of one of the author's persisted messages.
func (r *Room) Edit(ctx context.Context, id models.MessageID, content string) (models.ChatMessage, error) {
	if !id.IsPersisted() {
		return models.ChatMessage{}, fmt.Errorf("%w: message %s is not persisted yet", shared.ErrInvalidInput, id)
	}
	content, err := r.validate(content)
	if err != nil {
		return models.ChatMessage{}, err
	}

	updated, err := r.store.Edit(ctx, id.Int(), r.author.ProfileID, content)
	if err != nil {
		r.reconciler.CancelEdit(id)
		r.logger.Warn("edit rejected", "id", id, "error", err)
		return models.ChatMessage{}, err
	}

	r.reconciler.Edit(id, updated.Content)
	if err := r.channel.Send(ctx, EventMessageEdited, updated); err != nil {
		r.logger.Warn("failed to broadcast edit", "id", id, "error", err)
	}
	return updated, nil
}

// Delete removes one of the author's persisted messages.
func (r *Room) Delete(ctx context.Context, id models.MessageID) error {
	if !id.IsPersisted() {
		return fmt.Errorf("%w: message %s is not persisted yet", shared.ErrInvalidInput, id)
	}
	if err := r.store.Delete(ctx, id.Int(), r.author.ProfileID); err != nil {
		r.logger.Warn("delete rejected", "id", id, "error", err)
		return err
	}

	r.reconciler.Delete(id)
	if err := r.channel.Send(ctx, EventMessageDeleted, deletedPayload{ID: id}); err != nil {
		r.logger.Warn("failed to broadcast delete", "id", id, "error", err)
	}
	return nil
}

func (r *Room) validate(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", shared.ErrEmptyContent
	}
	if n := utf8.RuneCountInString(content); n > r.maxLength {
		return "", fmt.Errorf("%w: %d characters, limit is %d", shared.ErrContentTooLong, n, r.maxLength)
	}
	return content, nil
}

func (r *Room) handleNew(env Envelope) {
	var msg models.ChatMessage
	if err := env.Decode(&msg); err != nil {
		r.logger.Warn("dropping broadcast", "error", err)
		return
	}
	if !msg.ID.IsPersisted() {
		r.logger.Warn("dropping broadcast without persisted id", "id", msg.ID)
		return
	}
	r.reconciler.Merge(SourceBroadcast, msg)
}

func (r *Room) handleEdited(env Envelope) {
	var msg models.ChatMessage
	if err := env.Decode(&msg); err != nil {
		r.logger.Warn("dropping edit broadcast", "error", err)
		return
	}
	if !r.reconciler.Edit(msg.ID, msg.Content) {
		r.reconciler.Merge(SourceBroadcast, msg)
	}
}

func (r *Room) handleDeleted(env Envelope) {
	var payload deletedPayload
	if err := env.Decode(&payload); err != nil {
		r.logger.Warn("dropping delete broadcast", "error", err)
		return
	}
	if !r.reconciler.Delete(payload.ID) {
		r.logger.Debug("delete for unknown message", "id", payload.ID)
	}
}

// IsUserFacing reports whether err should be shown to the participant.
func IsUserFacing(err error) bool {
	return errors.Is(err, shared.ErrEmptyContent) ||
		errors.Is(err, shared.ErrContentTooLong) ||
		errors.Is(err, shared.ErrNotSubscribed) ||
		errors.Is(err, shared.ErrForbidden)
}
