package chat

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// memoryStore is a MessageStore shared by every participant of a test.
type memoryStore struct {
	mu        sync.Mutex
	next      int64
	messages  map[int64]models.ChatMessage
	insertErr error
	recentErr error
}

func newMemoryStore(seed ...models.ChatMessage) *memoryStore {
	s := &memoryStore{messages: make(map[int64]models.ChatMessage)}
	for _, m := range seed {
		s.next++
		m.ID = models.PersistedID(s.next)
		s.messages[s.next] = m
	}
	return s
}

func (s *memoryStore) Insert(_ context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return models.ChatMessage{}, s.insertErr
	}
	s.next++
	msg.ID = models.PersistedID(s.next)
	msg.Optimistic = false
	s.messages[s.next] = msg
	return msg, nil
}

func (s *memoryStore) Recent(_ context.Context, room string, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	var out []models.ChatMessage
	for id := int64(1); id <= s.next; id++ {
		if m, ok := s.messages[id]; ok && m.Room == room {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memoryStore) Edit(_ context.Context, id int64, authorID, content string) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return models.ChatMessage{}, shared.ErrMessageNotFound
	}
	if m.Author.ProfileID != authorID {
		return models.ChatMessage{}, shared.ErrForbidden
	}
	m.Content = content
	s.messages[id] = m
	return m, nil
}

func (s *memoryStore) Delete(_ context.Context, id int64, authorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return shared.ErrMessageNotFound
	}
	if m.Author.ProfileID != authorID {
		return shared.ErrForbidden
	}
	delete(s.messages, id)
	return nil
}

var (
	adaAuthor = models.Author{ProfileID: "ada", Username: "ada"}
	bobAuthor = models.Author{ProfileID: "bob", Username: "bob"}
)

func openRoom(t *testing.T, hub *MemoryHub, store MessageStore, user string, opts ...RoomOption) *Room {
	t.Helper()
	logger := shared.NewLogger(&bytes.Buffer{})
	client := NewClient(hub.Transport(), logger)
	opts = append([]RoomOption{WithRoomLogger(logger)}, opts...)
	room := NewRoom("lobby", models.Author{ProfileID: user, Username: user}, client, store, opts...)
	if err := room.Open(context.Background(), nil); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { room.Close() })
	return room
}

func TestRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("open loads bounded snapshot", func(t *testing.T) {
		var seed []models.ChatMessage
		for i := range 5 {
			seed = append(seed, models.ChatMessage{Room: "lobby", Content: "m", CreatedAt: at(int64(100 + i))})
		}
		seed = append(seed, models.ChatMessage{Room: "elsewhere", CreatedAt: at(1)})

		room := openRoom(t, NewMemoryHub(), newMemoryStore(seed...), "ada", WithPageSize(3))
		equalIDs(t, room.Messages(), "3", "4", "5")
		if room.State() != Subscribed {
			t.Errorf("expected subscribed, got %s", room.State())
		}
	})

	t.Run("failed snapshot contributes nothing", func(t *testing.T) {
		store := newMemoryStore()
		store.recentErr = errors.New("db down")
		room := openRoom(t, NewMemoryHub(), store, "ada")
		if len(room.Messages()) != 0 {
			t.Error("expected empty view")
		}
	})

	t.Run("send reaches both views once", func(t *testing.T) {
		hub := NewMemoryHub()
		store := newMemoryStore()
		ada := openRoom(t, hub, store, "ada")
		bob := openRoom(t, hub, store, "bob")

		var views [][]models.ChatMessage
		ada.Subscribe(func(v []models.ChatMessage) { views = append(views, v) })

		msg, err := ada.Send(ctx, "  hello  ")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if !msg.ID.IsPersisted() || msg.Content != "hello" || msg.ClientRef == "" {
			t.Errorf("unexpected stored message %+v", msg)
		}

		if len(views) != 2 {
			t.Fatalf("expected optimistic and confirmed views, got %d", len(views))
		}
		if !views[0][0].Optimistic || views[0][0].ID.IsPersisted() {
			t.Errorf("first view should hold the optimistic copy: %+v", views[0][0])
		}

		equalIDs(t, ada.Messages(), msg.ID.String())
		equalIDs(t, bob.Messages(), msg.ID.String())
	})

	t.Run("content validation", func(t *testing.T) {
		room := openRoom(t, NewMemoryHub(), newMemoryStore(), "ada", WithMaxContentLength(5))

		if _, err := room.Send(ctx, "   "); !errors.Is(err, shared.ErrEmptyContent) {
			t.Errorf("expected ErrEmptyContent, got %v", err)
		}
		if _, err := room.Send(ctx, "toolong"); !errors.Is(err, shared.ErrContentTooLong) {
			t.Errorf("expected ErrContentTooLong, got %v", err)
		}
		if _, err := room.Send(ctx, "héllo"); err != nil {
			t.Errorf("five runes should be accepted: %v", err)
		}
		if len(room.Messages()) != 1 {
			t.Errorf("expected only the valid message, got %d", len(room.Messages()))
		}
	})

	t.Run("send refused while not subscribed", func(t *testing.T) {
		room := openRoom(t, NewMemoryHub(), newMemoryStore(), "ada")
		room.Close()

		if _, err := room.Send(ctx, "hi"); !errors.Is(err, shared.ErrNotSubscribed) {
			t.Fatalf("expected ErrNotSubscribed, got %v", err)
		}
		if len(room.Messages()) != 0 {
			t.Error("refused send should not appear in the view")
		}
	})

	t.Run("persist failure keeps optimistic copy", func(t *testing.T) {
		store := newMemoryStore()
		store.insertErr = errors.New("disk full")
		room := openRoom(t, NewMemoryHub(), store, "ada")

		if _, err := room.Send(ctx, "hi"); err == nil {
			t.Fatal("expected insert error")
		}
		msgs := room.Messages()
		if len(msgs) != 1 || !msgs[0].Optimistic {
			t.Errorf("expected optimistic copy to remain, got %+v", msgs)
		}
	})

	t.Run("edit and delete converge", func(t *testing.T) {
		hub := NewMemoryHub()
		store := newMemoryStore()
		ada := openRoom(t, hub, store, "ada")
		bob := openRoom(t, hub, store, "bob")

		msg, _ := ada.Send(ctx, "first")
		ada.BeginEdit(msg.ID)
		if _, err := ada.Edit(ctx, msg.ID, "second"); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		if got := bob.Messages()[0].Content; got != "second" {
			t.Errorf("bob should see edit, got %q", got)
		}
		if ada.Messages()[0].PendingEdit {
			t.Error("pending edit should be cleared")
		}

		if err := ada.Delete(ctx, msg.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if len(ada.Messages()) != 0 || len(bob.Messages()) != 0 {
			t.Error("delete should remove the message from every view")
		}
	})

	t.Run("only the author may edit or delete", func(t *testing.T) {
		hub := NewMemoryHub()
		store := newMemoryStore()
		ada := openRoom(t, hub, store, "ada")
		bob := openRoom(t, hub, store, "bob")

		msg, _ := ada.Send(ctx, "mine")
		bob.BeginEdit(msg.ID)
		if _, err := bob.Edit(ctx, msg.ID, "hijacked"); !errors.Is(err, shared.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		got := bob.Messages()[0]
		if got.Content != "mine" || got.PendingEdit {
			t.Errorf("rejected edit should leave message untouched, got %+v", got)
		}
		if err := bob.Delete(ctx, msg.ID); !errors.Is(err, shared.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if len(ada.Messages()) != 1 {
			t.Error("rejected delete should not remove the message")
		}
	})

	t.Run("optimistic ids cannot be edited", func(t *testing.T) {
		room := openRoom(t, NewMemoryHub(), newMemoryStore(), "ada")
		if _, err := room.Edit(ctx, models.LocalID("x"), "y"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("clock orders optimistic sends", func(t *testing.T) {
		clock := at(500)
		room := openRoom(t, NewMemoryHub(), newMemoryStore(models.ChatMessage{Room: "lobby", CreatedAt: at(600)}), "ada",
			WithRoomClock(func() time.Time { return clock }))

		room.Send(ctx, "earlier")
		msgs := room.Messages()
		if len(msgs) != 2 || msgs[0].Content != "earlier" {
			t.Errorf("expected the earlier send first, got %+v", msgs)
		}
	})
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(shared.ErrForbidden) || !IsUserFacing(shared.ErrContentTooLong) {
		t.Error("expected user facing errors")
	}
	if IsUserFacing(errors.New("sql: connection refused")) {
		t.Error("internal errors are not user facing")
	}
}
