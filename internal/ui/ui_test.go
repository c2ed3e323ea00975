package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/harmony/internal/chat"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

var (
	ada = models.Author{ProfileID: "u-ada", Username: "ada"}
	bob = models.Author{ProfileID: "u-bob", Username: "bob"}
)

type fakeRoom struct {
	mu        sync.Mutex
	state     chat.State
	messages  []models.ChatMessage
	sent      []string
	edits     map[models.MessageID]string
	deleted   []models.MessageID
	beginEdit []models.MessageID
	cancelled []models.MessageID
	sendErr   error
}

func (f *fakeRoom) Name() string                   { return "lobby" }
func (f *fakeRoom) State() chat.State              { return f.state }
func (f *fakeRoom) Messages() []models.ChatMessage { return f.messages }

func (f *fakeRoom) Send(_ context.Context, content string) (models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return models.ChatMessage{Content: content}, f.sendErr
}

func (f *fakeRoom) BeginEdit(id models.MessageID) bool {
	f.beginEdit = append(f.beginEdit, id)
	return true
}

func (f *fakeRoom) CancelEdit(id models.MessageID) bool {
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeRoom) Edit(_ context.Context, id models.MessageID, content string) (models.ChatMessage, error) {
	if f.edits == nil {
		f.edits = map[models.MessageID]string{}
	}
	f.edits[id] = content
	return models.ChatMessage{ID: id, Content: content}, nil
}

func (f *fakeRoom) Delete(_ context.Context, id models.MessageID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func newModel(t *testing.T, room *fakeRoom) *Model {
	t.Helper()
	m := NewModel(context.Background(), room, ada, shared.NewLogger(&bytes.Buffer{}))
	m.Init()
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	return m
}

func typeText(m *Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func press(m *Model, k tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	return cmd
}

func message(id int64, author models.Author, content string) models.ChatMessage {
	return models.ChatMessage{
		ID:        models.PersistedID(id),
		Room:      "lobby",
		Content:   content,
		Author:    author,
		CreatedAt: time.Date(2026, 1, 1, 9, int(id), 0, 0, time.UTC),
	}
}

func TestModel(t *testing.T) {
	t.Run("input disabled until subscribed", func(t *testing.T) {
		room := &fakeRoom{state: chat.Connecting}
		m := newModel(t, room)

		typeText(m, "hello")
		if m.input.Value() != "" {
			t.Errorf("expected input to ignore keys, got %q", m.input.Value())
		}
		if cmd := press(m, tea.KeyEnter); cmd != nil {
			t.Error("expected no command while connecting")
		}
		if !strings.Contains(m.notice, "Not connected") {
			t.Errorf("expected notice, got %q", m.notice)
		}

		m.Update(StateMsg(chat.Subscribed))
		typeText(m, "hello")
		if m.input.Value() != "hello" || !m.input.Focused() {
			t.Errorf("expected focused input with text, got %q", m.input.Value())
		}

		m.Update(StateMsg(chat.Disconnected))
		if m.input.Focused() || !strings.Contains(m.View(), "disconnected") {
			t.Error("expected blurred input and disconnected status")
		}
	})

	t.Run("enter sends and clears", func(t *testing.T) {
		room := &fakeRoom{state: chat.Subscribed}
		m := newModel(t, room)

		typeText(m, "hi there")
		cmd := press(m, tea.KeyEnter)
		if cmd == nil {
			t.Fatal("expected send command")
		}
		if m.input.Value() != "" {
			t.Errorf("expected cleared input, got %q", m.input.Value())
		}

		m.Update(cmd())
		if len(room.sent) != 1 || room.sent[0] != "hi there" {
			t.Errorf("unexpected sends %v", room.sent)
		}
		if m.notice != "" {
			t.Errorf("expected no notice, got %q", m.notice)
		}
	})

	t.Run("user facing send error", func(t *testing.T) {
		room := &fakeRoom{state: chat.Subscribed, sendErr: shared.ErrEmptyContent}
		m := newModel(t, room)

		cmd := press(m, tea.KeyEnter)
		m.Update(cmd())
		if !strings.Contains(m.notice, "Message is empty") {
			t.Errorf("expected empty notice, got %q", m.notice)
		}
	})

	t.Run("internal error is logged", func(t *testing.T) {
		var buf bytes.Buffer
		room := &fakeRoom{state: chat.Subscribed, sendErr: errors.New("disk full")}
		m := NewModel(context.Background(), room, ada, shared.NewLogger(&buf))
		m.Init()

		typeText(m, "x")
		m.Update(press(m, tea.KeyEnter)())
		if !strings.Contains(buf.String(), "disk full") || strings.Contains(m.notice, "disk full") {
			t.Errorf("expected logged error and generic notice, got %q / %q", buf.String(), m.notice)
		}
	})

	t.Run("views render and scroll to bottom", func(t *testing.T) {
		room := &fakeRoom{state: chat.Subscribed}
		m := newModel(t, room)

		var msgs []models.ChatMessage
		for i := int64(1); i <= 30; i++ {
			msgs = append(msgs, message(i, bob, "line"))
		}
		pending := models.ChatMessage{ID: models.LocalID("ref"), Content: "on the way", Author: ada, Optimistic: true}
		m.Update(ViewMsg(append(msgs, pending)))

		if !m.viewport.AtBottom() {
			t.Error("expected viewport at bottom")
		}
		if view := m.View(); !strings.Contains(view, "on the way") || !strings.Contains(view, "(sending)") {
			t.Errorf("expected optimistic message in view, got:\n%s", view)
		}
	})

	t.Run("edit last own message", func(t *testing.T) {
		room := &fakeRoom{state: chat.Subscribed}
		m := newModel(t, room)
		m.Update(ViewMsg([]models.ChatMessage{message(1, ada, "frist"), message(2, bob, "hey")}))

		press(m, tea.KeyCtrlE)
		if m.editing != models.PersistedID(1) || m.input.Value() != "frist" {
			t.Fatalf("expected editing message 1, got %v %q", m.editing, m.input.Value())
		}

		m.input.SetValue("first")
		m.Update(press(m, tea.KeyEnter)())
		if room.edits[models.PersistedID(1)] != "first" || !m.editing.IsZero() {
			t.Errorf("expected edit to be sent, got %v", room.edits)
		}
	})

	t.Run("esc cancels edit", func(t *testing.T) {
		room := &fakeRoom{state: chat.Subscribed}
		m := newModel(t, room)
		m.Update(ViewMsg([]models.ChatMessage{message(1, ada, "draft")}))

		press(m, tea.KeyCtrlE)
		press(m, tea.KeyEsc)
		if len(room.cancelled) != 1 || !m.editing.IsZero() || m.input.Value() != "" {
			t.Errorf("expected cancelled edit, got %v", room.cancelled)
		}
	})

	t.Run("delete last own message", func(t *testing.T) {
		room := &fakeRoom{state: chat.Subscribed}
		m := newModel(t, room)
		m.Update(ViewMsg([]models.ChatMessage{message(1, ada, "mine"), message(2, bob, "theirs")}))

		m.Update(press(m, tea.KeyCtrlD)())
		if len(room.deleted) != 1 || room.deleted[0] != models.PersistedID(1) {
			t.Errorf("expected message 1 deleted, got %v", room.deleted)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := newModel(t, &fakeRoom{})
		if cmd := press(m, tea.KeyCtrlC); cmd == nil {
			t.Error("expected quit command")
		}
	})
}

func TestBind(t *testing.T) {
	sender := &recordingSender{}
	logger := shared.NewLogger(&bytes.Buffer{})
	r := chat.NewReconciler(logger)

	unsubscribe := Bind(sender, r)
	r.Merge(chat.SourceBroadcast, message(1, bob, "hey"))
	unsubscribe()
	r.Merge(chat.SourceBroadcast, message(2, bob, "again"))

	StateHandler(sender)(chat.Subscribed)

	if len(sender.msgs) != 2 {
		t.Fatalf("expected view and state messages, got %d", len(sender.msgs))
	}
	if msg := sender.msgs[0].(Msg); msg.kind != MsgView || len(msg.data.([]models.ChatMessage)) != 1 {
		t.Errorf("unexpected view message %+v", msg)
	}
	if msg := sender.msgs[1].(Msg); msg.kind != MsgState || msg.data.(chat.State) != chat.Subscribed {
		t.Errorf("unexpected state message %+v", msg)
	}
}
