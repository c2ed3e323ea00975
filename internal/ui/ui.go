package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/chat"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// Room is the part of [chat.Room] the TUI drives.
type Room interface {
	Name() string
	State() chat.State
	Messages() []models.ChatMessage
	Send(ctx context.Context, content string) (models.ChatMessage, error)
	BeginEdit(id models.MessageID) bool
	CancelEdit(id models.MessageID) bool
	Edit(ctx context.Context, id models.MessageID, content string) (models.ChatMessage, error)
	Delete(ctx context.Context, id models.MessageID) error
}

var _ Room = (*chat.Room)(nil)

const chromeHeight = 5 // header, notice, input, help and a spacer

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	room     Room
	self     models.Author
	logger   *log.Logger
	viewport viewport.Model
	input    textinput.Model
	help     help.Model
	keys     keyMap
	state    chat.State
	messages []models.ChatMessage
	editing  models.MessageID
	notice   string
	width    int
	height   int
}

// NewModel creates a TUI model for room, posting as self.
func NewModel(ctx context.Context, room Room, self models.Author, logger *log.Logger) *Model {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	input := textinput.New()
	input.Placeholder = "Connecting..."
	input.CharLimit = chat.DefaultMaxContentLength
	input.Prompt = "> "

	return &Model{
		ctx:      ctx,
		room:     room,
		self:     self,
		logger:   logger,
		viewport: viewport.New(80, 20),
		input:    input,
		help:     help.New(),
		keys:     newKeyMap(),
		state:    room.State(),
		messages: room.Messages(),
	}
}

// Init applies the room's current state; later changes arrive as [Msg] values.
func (m *Model) Init() tea.Cmd {
	m.render()
	return m.applyState(m.state)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight)
		m.input.Width = max(10, msg.Width-4)
		m.render()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgView:
		m.messages = msg.data.([]models.ChatMessage)
		m.render()
		return m, nil

	case MsgState:
		return m, m.applyState(msg.data.(chat.State))

	case MsgSent, MsgEdited, MsgDeleted:
		if err, _ := msg.data.(error); err != nil {
			m.fail(err)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.pageUp), key.Matches(msg, m.keys.pageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.cancel):
		if !m.editing.IsZero() {
			m.room.CancelEdit(m.editing)
			m.editing = models.MessageID{}
			m.input.Reset()
			m.notice = ""
		}
		return m, nil
	}

	if m.state != chat.Subscribed {
		if key.Matches(msg, m.keys.send) {
			m.notice = styles.warn.Render("Not connected, message not sent")
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.send):
		return m, m.submit()

	case key.Matches(msg, m.keys.edit):
		if last, ok := m.lastOwn(); ok && m.room.BeginEdit(last.ID) {
			m.editing = last.ID
			m.input.SetValue(last.Content)
			m.input.CursorEnd()
			m.notice = styles.help.Render("Editing message, esc to cancel")
		}
		return m, nil

	case key.Matches(msg, m.keys.remove):
		last, ok := m.lastOwn()
		if !ok {
			return m, nil
		}
		return m, m.remove(last.ID)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends or edits the composed text. The room handles validation.
func (m *Model) submit() tea.Cmd {
	content := m.input.Value()
	m.input.Reset()
	m.notice = ""

	ctx, room := m.ctx, m.room
	if id := m.editing; !id.IsZero() {
		m.editing = models.MessageID{}
		return func() tea.Msg {
			_, err := room.Edit(ctx, id, content)
			return editedMsg(err)
		}
	}
	return func() tea.Msg {
		_, err := room.Send(ctx, content)
		return sentMsg(err)
	}
}

func (m *Model) remove(id models.MessageID) tea.Cmd {
	ctx, room := m.ctx, m.room
	return func() tea.Msg {
		return deletedMsg(room.Delete(ctx, id))
	}
}

func (m *Model) applyState(state chat.State) tea.Cmd {
	m.state = state
	if state == chat.Subscribed {
		m.input.Placeholder = "Message #" + m.room.Name()
		return m.input.Focus()
	}

	m.input.Blur()
	if state == chat.Disconnected {
		m.input.Placeholder = "Disconnected, waiting to reconnect..."
	} else {
		m.input.Placeholder = "Connecting..."
	}
	return nil
}

func (m *Model) fail(err error) {
	if chat.IsUserFacing(err) {
		m.notice = styles.warn.Render(userMessage(err))
		return
	}
	m.logger.Error("chat operation failed", "room", m.room.Name(), "error", err)
	m.notice = styles.err.Render("Something went wrong, see the log for details")
}

// lastOwn finds the newest persisted message by the current user.
func (m *Model) lastOwn() (models.ChatMessage, bool) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.Author.ProfileID == m.self.ProfileID && msg.ID.IsPersisted() {
			return msg, true
		}
	}
	return models.ChatMessage{}, false
}

// render rebuilds the transcript and scrolls to the newest message.
func (m *Model) render() {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.renderMessage(msg))
	}
	if len(m.messages) == 0 {
		b.WriteString(styles.help.Render("No messages yet."))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMessage(msg models.ChatMessage) string {
	name := styles.other.Render(msg.Author.Username)
	if msg.Author.ProfileID == m.self.ProfileID {
		name = styles.self.Render(msg.Author.Username)
	}

	line := fmt.Sprintf("%s %s: %s", msg.CreatedAt.Local().Format("15:04"), name, msg.Content)
	switch {
	case msg.Optimistic:
		line += " " + styles.pending.Render("(sending)")
	case msg.PendingEdit:
		line += " " + styles.pending.Render("(editing)")
	}
	return line
}

// View renders the transcript, status, input and help.
func (m *Model) View() string {
	header := styles.title.Render("#"+m.room.Name()) + " " + m.renderState()
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		m.notice,
		m.input.View(),
		m.help.ShortHelpView(m.keys.ShortHelp()),
	)
}

func (m *Model) renderState() string {
	switch m.state {
	case chat.Subscribed:
		return styles.self.Render("● connected")
	case chat.Disconnected:
		return styles.err.Render("● disconnected")
	default:
		return styles.warn.Render("● connecting")
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrEmptyContent):
		return "Message is empty"
	case errors.Is(err, shared.ErrContentTooLong):
		return fmt.Sprintf("Message is longer than %d characters", chat.DefaultMaxContentLength)
	case errors.Is(err, shared.ErrNotSubscribed):
		return "Not connected, message not sent"
	case errors.Is(err, shared.ErrForbidden):
		return "You can only change your own messages"
	}
	return err.Error()
}
