package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/harmony/internal/chat"
	"github.com/desertthunder/harmony/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgView MsgKind = iota
	MsgState
	MsgSent
	MsgEdited
	MsgDeleted
)

// ViewMsg is the constructor for [MsgView]
func ViewMsg(messages []models.ChatMessage) Msg {
	return Msg{kind: MsgView, data: messages}
}

// StateMsg is the constructor for [MsgState]
func StateMsg(state chat.State) Msg {
	return Msg{kind: MsgState, data: state}
}

// sentMsg is the constructor for [MsgSent]
func sentMsg(err error) Msg {
	return Msg{kind: MsgSent, data: err}
}

// editedMsg is the constructor for [MsgEdited]
func editedMsg(err error) Msg {
	return Msg{kind: MsgEdited, data: err}
}

// deletedMsg is the constructor for [MsgDeleted]
func deletedMsg(err error) Msg {
	return Msg{kind: MsgDeleted, data: err}
}

// Sender delivers messages into a running program; [tea.Program] implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bind forwards every view emitted by room into s and returns the unsubscribe func.
func Bind(s Sender, room interface{ Subscribe(chat.View) func() }) func() {
	return room.Subscribe(func(messages []models.ChatMessage) {
		s.Send(ViewMsg(messages))
	})
}

// StateHandler returns a state callback for [chat.Room.Open] that forwards into s.
func StateHandler(s Sender) func(chat.State) {
	return func(state chat.State) { s.Send(StateMsg(state)) }
}
