// Package ui implements the chat terminal interface using bubbletea's Elm architecture.
//
// The (view) [Model] renders one room: a scrolling [viewport] of the reconciled message view,
// a status line with the channel state, and a text input for composing.
//
// Views and state changes arrive from the room's goroutines through [Bind] and [StateHandler],
// which forward them into the running program as [Msg] values. Every emitted view scrolls the
// transcript to the bottom. The input only accepts keys while the channel is Subscribed.
//
// Keyboard: enter sends, ctrl+e edits your last message, ctrl+d deletes it, esc cancels an edit,
// pgup/pgdown scroll, ctrl+c quits.
package ui
