package engine

import (
	"collabtext/internal/position"
	"collabtext/internal/presence"
)

// View receives render hooks from the engine. Hooks are called on the
// engine's goroutine with values, never with references into engine state;
// implementations that render elsewhere must hand the values over themselves.
type View interface {
	// Identity reports the id and color the server assigned to this client.
	Identity(userID, color string)
	// DocumentReplaced fires whenever the document or the local caret changed:
	// on an inbound sync or code_update, and after every applied local edit or
	// caret move. by is the id of the participant whose text won, the local
	// id for local changes, and empty for a sync or Load.
	DocumentReplaced(text string, caret int, stats position.Stats, by string)
	// PresenceChanged fires whenever the roster or active-user count changes.
	PresenceChanged(users []presence.Participant, activeUsers int)
	// RemoteCursorMoved places a participant's caret.
	RemoteCursorMoved(user presence.Participant, at position.Point)
	// RemoteCursorRemoved deletes a departed participant's caret.
	RemoteCursorRemoved(userID string)
	// ConnectionChanged drives the connected/disconnected indicator.
	ConnectionChanged(connected bool)
	// Status shows a transient, non-blocking sync status line.
	Status(msg string)
	// Error surfaces an error notice to the user.
	Error(msg string)
}

// NopView ignores every hook. Embed it to implement only some of View.
type NopView struct{}

func (NopView) Identity(string, string)                                {}
func (NopView) DocumentReplaced(string, int, position.Stats, string)   {}
func (NopView) PresenceChanged([]presence.Participant, int)            {}
func (NopView) RemoteCursorMoved(presence.Participant, position.Point) {}
func (NopView) RemoteCursorRemoved(string)                             {}
func (NopView) ConnectionChanged(bool)                                 {}
func (NopView) Status(string)                                          {}
func (NopView) Error(string)                                           {}
