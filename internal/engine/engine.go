// Package engine is the client-side sync engine. It owns the local copy of the
// room's document, the local caret and identity, and the presence registry,
// and it decides which inbound updates to apply.
//
// The conflict policy is last-write-wins at message-arrival granularity:
// every local edit sends the whole document, every inbound update from
// another participant replaces the whole document, and nothing is merged.
// Two participants typing at once will clobber each other until the next
// message crosses; this is the intended behaviour of the protocol.
//
// All state is owned by one goroutine running Run. Connection events and
// local intents are fed into one inbox and handled in the order they arrive,
// each to completion, so nothing inside the engine needs a lock. Local edits
// queued with Edit run against the engine's own document when their turn
// comes, so a keystroke queued behind a peer update lands on the peer's text.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"collabtext/internal/conn"
	"collabtext/internal/position"
	"collabtext/internal/presence"
	"collabtext/internal/protocol"
)

// Sender delivers an outbound frame. It reports false when the frame was
// dropped; the engine never retries.
type Sender interface {
	Send(data []byte) bool
}

// Options configures an Engine.
type Options struct {
	RoomID string
	View   View
	Logger *log.Logger
	// FallbackID tags outbound updates sent before the server assigned an id.
	// Generated when empty.
	FallbackID string
}

// Snapshot is a copy of the engine's state.
type Snapshot struct {
	Text         string
	Caret        int
	SelfID       string
	SelfColor    string
	ActiveUsers  int
	Connected    bool
	Participants []presence.Participant
}

type intentKind int

const (
	intentEdit intentKind = iota
	intentCaret
	intentApply
)

type intent struct {
	kind  intentKind
	text  string
	caret int
	apply func(text string, caret int) (string, int)
}

// item is one entry of the Run inbox: a connection event or a local intent.
type item struct {
	event  *conn.Event
	intent intent
}

// Engine coordinates the document, presence and connection for one room.
type Engine struct {
	roomID     string
	sender     Sender
	view       View
	logger     *log.Logger
	fallbackID string

	text        string
	caret       int
	selfID      string
	selfColor   string
	activeUsers int
	connected   bool
	presence    *presence.Registry

	inbox chan item
	done  chan struct{}
}

// New returns an engine that sends through sender.
func New(sender Sender, opts Options) *Engine {
	if opts.View == nil {
		opts.View = NopView{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[engine] ", log.LstdFlags)
	}
	if opts.FallbackID == "" {
		opts.FallbackID = "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	}
	return &Engine{
		roomID:     opts.RoomID,
		sender:     sender,
		view:       opts.View,
		logger:     opts.Logger,
		fallbackID: opts.FallbackID,
		presence:   presence.NewRegistry(),
		inbox:      make(chan item, 64),
		done:       make(chan struct{}),
	}
}

// Load sets the initial document, typically the text returned by the room
// fetch. Call it before Run.
func (e *Engine) Load(text string) {
	e.text = text
	e.caret = position.Clamp(text, e.caret)
	e.view.DocumentReplaced(e.text, e.caret, position.StatsOf(e.text), "")
}

// Run consumes connection events and local intents until ctx is done. Both
// sources share one inbox and are handled strictly in arrival order.
func (e *Engine) Run(ctx context.Context, events <-chan conn.Event) error {
	defer close(e.done)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case e.inbox <- item{event: &ev}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-e.inbox:
			if it.event != nil {
				e.HandleEvent(*it.event)
				continue
			}
			e.applyIntent(it.intent)
		}
	}
}

func (e *Engine) applyIntent(in intent) {
	switch in.kind {
	case intentEdit:
		e.ApplyEdit(in.text, in.caret)
	case intentCaret:
		e.ApplyCaret(in.caret)
	case intentApply:
		text, caret := in.apply(e.text, e.caret)
		switch {
		case text != e.text:
			e.ApplyEdit(text, caret)
		case position.Clamp(text, caret) != e.caret:
			e.ApplyCaret(caret)
		}
	}
}

// LocalEdit queues a local edit for the Run loop. Safe to call from any
// goroutine. The whole new text is sent, followed by the caret.
func (e *Engine) LocalEdit(text string, caret int) {
	e.enqueue(intent{kind: intentEdit, text: text, caret: caret})
}

// MoveCaret queues a caret-only move for the Run loop. Safe to call from any
// goroutine.
func (e *Engine) MoveCaret(caret int) {
	e.enqueue(intent{kind: intentCaret, caret: caret})
}

// Edit queues f to run on the Run loop against the document and caret as
// they are then. A changed text is applied as a local edit and a moved caret
// as a caret move; nothing is sent when f changes neither. Safe to call from
// any goroutine.
func (e *Engine) Edit(f func(text string, caret int) (string, int)) {
	e.enqueue(intent{kind: intentApply, apply: f})
}

func (e *Engine) enqueue(in intent) {
	select {
	case e.inbox <- item{intent: in}:
	case <-e.done:
	}
}

// HandleEvent applies one connection event. It must only be called from the
// goroutine that owns the engine.
func (e *Engine) HandleEvent(ev conn.Event) {
	switch ev.Kind {
	case conn.EventConnected:
		e.connected = true
		e.view.ConnectionChanged(true)
		e.view.Status("Connected")
	case conn.EventDisconnected:
		e.connected = false
		e.view.ConnectionChanged(false)
		e.view.Status("Disconnected")
	case conn.EventError:
		e.view.Error(fmt.Sprintf("Connection error: %v. Attempting to reconnect...", ev.Err))
	case conn.EventMessage:
		msg, err := protocol.Decode(ev.Data)
		if err != nil {
			e.logger.Printf("Dropping inbound frame: %v", err)
			return
		}
		e.HandleMessage(msg)
	}
}

// HandleMessage applies one decoded protocol message.
func (e *Engine) HandleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Sync:
		e.onSync(m)
	case *protocol.CodeUpdate:
		e.onCodeUpdate(m)
	case *protocol.UserJoined:
		e.onUserJoined(m)
	case *protocol.UserLeft:
		e.onUserLeft(m)
	case *protocol.CursorUpdate:
		e.onCursorUpdate(m)
	case *protocol.Error:
		e.logger.Printf("Server error: %s", m.Message)
		e.view.Error(m.Message)
	default:
		e.logger.Printf("Ignoring unhandled message %T", msg)
	}
}

func (e *Engine) onSync(m *protocol.Sync) {
	before := e.presence.List()
	e.selfID = m.UserID
	e.selfColor = m.Color
	e.presence.SetSelf(m.UserID)
	e.presence.Replace(participants(m.Users))
	e.activeUsers = m.ActiveUsers
	e.replaceText(m.Code)

	e.logger.Printf("Joined as %s with color %s", m.UserID, m.Color)
	e.view.Identity(e.selfID, e.selfColor)
	// The rebuilt roster carries no carets, and a reconnect sync drops
	// whoever left while we were away.
	for _, p := range before {
		e.view.RemoteCursorRemoved(p.ID)
	}
	e.view.DocumentReplaced(e.text, e.caret, position.StatsOf(e.text), "")
	e.view.PresenceChanged(e.presence.List(), e.activeUsers)
}

func (e *Engine) onCodeUpdate(m *protocol.CodeUpdate) {
	if e.isSelf(m.UserID) {
		return
	}
	e.replaceText(m.Code)
	e.view.DocumentReplaced(e.text, e.caret, position.StatsOf(e.text), m.UserID)
	e.view.Status(fmt.Sprintf("Code updated by peer (%s)", m.UserID))

	// Remote carets were placed against the old text.
	for _, p := range e.presence.List() {
		if p.Cursor != nil {
			e.view.RemoteCursorMoved(p, position.FromOffset(e.text, p.Cursor.Offset))
		}
	}
}

func (e *Engine) onUserJoined(m *protocol.UserJoined) {
	e.activeUsers = m.ActiveUsers
	for _, p := range participants(m.Users) {
		e.presence.AddIfAbsent(p)
	}
	if m.Color != "" {
		e.presence.AddIfAbsent(presence.Participant{ID: m.UserID, Color: m.Color})
	}
	e.view.PresenceChanged(e.presence.List(), e.activeUsers)
	e.view.Status(fmt.Sprintf("User %s joined (%d active)", m.UserID, m.ActiveUsers))
}

func (e *Engine) onUserLeft(m *protocol.UserLeft) {
	e.activeUsers = m.ActiveUsers
	if e.presence.Remove(m.UserID) {
		e.view.RemoteCursorRemoved(m.UserID)
	}
	e.view.PresenceChanged(e.presence.List(), e.activeUsers)
	e.view.Status(fmt.Sprintf("User left (%d active)", m.ActiveUsers))
}

func (e *Engine) onCursorUpdate(m *protocol.CursorUpdate) {
	if e.isSelf(m.UserID) {
		return
	}
	if !e.presence.UpdateCursor(m.UserID, presence.Cursor{Offset: m.Position, Line: m.Line}) {
		e.logger.Printf("Dropping cursor for unknown participant %s", m.UserID)
		return
	}
	p, _ := e.presence.Get(m.UserID)
	e.view.RemoteCursorMoved(p, position.FromOffset(e.text, m.Position))
}

// ApplyEdit replaces the local text, reports it to the view and sends it.
// It must only be called from the goroutine that owns the engine.
func (e *Engine) ApplyEdit(text string, caret int) {
	e.text = text
	e.caret = position.Clamp(text, caret)
	e.view.DocumentReplaced(e.text, e.caret, position.StatsOf(e.text), e.localID())
	if !e.connected {
		return
	}

	data, err := protocol.EncodeUpdate(e.roomID, e.text, e.localID())
	if err != nil {
		e.logger.Printf("Encoding update: %v", err)
		return
	}
	e.sender.Send(data)
	e.view.Status("Syncing...")
	e.sendCursor()
}

// ApplyCaret records a caret move, reports it to the view and sends it. It
// must only be called from the goroutine that owns the engine.
func (e *Engine) ApplyCaret(caret int) {
	e.caret = position.Clamp(e.text, caret)
	e.view.DocumentReplaced(e.text, e.caret, position.StatsOf(e.text), e.localID())
	if !e.connected {
		return
	}
	e.sendCursor()
}

func (e *Engine) sendCursor() {
	data, err := protocol.EncodeCursorPosition(e.localID(), e.caret, position.WireLine(e.text, e.caret))
	if err != nil {
		e.logger.Printf("Encoding cursor position: %v", err)
		return
	}
	e.sender.Send(data)
}

// Snapshot returns a copy of the engine state. Only call it from the owning
// goroutine or while Run is not running.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Text:         e.text,
		Caret:        e.caret,
		SelfID:       e.selfID,
		SelfColor:    e.selfColor,
		ActiveUsers:  e.activeUsers,
		Connected:    e.connected,
		Participants: e.presence.List(),
	}
}

func (e *Engine) replaceText(text string) {
	e.text = text
	e.caret = position.Clamp(text, e.caret)
}

func (e *Engine) localID() string {
	if e.selfID != "" {
		return e.selfID
	}
	return e.fallbackID
}

func (e *Engine) isSelf(id string) bool {
	return id != "" && (id == e.selfID || id == e.fallbackID)
}

func participants(users []protocol.User) []presence.Participant {
	out := make([]presence.Participant, 0, len(users))
	for _, u := range users {
		out = append(out, presence.Participant{ID: u.UserID, Color: u.Color})
	}
	return out
}
