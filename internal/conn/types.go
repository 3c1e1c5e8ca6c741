package conn

import (
	"context"
	"time"
)

// DefaultReconnectDelay is the fixed wait between a close and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnectPending
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectPending:
		return "reconnect-pending"
	default:
		return "unknown"
	}
}

// EventKind identifies what happened on the connection.
type EventKind int

const (
	// EventConnected fires when a connection attempt completes its handshake.
	EventConnected EventKind = iota
	// EventDisconnected fires once per failed attempt or closed connection.
	EventDisconnected
	// EventMessage carries one inbound frame.
	EventMessage
	// EventError reports a transport error. It always precedes an EventDisconnected.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is published on the Manager's event stream.
type Event struct {
	Kind EventKind
	Data []byte // EventMessage only
	Err  error  // EventError only
}

// Transport is one established connection.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
