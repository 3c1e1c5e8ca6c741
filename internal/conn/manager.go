package conn

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

// ErrAlreadyStarted is returned by Start on a Manager that has been started.
var ErrAlreadyStarted = errors.New("conn: manager already started")

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	Dialer         Dialer          // defaults to WebsocketDialer
	Scheduler      Scheduler       // defaults to time.AfterFunc
	ReconnectDelay time.Duration   // defaults to DefaultReconnectDelay
	Backoff        backoff.BackOff // overrides ReconnectDelay when set
	EventBuffer    int             // defaults to 256
	Logger         *log.Logger
}

// Manager maintains at most one live connection to a room endpoint.
type Manager struct {
	url    string
	dialer Dialer
	sched  Scheduler
	policy backoff.BackOff
	logger *log.Logger
	events chan Event

	// emitMu orders event publication across the dial, read and failure paths.
	emitMu sync.Mutex

	mu      sync.Mutex // protects the fields below
	ctx     context.Context
	state   State
	current *attempt
	timer   Timer
	closed  bool

	writeMu sync.Mutex
}

// attempt is one connection attempt and, once dialled, its transport.
type attempt struct {
	t Transport
}

// NewManager returns a Manager for url in the disconnected state.
func NewManager(url string, opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{HandshakeTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = wallClock{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewConstantBackOff(opts.ReconnectDelay)
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[conn] ", log.LstdFlags)
	}
	return &Manager{
		url:    url,
		dialer: opts.Dialer,
		sched:  opts.Scheduler,
		policy: opts.Backoff,
		logger: opts.Logger,
		events: make(chan Event, opts.EventBuffer),
		state:  StateDisconnected,
	}
}

// Events returns the stream of lifecycle and message events.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// URL returns the endpoint this manager connects to.
func (m *Manager) URL() string {
	return m.url
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start opens the first connection. Cancelling ctx shuts the manager down:
// the live connection is closed and no further reconnects are scheduled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.ctx = ctx
	a := &attempt{}
	m.current = a
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Printf("Connecting to %s", m.url)
	go m.connect(a)
	go func() {
		<-ctx.Done()
		m.shutdown()
	}()
	return nil
}

// Send writes data if the connection is open and reports whether it was
// written. Nothing is queued: callers must not assume delivery.
func (m *Manager) Send(data []byte) bool {
	m.mu.Lock()
	if m.state != StateOpen || m.current == nil {
		m.mu.Unlock()
		return false
	}
	a := m.current
	m.mu.Unlock()

	m.writeMu.Lock()
	err := a.t.WriteMessage(data)
	m.writeMu.Unlock()
	if err != nil {
		// The caller may be the event consumer; failing inline could block
		// on a full event channel.
		go m.fail(a, err)
		return false
	}
	return true
}

func (m *Manager) connect(a *attempt) {
	t, err := m.dialer.Dial(m.ctx, m.url)
	if err != nil {
		m.fail(a, err)
		return
	}

	m.emitMu.Lock()
	m.mu.Lock()
	if m.closed || m.current != a {
		m.mu.Unlock()
		m.emitMu.Unlock()
		t.Close()
		return
	}
	a.t = t
	m.state = StateOpen
	m.policy.Reset()
	m.mu.Unlock()
	m.logger.Printf("Connected to %s", m.url)
	m.emit(Event{Kind: EventConnected})
	m.emitMu.Unlock()

	m.readLoop(a)
}

func (m *Manager) readLoop(a *attempt) {
	for {
		data, err := a.t.ReadMessage()
		if err != nil {
			m.fail(a, err)
			return
		}
		m.emitMu.Lock()
		if m.isCurrent(a) {
			m.emit(Event{Kind: EventMessage, Data: data})
		}
		m.emitMu.Unlock()
	}
}

// fail moves a live attempt to reconnect-pending and schedules the retry.
// Failures of attempts that are no longer current are ignored.
func (m *Manager) fail(a *attempt, err error) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.closed || m.current != a {
		m.mu.Unlock()
		return
	}
	m.current = nil
	if a.t != nil {
		a.t.Close()
	}

	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.state = StateDisconnected
	} else {
		m.state = StateReconnectPending
		m.timer = m.sched.AfterFunc(delay, m.reconnect)
	}
	m.mu.Unlock()

	if !isCleanClose(err) {
		m.logger.Printf("Connection error: %v", err)
		m.emit(Event{Kind: EventError, Err: err})
	}
	m.emit(Event{Kind: EventDisconnected})

	if delay == backoff.Stop {
		m.logger.Printf("Reconnect policy gave up on %s", m.url)
		return
	}
	m.logger.Printf("Disconnected, reconnecting in %v", delay)
}

// reconnect is the scheduled reconnect-pending → connecting transition.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.closed || m.state != StateReconnectPending {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	a := &attempt{}
	m.current = a
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Printf("Attempting to reconnect to %s", m.url)
	go m.connect(a)
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.current != nil && m.current.t != nil {
		m.current.t.Close()
	}
	m.current = nil
	m.state = StateDisconnected
	m.logger.Printf("Connection manager for %s stopped", m.url)
}

func (m *Manager) isCurrent(a *attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.current == a
}

// emit publishes ev unless the manager's context is done.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func isCleanClose(err error) bool {
	return err == nil || errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
