// Package relay is the server side of the realtime channel: it keeps the
// websocket clients of every room and fans their frames out to each other.
package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slices"

	"collabtext/internal/protocol"
	"collabtext/internal/store"
)

// Palette is the set of colors handed to participants, in order of arrival.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type room struct {
	clients     map[*Client]bool
	order       []*Client
	unsubscribe func()
}

type request struct {
	client *Client
	reply  chan []protocol.User
}

type envelope struct {
	roomID  string
	payload []byte
}

// Hub maintains the clients of every room and delivers room frames to them.
type Hub struct {
	store  store.Store
	bus    Bus
	logger *log.Logger

	register   chan request
	unregister chan request
	deliver    chan envelope
	done       chan struct{}

	// owned by Run
	rooms  map[string]*room
	joined int
}

// NewHub returns a hub backed by st. A nil bus means a LocalBus.
func NewHub(st store.Store, bus Bus, logger *log.Logger) *Hub {
	if bus == nil {
		bus = NewLocalBus()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[relay] ", log.LstdFlags)
	}
	return &Hub{
		store:      st,
		bus:        bus,
		logger:     logger,
		register:   make(chan request),
		unregister: make(chan request),
		deliver:    make(chan envelope, 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]*room),
	}
}

// Run serves registrations and deliveries until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for id, r := range h.rooms {
			r.unsubscribe()
			for _, c := range r.order {
				close(c.send)
			}
			delete(h.rooms, id)
		}
	}()

	for {
		select {
		case req := <-h.register:
			req.reply <- h.add(ctx, req.client)
		case req := <-h.unregister:
			req.reply <- h.remove(req.client)
		case env := <-h.deliver:
			h.broadcast(env)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) add(ctx context.Context, c *Client) []protocol.User {
	r, ok := h.rooms[c.roomID]
	if !ok {
		roomID := c.roomID
		unsubscribe, err := h.bus.Subscribe(ctx, roomID, func(payload []byte) {
			select {
			case h.deliver <- envelope{roomID: roomID, payload: payload}:
			case <-h.done:
			}
		})
		if err != nil {
			h.logger.Printf("Error subscribing to room %s: %v", roomID, err)
			return nil
		}
		r = &room{clients: make(map[*Client]bool), unsubscribe: unsubscribe}
		h.rooms[roomID] = r
	}

	// Updates persisted after this read are broadcast once add returns, so
	// they reach the new client as code_update frames.
	doc, err := h.store.Get(ctx, c.roomID)
	if err != nil {
		h.logger.Printf("Error loading room %s: %v", c.roomID, err)
		if len(r.clients) == 0 {
			r.unsubscribe()
			delete(h.rooms, c.roomID)
		}
		return nil
	}

	c.color = Palette[h.joined%len(Palette)]
	h.joined++
	r.clients[c] = true
	r.order = append(r.order, c)
	users := r.users()

	frame, err := protocol.Encode(&protocol.Sync{
		UserID:      c.userID,
		Color:       c.color,
		Code:        doc.Code,
		ActiveUsers: len(users),
		Users:       users,
	})
	if err != nil {
		h.logger.Printf("Error encoding sync: %v", err)
	} else {
		c.send <- frame
	}
	h.logger.Printf("Client %s registered in room %s. Total clients: %d", c.userID, c.roomID, len(r.clients))
	return users
}

func (h *Hub) remove(c *Client) []protocol.User {
	r, ok := h.rooms[c.roomID]
	if !ok {
		return nil
	}
	h.drop(r, c)
	if len(r.clients) == 0 {
		r.unsubscribe()
		delete(h.rooms, c.roomID)
		h.logger.Printf("Room %s is now empty", c.roomID)
		return nil
	}
	return r.users()
}

func (h *Hub) drop(r *room, c *Client) {
	if !r.clients[c] {
		return
	}
	delete(r.clients, c)
	for i, o := range r.order {
		if o == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	close(c.send)
	h.logger.Printf("Client %s unregistered from room %s. Total clients: %d", c.userID, c.roomID, len(r.clients))
}

func (h *Hub) broadcast(env envelope) {
	r, ok := h.rooms[env.roomID]
	if !ok {
		return
	}
	for _, c := range slices.Clone(r.order) {
		select {
		case c.send <- env.payload:
		default:
			h.logger.Printf("Client %s is not keeping up, dropping it", c.userID)
			h.drop(r, c)
		}
	}
}

func (r *room) users() []protocol.User {
	users := make([]protocol.User, 0, len(r.order))
	for _, c := range r.order {
		users = append(users, protocol.User{UserID: c.userID, Color: c.color})
	}
	return users
}

var errHubClosed = errors.New("relay: hub stopped")

func (h *Hub) call(ch chan request, c *Client) ([]protocol.User, error) {
	req := request{client: c, reply: make(chan []protocol.User, 1)}
	select {
	case ch <- req:
	case <-h.done:
		return nil, errHubClosed
	}
	select {
	case users := <-req.reply:
		return users, nil
	case <-h.done:
		return nil, errHubClosed
	}
}

// Publish sends a frame to everyone in roomID, on every instance sharing the bus.
func (h *Hub) Publish(ctx context.Context, roomID string, frame []byte) {
	if err := h.bus.Publish(ctx, roomID, frame); err != nil {
		h.logger.Printf("Error publishing to room %s: %v", roomID, err)
	}
}

// ServeWs upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, roomID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Println(err)
		return
	}
	ctx := context.WithoutCancel(r.Context())

	if _, err := h.store.Get(ctx, roomID); err != nil {
		msg := "Room not found"
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Printf("Error loading room %s: %v", roomID, err)
			msg = "Could not load room"
		}
		if frame, err := protocol.Encode(&protocol.Error{Message: msg}); err == nil {
			ws.WriteMessage(websocket.TextMessage, frame)
		}
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.Close()
		return
	}

	c := &Client{
		hub:    h,
		conn:   ws,
		send:   make(chan []byte, 256),
		roomID: roomID,
		userID: newUserID(),
	}
	users, err := h.call(h.register, c)
	if err != nil || users == nil {
		ws.Close()
		return
	}
	go c.writePump()

	if _, err := h.store.AdjustActiveUsers(ctx, roomID, 1); err != nil {
		h.logger.Printf("Error counting user in room %s: %v", roomID, err)
	}
	if frame, err := protocol.Encode(&protocol.UserJoined{
		UserID:      c.userID,
		Color:       c.color,
		ActiveUsers: len(users),
		Users:       users,
	}); err == nil {
		h.Publish(ctx, roomID, frame)
	}
	h.logger.Printf("User %s joined room %s", c.userID, roomID)

	c.readPump(ctx)

	users, err = h.call(h.unregister, c)
	if err != nil {
		return
	}
	if _, err := h.store.AdjustActiveUsers(ctx, roomID, -1); err != nil {
		h.logger.Printf("Error uncounting user in room %s: %v", roomID, err)
	}
	if len(users) > 0 {
		if frame, err := protocol.Encode(&protocol.UserLeft{
			UserID:      c.userID,
			ActiveUsers: len(users),
			Users:       users,
		}); err == nil {
			h.Publish(ctx, roomID, frame)
		}
	}
	h.logger.Printf("User %s disconnected from room %s", c.userID, roomID)
}

func newUserID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
