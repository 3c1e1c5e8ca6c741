package relay

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/sjson"

	"collabtext/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20
)

// Client is one websocket participant in a room.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	roomID string
	userID string
	color  string
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Printf("Client %s read error: %v", c.userID, err)
			}
			return
		}
		c.handle(ctx, message)
	}
}

func (c *Client) handle(ctx context.Context, message []byte) {
	action, err := protocol.PeekAction(message)
	if err != nil {
		c.hub.logger.Printf("Error decoding frame from %s: %v", c.userID, err)
		return
	}

	switch action {
	case protocol.ActionUpdate:
		intent, err := protocol.DecodeIntent(message)
		if err != nil {
			c.hub.logger.Printf("Error decoding update from %s: %v", c.userID, err)
			return
		}
		code := intent.(*protocol.Update).Code
		if err := c.hub.store.UpdateCode(ctx, c.roomID, code); err != nil {
			c.hub.logger.Printf("Error saving room %s: %v", c.roomID, err)
		}
		frame, err := protocol.Encode(&protocol.CodeUpdate{UserID: c.userID, Code: code, Color: c.color})
		if err != nil {
			c.hub.logger.Printf("Error encoding code_update: %v", err)
			return
		}
		c.hub.Publish(ctx, c.roomID, frame)
	case protocol.ActionCursorPosition:
		frame, err := cursorUpdate(message, c.userID, c.color)
		if err != nil {
			c.hub.logger.Printf("Error rewriting cursor_position from %s: %v", c.userID, err)
			return
		}
		c.hub.Publish(ctx, c.roomID, frame)
	default:
		c.hub.logger.Printf("Unknown action: %s", action)
	}
}

// cursorUpdate turns a client's cursor_position frame into the cursor_update
// broadcast, stamped with the sender's server-side identity.
func cursorUpdate(message []byte, userID, color string) ([]byte, error) {
	out, err := sjson.DeleteBytes(message, "action")
	if err == nil {
		out, err = sjson.SetBytes(out, "type", string(protocol.KindCursorUpdate))
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "user_id", userID)
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "color", color)
	}
	if err != nil {
		return nil, errors.Join(protocol.ErrMalformed, err)
	}
	return out, nil
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for {
		message, ok := <-c.send
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.logger.Printf("Error writing to %s: %v", c.userID, err)
			return
		}
	}
}
