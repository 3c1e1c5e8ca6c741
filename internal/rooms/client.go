// Package rooms talks to the room server's request/response API: creating and
// fetching rooms, and asking for autocomplete suggestions.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrRoomNotFound is returned when the server has no room with the given id.
	ErrRoomNotFound = errors.New("rooms: room not found")
	// ErrInvalidRef is returned by ParseRoomRef for input naming no room.
	ErrInvalidRef = errors.New("rooms: invalid room reference")
)

// Room is the server's view of a room.
type Room struct {
	ID          string    `json:"room_id"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActiveUsers int       `json:"active_users"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Status)
}

// Client calls the room API rooted at BaseURL (e.g. http://localhost:8000/api).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with a 5 second timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Create asks the server for a new, empty room.
func (c *Client) Create(ctx context.Context) (Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", struct{}{}, &room); err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// Get fetches a room and its current document.
func (c *Client) Get(ctx context.Context, id string) (Room, error) {
	var room Room
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(id), nil, &room)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return Room{}, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room %s: %w", id, err)
	}
	return room, nil
}

type suggestRequest struct {
	Prefix   string `json:"prefix"`
	Language string `json:"language"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggest requests completions for prefix in language.
func (c *Client) Suggest(ctx context.Context, prefix, language string) ([]string, error) {
	var resp suggestResponse
	if err := c.do(ctx, http.MethodPost, "/autocomplete", suggestRequest{prefix, language}, &resp); err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	return resp.Suggestions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	target := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: target, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ParseRoomRef accepts either a bare room id or a shared link carrying the id
// in its "room" query parameter.
func ParseRoomRef(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidRef
	}
	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return input, nil
	}
	id := u.Query().Get("room")
	if id == "" {
		return "", fmt.Errorf("%w: %s has no room parameter", ErrInvalidRef, input)
	}
	return id, nil
}

// WebsocketURL returns the realtime endpoint for roomID under wsBase
// (e.g. ws://localhost:8000).
func WebsocketURL(wsBase, roomID string) string {
	return strings.TrimRight(wsBase, "/") + "/ws/" + url.PathEscape(roomID)
}

// ShareLink returns the link other participants can paste to join.
func ShareLink(base, roomID string) string {
	return strings.TrimRight(base, "/") + "/?room=" + url.QueryEscape(roomID)
}
