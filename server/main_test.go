package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/conn"
	"collabtext/internal/engine"
	"collabtext/internal/position"
	"collabtext/internal/relay"
	"collabtext/internal/rooms"
	"collabtext/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := relay.NewHub(st, nil, log.New(io.Discard, "", 0))
	go hub.Run(ctx)

	srv := httptest.NewServer(newRouter(&api{store: st, hub: hub}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoomAPI(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	client := rooms.NewClient(srv.URL + "/api")

	room, err := client.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, room.ID)

	got, err := client.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Empty(t, got.Code)

	_, err = client.Get(ctx, "missing")
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/rooms/"+room.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = client.Get(ctx, room.ID)
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)
}

func TestAutocompleteAnswersEmpty(t *testing.T) {
	srv := newTestServer(t)
	client := rooms.NewClient(srv.URL + "/api")

	got, err := client.Suggest(context.Background(), "pri", "python")
	require.NoError(t, err)
	assert.Empty(t, got)

	resp, err := http.Post(srv.URL+"/api/autocomplete", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "healthy")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:8080", resp.Header.Get("Access-Control-Allow-Origin"))
}

// docView records the latest document an engine showed.
type docView struct {
	engine.NopView
	mu        sync.Mutex
	text      string
	connected bool
	self      string
}

func (v *docView) Identity(id, color string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.self = id
}

func (v *docView) DocumentReplaced(text string, caret int, stats position.Stats, by string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.text = text
}

func (v *docView) ConnectionChanged(connected bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = connected
}

func (v *docView) snapshot() (string, string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text, v.self, v.connected
}

func join(t *testing.T, ctx context.Context, wsBase string, room rooms.Room) (*engine.Engine, *docView) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	mgr := conn.NewManager(rooms.WebsocketURL(wsBase, room.ID), conn.Options{Logger: quiet})
	v := &docView{}
	eng := engine.New(mgr, engine.Options{RoomID: room.ID, View: v, Logger: quiet})
	eng.Load(room.Code)
	go eng.Run(ctx, mgr.Events())
	require.NoError(t, mgr.Start(ctx))

	require.Eventually(t, func() bool {
		_, self, connected := v.snapshot()
		return connected && self != ""
	}, 2*time.Second, 10*time.Millisecond)
	return eng, v
}

func TestTwoEditorsConverge(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := rooms.NewClient(srv.URL + "/api")
	room, err := client.Create(ctx)
	require.NoError(t, err)
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")

	alice, _ := join(t, ctx, wsBase, room)
	_, bobView := join(t, ctx, wsBase, room)

	alice.LocalEdit("print('hello')\n", 15)
	require.Eventually(t, func() bool {
		text, _, _ := bobView.snapshot()
		return text == "print('hello')\n"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := client.Get(ctx, room.ID)
		return err == nil && got.Code == "print('hello')\n"
	}, 2*time.Second, 10*time.Millisecond)
}
