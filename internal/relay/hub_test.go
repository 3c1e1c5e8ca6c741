package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"collabtext/internal/protocol"
	"collabtext/internal/store"
)

type testServer struct {
	url   string
	store *store.Bolt
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(st, nil, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(srv.Close)

	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), store: st}
}

func (s *testServer) dial(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url+"/ws/"+roomID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (s *testServer) room(t *testing.T, code string) string {
	t.Helper()
	ctx := context.Background()
	room, err := s.store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.store.UpdateCode(ctx, room.ID, code))
	return room.ID
}

func read[T protocol.Message](t *testing.T, ws *websocket.Conn) T {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, err := protocol.Decode(data)
	require.NoError(t, err, string(data))
	typed, ok := m.(T)
	require.True(t, ok, "unexpected frame %s", data)
	return typed
}

func send(t *testing.T, ws *websocket.Conn, frame []byte, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func TestJoinSyncsAndAnnounces(t *testing.T) {
	s := newTestServer(t)
	roomID := s.room(t, "print('hi')\n")

	a := s.dial(t, roomID)
	syncA := read[*protocol.Sync](t, a)
	assert.Equal(t, "print('hi')\n", syncA.Code)
	assert.Regexp(t, `^user_[0-9a-f]{8}$`, syncA.UserID)
	assert.Contains(t, Palette, syncA.Color)
	assert.Equal(t, 1, syncA.ActiveUsers)
	assert.Equal(t, []protocol.User{{UserID: syncA.UserID, Color: syncA.Color}}, syncA.Users)

	selfJoin := read[*protocol.UserJoined](t, a)
	assert.Equal(t, syncA.UserID, selfJoin.UserID)

	b := s.dial(t, roomID)
	syncB := read[*protocol.Sync](t, b)
	assert.NotEqual(t, syncA.UserID, syncB.UserID)
	assert.Equal(t, 2, syncB.ActiveUsers)
	require.Len(t, syncB.Users, 2)
	assert.Equal(t, syncA.UserID, syncB.Users[0].UserID)

	joined := read[*protocol.UserJoined](t, a)
	assert.Equal(t, syncB.UserID, joined.UserID)
	assert.Equal(t, syncB.Color, joined.Color)
	assert.Equal(t, 2, joined.ActiveUsers)

	room, err := s.store.Get(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, 2, room.ActiveUsers)
}

// lateWriteStore lands one more edit right after the first room lookup, as
// if another participant typed while a client was joining.
type lateWriteStore struct {
	store.Store
	once sync.Once
	code string
}

func (s *lateWriteStore) Get(ctx context.Context, id string) (store.Room, error) {
	room, err := s.Store.Get(ctx, id)
	s.once.Do(func() { s.Store.UpdateCode(ctx, id, s.code) })
	return room, err
}

func TestSyncCarriesEditsMadeWhileJoining(t *testing.T) {
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	room, err := st.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateCode(ctx, room.ID, "old"))

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	hub := NewHub(&lateWriteStore{Store: st, code: "new"}, nil, nil)
	go hub.Run(runCtx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/"+room.ID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	assert.Equal(t, "new", read[*protocol.Sync](t, ws).Code)
}

func TestUpdateIsPersistedAndBroadcast(t *testing.T) {
	s := newTestServer(t)
	roomID := s.room(t, "")

	a := s.dial(t, roomID)
	syncA := read[*protocol.Sync](t, a)
	read[*protocol.UserJoined](t, a)
	b := s.dial(t, roomID)
	read[*protocol.Sync](t, b)
	read[*protocol.UserJoined](t, b)
	read[*protocol.UserJoined](t, a)

	// the client-side id in the frame is replaced by the connection's id
	frame, err := protocol.EncodeUpdate(roomID, "x = 1", "user_local")
	send(t, a, frame, err)

	toB := read[*protocol.CodeUpdate](t, b)
	assert.Equal(t, "x = 1", toB.Code)
	assert.Equal(t, syncA.UserID, toB.UserID)
	assert.Equal(t, syncA.Color, toB.Color)

	echo := read[*protocol.CodeUpdate](t, a)
	assert.Equal(t, syncA.UserID, echo.UserID)

	room, err := s.store.Get(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "x = 1", room.Code)
}

func TestCursorPositionIsRelayed(t *testing.T) {
	s := newTestServer(t)
	roomID := s.room(t, "a\nb")

	a := s.dial(t, roomID)
	syncA := read[*protocol.Sync](t, a)
	read[*protocol.UserJoined](t, a)
	b := s.dial(t, roomID)
	read[*protocol.Sync](t, b)
	read[*protocol.UserJoined](t, b)

	frame, err := protocol.EncodeCursorPosition(syncA.UserID, 2, 2)
	send(t, a, frame, err)

	got := read[*protocol.CursorUpdate](t, b)
	assert.Equal(t, syncA.UserID, got.UserID)
	assert.Equal(t, syncA.Color, got.Color)
	assert.Equal(t, 2, got.Position)
	assert.Equal(t, 2, got.Line)
}

func TestLeaveIsAnnounced(t *testing.T) {
	s := newTestServer(t)
	roomID := s.room(t, "")

	a := s.dial(t, roomID)
	syncA := read[*protocol.Sync](t, a)
	read[*protocol.UserJoined](t, a)
	b := s.dial(t, roomID)
	syncB := read[*protocol.Sync](t, b)
	read[*protocol.UserJoined](t, a)

	b.Close()

	left := read[*protocol.UserLeft](t, a)
	assert.Equal(t, syncB.UserID, left.UserID)
	assert.Equal(t, 1, left.ActiveUsers)
	assert.Equal(t, []protocol.User{{UserID: syncA.UserID, Color: syncA.Color}}, left.Users)

	room, err := s.store.Get(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, 1, room.ActiveUsers)
}

func TestUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	ws := s.dial(t, "no-such-room")

	msg := read[*protocol.Error](t, ws)
	assert.Equal(t, "Room not found", msg.Message)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestCursorUpdateRewrite(t *testing.T) {
	in, err := protocol.EncodeCursorPosition("user_local", 7, 3)
	require.NoError(t, err)

	out, err := cursorUpdate(in, "user_12345678", "#4ECDC4")
	require.NoError(t, err)

	assert.False(t, gjson.GetBytes(out, "action").Exists())
	assert.Equal(t, "cursor_update", gjson.GetBytes(out, "type").String())
	assert.Equal(t, "user_12345678", gjson.GetBytes(out, "user_id").String())
	assert.Equal(t, "#4ECDC4", gjson.GetBytes(out, "color").String())
	assert.Equal(t, int64(7), gjson.GetBytes(out, "position").Int())
	assert.Equal(t, int64(3), gjson.GetBytes(out, "line").Int())
}

func TestLocalBus(t *testing.T) {
	ctx := context.Background()
	bus := NewLocalBus()

	var got []string
	unsubscribe, err := bus.Subscribe(ctx, "r1", func(p []byte) { got = append(got, string(p)) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "r1", []byte("one")))
	require.NoError(t, bus.Publish(ctx, "r2", []byte("elsewhere")))
	unsubscribe()
	require.NoError(t, bus.Publish(ctx, "r1", []byte("two")))

	assert.Equal(t, []string{"one"}, got)
	assert.Empty(t, bus.topics)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "collabtext:room:abc", Channel("abc"))
}
