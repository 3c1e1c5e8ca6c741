package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Message
	}{
		{
			name:  "sync",
			frame: `{"type":"sync","code":"a=1","active_users":2,"user_id":"u1","color":"#0000ff","users":[{"user_id":"u1","color":"#0000ff"},{"user_id":"u2","color":"#ff0000"}]}`,
			want: &Sync{
				UserID: "u1", Color: "#0000ff", Code: "a=1", ActiveUsers: 2,
				Users: []User{{UserID: "u1", Color: "#0000ff"}, {UserID: "u2", Color: "#ff0000"}},
			},
		},
		{
			name:  "code_update",
			frame: `{"type":"code_update","code":"x","user_id":"u2","color":"#ff0000"}`,
			want:  &CodeUpdate{UserID: "u2", Code: "x", Color: "#ff0000"},
		},
		{
			name:  "user_joined",
			frame: `{"type":"user_joined","active_users":2,"user_id":"u2","color":"#ff0000","users":[{"user_id":"u2","color":"#ff0000"}]}`,
			want:  &UserJoined{UserID: "u2", Color: "#ff0000", ActiveUsers: 2, Users: []User{{UserID: "u2", Color: "#ff0000"}}},
		},
		{
			name:  "user_left",
			frame: `{"type":"user_left","active_users":1,"user_id":"u2","users":[]}`,
			want:  &UserLeft{UserID: "u2", ActiveUsers: 1, Users: []User{}},
		},
		{
			name:  "cursor_update with null position",
			frame: `{"type":"cursor_update","user_id":"u2","color":"#ff0000","position":null,"line":null}`,
			want:  &CursorUpdate{UserID: "u2", Color: "#ff0000"},
		},
		{
			name:  "error",
			frame: `{"type":"error","message":"Room not found"}`,
			want:  &Error{Message: "Room not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"missing tag", `{"code":"x"}`, ErrMalformed},
		{"numeric tag", `{"type":3}`, ErrMalformed},
		{"wrong field type", `{"type":"code_update","code":12}`, ErrMalformed},
		{"unknown tag", `{"type":"presence_v2","user_id":"u9"}`, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.frame))
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeIntents(t *testing.T) {
	b, err := EncodeUpdate("room-1", "a=1", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"update","room_id":"room-1","code":"a=1","user_id":"u1"}`, string(b))

	b, err = EncodeCursorPosition("u1", 3, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"cursor_position","user_id":"u1","position":3,"line":1}`, string(b))

	action, err := PeekAction(b)
	require.NoError(t, err)
	assert.Equal(t, ActionCursorPosition, action)
}

func TestEncodeServerMessage(t *testing.T) {
	b, err := Encode(&CodeUpdate{UserID: "u1", Code: "a=1", Color: "#0000ff"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"code_update","user_id":"u1","code":"a=1","color":"#0000ff"}`, string(b))

	m, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, &CodeUpdate{UserID: "u1", Code: "a=1", Color: "#0000ff"}, m)
}

func TestEncodePreservesLargeDocuments(t *testing.T) {
	code := make([]byte, 2<<20)
	for i := range code {
		code[i] = 'a' + byte(i%26)
		if i%80 == 79 {
			code[i] = '\n'
		}
	}

	b, err := EncodeUpdate("r", string(code), "u1")
	require.NoError(t, err)

	var u Update
	require.NoError(t, json.Unmarshal(b, &u))
	assert.Equal(t, string(code), u.Code)
}

func TestDecodeIntent(t *testing.T) {
	i, err := DecodeIntent([]byte(`{"action":"update","room_id":"r","code":"c","user_id":"u"}`))
	require.NoError(t, err)
	assert.Equal(t, &Update{RoomID: "r", Code: "c", UserID: "u"}, i)

	_, err = DecodeIntent([]byte(`{"action":"join"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}
