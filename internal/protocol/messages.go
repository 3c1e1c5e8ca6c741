package protocol

// Kind tags a server-to-client message in its "type" field.
type Kind string

const (
	KindSync         Kind = "sync"
	KindCodeUpdate   Kind = "code_update"
	KindUserJoined   Kind = "user_joined"
	KindUserLeft     Kind = "user_left"
	KindCursorUpdate Kind = "cursor_update"
	KindError        Kind = "error"
)

// Action tags a client-to-server message in its "action" field.
type Action string

const (
	ActionUpdate         Action = "update"
	ActionCursorPosition Action = "cursor_position"
)

// User is one roster entry as carried in sync, user_joined and user_left.
type User struct {
	UserID string `json:"user_id"`
	Color  string `json:"color"`
}

// Message is a decoded server-to-client message.
type Message interface {
	Kind() Kind
}

// Sync is sent once, as the first message after a connection opens.
type Sync struct {
	UserID      string `json:"user_id"`
	Color       string `json:"color"`
	Code        string `json:"code"`
	ActiveUsers int    `json:"active_users"`
	Users       []User `json:"users"`
}

// CodeUpdate carries the full document text of some participant's edit.
type CodeUpdate struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Color  string `json:"color,omitempty"`
}

// UserJoined announces a new participant along with the current roster.
type UserJoined struct {
	UserID      string `json:"user_id"`
	Color       string `json:"color,omitempty"`
	ActiveUsers int    `json:"active_users"`
	Users       []User `json:"users"`
}

// UserLeft announces a departed participant along with the remaining roster.
type UserLeft struct {
	UserID      string `json:"user_id"`
	ActiveUsers int    `json:"active_users"`
	Users       []User `json:"users"`
}

// CursorUpdate relays a participant's caret position.
type CursorUpdate struct {
	UserID   string `json:"user_id"`
	Color    string `json:"color"`
	Position int    `json:"position"`
	Line     int    `json:"line"`
}

// Error is a server-pushed error notice.
type Error struct {
	Message string `json:"message"`
}

func (*Sync) Kind() Kind         { return KindSync }
func (*CodeUpdate) Kind() Kind   { return KindCodeUpdate }
func (*UserJoined) Kind() Kind   { return KindUserJoined }
func (*UserLeft) Kind() Kind     { return KindUserLeft }
func (*CursorUpdate) Kind() Kind { return KindCursorUpdate }
func (*Error) Kind() Kind        { return KindError }

// Intent is an outbound client-to-server message.
type Intent interface {
	Action() Action
}

// Update sends the entire current document.
type Update struct {
	RoomID string `json:"room_id"`
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

// CursorPosition sends the local caret. Line is 1-based.
type CursorPosition struct {
	UserID   string `json:"user_id"`
	Position int    `json:"position"`
	Line     int    `json:"line"`
}

func (*Update) Action() Action         { return ActionUpdate }
func (*CursorPosition) Action() Action { return ActionCursorPosition }
