package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrMalformed is returned for frames that are not JSON objects or lack a tag.
	ErrMalformed = errors.New("protocol: malformed message")
	// ErrUnknownType is returned for well-formed frames with an unrecognised tag.
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Decode parses an inbound frame into its typed message. The tag is read
// with gjson first so the frame is unmarshalled only once, into the right type.
func Decode(data []byte) (Message, error) {
	tag, err := peek(data, "type")
	if err != nil {
		return nil, err
	}

	var m Message
	switch Kind(tag) {
	case KindSync:
		m = &Sync{}
	case KindCodeUpdate:
		m = &CodeUpdate{}
	case KindUserJoined:
		m = &UserJoined{}
	case KindUserLeft:
		m = &UserLeft{}
	case KindCursorUpdate:
		m = &CursorUpdate{}
	case KindError:
		m = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return m, nil
}

// Encode serializes a server-to-client message, stamping its "type" tag.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", string(m.Kind()))
}

// EncodeIntent serializes a client-to-server message, stamping its "action" tag.
func EncodeIntent(i Intent) ([]byte, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "action", string(i.Action()))
}

// EncodeUpdate builds the full-document update frame.
func EncodeUpdate(roomID, code, userID string) ([]byte, error) {
	return EncodeIntent(&Update{RoomID: roomID, Code: code, UserID: userID})
}

// EncodeCursorPosition builds the caret position frame.
func EncodeCursorPosition(userID string, position, line int) ([]byte, error) {
	return EncodeIntent(&CursorPosition{UserID: userID, Position: position, Line: line})
}

// PeekAction returns the "action" tag of a client frame without decoding it.
func PeekAction(data []byte) (Action, error) {
	tag, err := peek(data, "action")
	return Action(tag), err
}

// DecodeIntent parses a client frame into its typed intent.
func DecodeIntent(data []byte) (Intent, error) {
	tag, err := PeekAction(data)
	if err != nil {
		return nil, err
	}

	var i Intent
	switch tag {
	case ActionUpdate:
		i = &Update{}
	case ActionCursorPosition:
		i = &CursorPosition{}
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnknownType, string(tag))
	}

	if err := json.Unmarshal(data, i); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return i, nil
}

func peek(data []byte, field string) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", fmt.Errorf("%w: not an object", ErrMalformed)
	}
	tag := root.Get(field)
	if tag.Type != gjson.String {
		return "", fmt.Errorf("%w: missing %q", ErrMalformed, field)
	}
	return tag.Str, nil
}
