// Package protocol defines the realtime channel's wire messages and their
// JSON encoding.
//
// Frames are JSON objects tagged by a single field. Client frames carry an
// "action" ("update", "cursor_position"); server frames carry a "type"
// ("sync", "code_update", "user_joined", "user_left", "cursor_update",
// "error").
//
// There are no acknowledgements or sequence numbers. Every update holds the
// whole document, and whichever update a client applies last wins.
//
// Decoding never fails hard on forward-compatible input: an unknown tag
// yields ErrUnknownType so the caller can log and skip the frame, and garbage
// yields ErrMalformed. Neither should interrupt the connection.
package protocol
