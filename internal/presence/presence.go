// Package presence tracks the remote participants of a room and their last
// reported cursors.
//
// A Registry never contains the local participant: once SetSelf has named the
// local id, that id is dropped and every later add of it is ignored.
//
// A Registry is not safe for concurrent use. It belongs to the sync engine's
// event loop and is only mutated in response to protocol events.
package presence

import (
	"golang.org/x/exp/slices"
)

// Cursor is the last caret position a participant reported.
type Cursor struct {
	Offset int // rune offset into the document
	Line   int // 1-based line as sent on the wire
}

// Participant is one remote user in the room.
type Participant struct {
	ID     string
	Color  string
	Cursor *Cursor // nil until the first cursor_update
}

// Registry maps participant id to presence record, in insertion order.
type Registry struct {
	self    string
	order   []string
	entries map[string]*Participant
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Participant)}
}

// SetSelf names the local participant and removes it if already present.
func (r *Registry) SetSelf(id string) {
	r.self = id
	if id != "" {
		r.Remove(id)
	}
}

// Self returns the local participant id, if known.
func (r *Registry) Self() string {
	return r.self
}

// AddIfAbsent inserts p unless its id is already known or is the local id.
// It reports whether an entry was added.
func (r *Registry) AddIfAbsent(p Participant) bool {
	if p.ID == "" || p.ID == r.self {
		return false
	}
	if _, ok := r.entries[p.ID]; ok {
		return false
	}
	cp := p
	if p.Cursor != nil {
		c := *p.Cursor
		cp.Cursor = &c
	}
	r.entries[p.ID] = &cp
	r.order = append(r.order, p.ID)
	return true
}

// Replace discards all entries and rebuilds the registry from roster.
func (r *Registry) Replace(roster []Participant) {
	r.order = r.order[:0]
	clear(r.entries)
	for _, p := range roster {
		r.AddIfAbsent(p)
	}
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

// UpdateCursor records a new cursor for id. Unknown ids are dropped rather
// than creating an entry; the return value reports whether id was known.
func (r *Registry) UpdateCursor(id string, c Cursor) bool {
	p, ok := r.entries[id]
	if !ok {
		return false
	}
	p.Cursor = &c
	return true
}

// Get returns a copy of the participant stored under id.
func (r *Registry) Get(id string) (Participant, bool) {
	p, ok := r.entries[id]
	if !ok {
		return Participant{}, false
	}
	return copyParticipant(p), true
}

// Has reports whether id is present.
func (r *Registry) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of remote participants.
func (r *Registry) Len() int {
	return len(r.order)
}

// List returns copies of all participants in insertion order.
func (r *Registry) List() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyParticipant(r.entries[id]))
	}
	return out
}

func copyParticipant(p *Participant) Participant {
	cp := *p
	if p.Cursor != nil {
		c := *p.Cursor
		cp.Cursor = &c
	}
	return cp
}
