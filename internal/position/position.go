// Package position maps linear character offsets in a document to line and
// column pairs and back.
//
// Offsets count runes, not bytes. Everything here is recomputed from the full
// text on every call: the document is replaced wholesale on each update, so
// there is nothing worth caching between calls.
package position

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Point is a 0-indexed line and column within a document.
// Column counts runes since the last newline.
type Point struct {
	Line   int
	Column int
}

// String returns a human-readable representation of the point.
func (p Point) String() string {
	return fmt.Sprintf("(%d:%d)", p.Line, p.Column)
}

// Stats is the derived view state shown next to the editor.
type Stats struct {
	Lines int // number of lines, always at least 1
	Chars int // number of runes
}

// FromOffset maps a rune offset to a Point. Offsets outside [0, len] are
// clamped, so a cursor reported against a stale, longer document still lands
// at the end of the current one.
func FromOffset(text string, offset int) Point {
	var p Point
	if offset <= 0 {
		return p
	}
	i := 0
	for _, r := range text {
		if i >= offset {
			break
		}
		if r == '\n' {
			p.Line++
			p.Column = 0
		} else {
			p.Column++
		}
		i++
	}
	return p
}

// ToOffset maps a Point back to a rune offset. A column past the end of its
// line clamps to the line end, and a line past the last line clamps to the
// end of the text.
func ToOffset(text string, p Point) int {
	if p.Line < 0 {
		return 0
	}
	col := p.Column
	if col < 0 {
		col = 0
	}
	line, offset := 0, 0
	for _, r := range text {
		if line == p.Line {
			if r == '\n' || col == 0 {
				return offset
			}
			col--
		} else if r == '\n' {
			line++
		}
		offset++
	}
	return offset
}

// WireLine returns the 1-based line number sent with cursor_position messages.
func WireLine(text string, offset int) int {
	return FromOffset(text, offset).Line + 1
}

// Clamp limits offset to the valid caret range for text.
func Clamp(text string, offset int) int {
	if offset < 0 {
		return 0
	}
	if n := utf8.RuneCountInString(text); offset > n {
		return n
	}
	return offset
}

// Lines splits text into its lines, keeping a trailing empty line when the
// text ends in a newline.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}

// StatsOf returns the line and character counts for text.
func StatsOf(text string) Stats {
	return Stats{
		Lines: strings.Count(text, "\n") + 1,
		Chars: utf8.RuneCountInString(text),
	}
}
