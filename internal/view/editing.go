package view

import (
	"strings"
	"unicode"

	"collabtext/internal/position"
)

// Edits work on rune offsets, the same unit the engine and the wire use.

const tabText = "    "

func insertText(text string, caret int, s string) (string, int) {
	r := []rune(text)
	caret = position.Clamp(text, caret)
	ins := []rune(s)
	out := make([]rune, 0, len(r)+len(ins))
	out = append(out, r[:caret]...)
	out = append(out, ins...)
	out = append(out, r[caret:]...)
	return string(out), caret + len(ins)
}

func backspace(text string, caret int) (string, int) {
	r := []rune(text)
	caret = position.Clamp(text, caret)
	if caret == 0 {
		return text, 0
	}
	return string(append(r[:caret-1:caret-1], r[caret:]...)), caret - 1
}

func deleteForward(text string, caret int) (string, int) {
	r := []rune(text)
	caret = position.Clamp(text, caret)
	if caret == len(r) {
		return text, caret
	}
	return string(append(r[:caret:caret], r[caret+1:]...)), caret
}

func moveHorizontal(text string, caret, delta int) int {
	return position.Clamp(text, caret+delta)
}

func moveVertical(text string, caret, delta int) int {
	p := position.FromOffset(text, caret)
	if p.Line+delta < 0 {
		return 0
	}
	p.Line += delta
	return position.ToOffset(text, p)
}

func lineStart(text string, caret int) int {
	p := position.FromOffset(text, caret)
	return position.ToOffset(text, position.Point{Line: p.Line})
}

func lineEnd(text string, caret int) int {
	p := position.FromOffset(text, caret)
	// ToOffset clamps an oversized column to the end of the line.
	return position.ToOffset(text, position.Point{Line: p.Line, Column: len([]rune(text))})
}

// wordPrefix returns the identifier-like run of characters that ends at caret.
func wordPrefix(text string, caret int) string {
	r := []rune(text)
	caret = position.Clamp(text, caret)
	start := caret
	for start > 0 && isWordRune(r[start-1]) {
		start--
	}
	return string(r[start:caret])
}

func isWordRune(c rune) bool {
	return c == '_' || c == '.' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// completion returns what to insert to turn prefix into suggestion, or "" when
// the suggestion does not extend prefix.
func completion(prefix, suggestion string) string {
	if !strings.HasPrefix(suggestion, prefix) {
		return ""
	}
	return suggestion[len(prefix):]
}
