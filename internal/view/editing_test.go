package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertText(t *testing.T) {
	tests := []struct {
		text, s   string
		caret     int
		want      string
		wantCaret int
	}{
		{"", "a", 0, "a", 1},
		{"ac", "b", 1, "abc", 2},
		{"héllo", "\n", 2, "hé\nllo", 3},
		{"abc", "xy", 99, "abcxy", 5},
		{"日本", "語", 2, "日本語", 3},
	}
	for _, tt := range tests {
		got, caret := insertText(tt.text, tt.caret, tt.s)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.wantCaret, caret)
	}
}

func TestBackspaceAndDelete(t *testing.T) {
	got, caret := backspace("héllo", 2)
	assert.Equal(t, "hllo", got)
	assert.Equal(t, 1, caret)

	got, caret = backspace("abc", 0)
	assert.Equal(t, "abc", got)
	assert.Equal(t, 0, caret)

	got, caret = deleteForward("héllo", 1)
	assert.Equal(t, "hllo", got)
	assert.Equal(t, 1, caret)

	got, caret = deleteForward("abc", 3)
	assert.Equal(t, "abc", got)
	assert.Equal(t, 3, caret)
}

func TestBackspaceDoesNotAliasInput(t *testing.T) {
	// the same backing runes must not leak between calls
	text := "abcdef"
	a, _ := backspace(text, 3)
	b, _ := backspace(text, 5)
	assert.Equal(t, "abdef", a)
	assert.Equal(t, "abcdf", b)
}

func TestMoves(t *testing.T) {
	text := "first\nab\nthird line"

	assert.Equal(t, 0, moveHorizontal(text, 0, -1))
	assert.Equal(t, len([]rune(text)), moveHorizontal(text, len([]rune(text)), 1))

	// column 4 of "first" down to "ab" clamps to its end
	assert.Equal(t, 8, moveVertical(text, 4, 1))
	assert.Equal(t, 1, moveVertical(text, 7, -1))
	assert.Equal(t, 0, moveVertical(text, 3, -1))
	assert.Equal(t, len([]rune(text)), moveVertical(text, 12, 5))

	assert.Equal(t, 6, lineStart(text, 7))
	assert.Equal(t, 8, lineEnd(text, 6))
	assert.Equal(t, len([]rune(text)), lineEnd(text, 10))
}

func TestWordPrefix(t *testing.T) {
	assert.Equal(t, "fmt.Pri", wordPrefix("x := fmt.Pri", 12))
	assert.Equal(t, "", wordPrefix("foo(", 4))
	assert.Equal(t, "pri", wordPrefix("if x:\n    pri", 13))
	assert.Equal(t, "fo", wordPrefix("foo", 2))
}

func TestCompletion(t *testing.T) {
	assert.Equal(t, "nt(", completion("pri", "print("))
	assert.Equal(t, "", completion("pri", "len("))
}
