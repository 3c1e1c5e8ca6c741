package position

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFromOffset(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		offset int
		want   Point
	}{
		{"empty text", "", 0, Point{0, 0}},
		{"start", "a=1", 0, Point{0, 0}},
		{"middle of first line", "a=1", 2, Point{0, 2}},
		{"end of first line", "a=1", 3, Point{0, 3}},
		{"right after newline", "a=1\nb=2", 4, Point{1, 0}},
		{"second line", "a=1\nb=2", 6, Point{1, 2}},
		{"on the newline itself", "a=1\nb=2", 3, Point{0, 3}},
		{"blank lines", "\n\n\n", 3, Point{3, 0}},
		{"negative clamps to start", "abc", -4, Point{0, 0}},
		{"past end clamps to end", "ab\ncd", 99, Point{1, 2}},
		{"multibyte runes count once", "héllo\nwörld", 8, Point{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromOffset(tt.text, tt.offset))
		})
	}
}

func TestToOffset(t *testing.T) {
	text := "ab\ncd\n\nefg"

	tests := []struct {
		name string
		p    Point
		want int
	}{
		{"origin", Point{0, 0}, 0},
		{"end of first line", Point{0, 2}, 2},
		{"second line start", Point{1, 0}, 3},
		{"empty line", Point{2, 0}, 6},
		{"last line end", Point{3, 3}, 10},
		{"column past line end clamps", Point{0, 40}, 2},
		{"line past end clamps", Point{12, 0}, 10},
		{"negative line", Point{-1, 3}, 0},
		{"negative column", Point{1, -2}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToOffset(text, tt.p))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"a",
		"\n",
		"a=1",
		"def f():\n\treturn 1\n",
		"\n\nx\n\n",
		"日本語\nテキスト\n",
		strings.Repeat("line of code\n", 200),
	}

	for _, text := range texts {
		n := utf8.RuneCountInString(text)
		for p := 0; p <= n; p++ {
			pt := FromOffset(text, p)
			if !assert.Equal(t, p, ToOffset(text, pt), "text=%q offset=%d point=%v", text, p, pt) {
				return
			}
		}
	}
}

func TestWireLine(t *testing.T) {
	text := "one\ntwo\nthree"
	assert.Equal(t, 1, WireLine(text, 0))
	assert.Equal(t, 1, WireLine(text, 3))
	assert.Equal(t, 2, WireLine(text, 4))
	assert.Equal(t, 3, WireLine(text, len(text)))

	// Matches text[:offset].split("\n").length for every offset.
	for off := 0; off <= len(text); off++ {
		assert.Equal(t, len(strings.Split(text[:off], "\n")), WireLine(text, off))
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp("abc", -1))
	assert.Equal(t, 2, Clamp("abc", 2))
	assert.Equal(t, 3, Clamp("abc", 10))
	assert.Equal(t, 2, Clamp("éé", 5))
}

func TestStatsOf(t *testing.T) {
	assert.Equal(t, Stats{Lines: 1, Chars: 0}, StatsOf(""))
	assert.Equal(t, Stats{Lines: 2, Chars: 4}, StatsOf("a=1\n"))
	assert.Equal(t, Stats{Lines: 3, Chars: 7}, StatsOf("ab\ncd\né"))
	assert.Len(t, Lines("ab\ncd\n"), 3)
}
