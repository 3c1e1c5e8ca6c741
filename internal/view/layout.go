package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"

	"collabtext/internal/position"
)

// Color converts a participant's "#rrggbb" color to a terminal color.
// Unparseable colors fall back to the terminal default.
func Color(hex string) tcell.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return tcell.ColorDefault
	}
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

// textOn picks black or white text, whichever reads better on bg.
func textOn(hex string) tcell.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return tcell.ColorDefault
	}
	l, _, _ := c.Lab()
	if l > 0.6 {
		return tcell.ColorBlack
	}
	return tcell.ColorWhite
}

// gutterWidth is the width of the line-number column, including one space of
// padding.
func gutterWidth(lines int) int {
	return len(strconv.Itoa(max(lines, 1))) + 1
}

// displayColumn returns the screen column of rune column col on line.
func displayColumn(line string, col int) int {
	r := []rune(line)
	col = min(max(col, 0), len(r))
	return uniseg.StringWidth(string(r[:col]))
}

// scroll returns the first visible line so that line stays within a window
// of height rows starting at top.
func scroll(top, line, height int) int {
	if height <= 0 {
		return line
	}
	if line < top {
		return line
	}
	if line >= top+height {
		return line - height + 1
	}
	return top
}

type statusInfo struct {
	connected bool
	active    int
	stats     position.Stats
	caret     position.Point
	status    string
}

func statusLine(s statusInfo) string {
	conn := "○ Disconnected"
	if s.connected {
		conn = "● Connected"
	}
	parts := []string{
		conn,
		fmt.Sprintf("Users: %d", s.active),
		fmt.Sprintf("Ln %d, Col %d", s.caret.Line+1, s.caret.Column+1),
		fmt.Sprintf("Lines: %d", s.stats.Lines),
		fmt.Sprintf("Chars: %d", s.stats.Chars),
	}
	if s.status != "" {
		parts = append(parts, s.status)
	}
	return strings.Join(parts, " | ")
}

// truncate cuts s to at most width screen columns.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	w := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		if w+g.Width() > width {
			break
		}
		w += g.Width()
		b.WriteString(g.Str())
	}
	return b.String()
}
