// Package view renders a room in the terminal with tcell and turns key
// presses into local edits.
package view

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"collabtext/internal/position"
	"collabtext/internal/presence"
)

// Editor applies the user's edits to the document it owns and reports the
// result back through DocumentReplaced. *engine.Engine implements it.
type Editor interface {
	Edit(f func(text string, caret int) (string, int))
}

// Suggester fetches completions. *rooms.Client implements it.
type Suggester interface {
	Suggest(ctx context.Context, prefix, language string) ([]string, error)
}

// Options configures a Terminal.
type Options struct {
	RoomID    string
	ShareLink string
	Language  string
	Suggester Suggester
	Logger    *log.Logger
}

type remoteCursor struct {
	user presence.Participant
	at   position.Point
}

type state struct {
	text  string
	caret int
	stats position.Stats

	selfID    string
	selfColor string
	users     []presence.Participant
	active    int
	cursors   map[string]remoteCursor
	connected bool

	status      string
	notice      string
	suggestions []string
	top         int
}

// Terminal is the editor screen. Its View methods may be called from any
// goroutine; they record what changed and wake the event loop to redraw.
// The text it shows is only ever set by DocumentReplaced.
type Terminal struct {
	screen tcell.Screen
	opts   Options
	editor Editor
	logger *log.Logger

	mu sync.Mutex
	st state
}

// New returns a terminal drawing on screen. The screen is initialised by Run.
func New(screen tcell.Screen, opts Options) *Terminal {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[view] ", log.LstdFlags)
	}
	t := &Terminal{
		screen: screen,
		opts:   opts,
		logger: opts.Logger,
		st: state{
			stats:   position.StatsOf(""),
			cursors: make(map[string]remoteCursor),
		},
	}
	if opts.ShareLink != "" {
		t.st.notice = "Share: " + opts.ShareLink
	}
	return t
}

// Attach sets where edits go. Call it before Run.
func (t *Terminal) Attach(e Editor) {
	t.editor = e
}

// Run draws and handles keys until the user quits or ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	if err := t.screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer t.screen.Fini()

	go func() {
		<-ctx.Done()
		t.screen.PostEvent(tcell.NewEventInterrupt(ctx.Err()))
	}()

	t.draw()
	for {
		switch ev := t.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			if t.handleKey(ctx, ev) {
				return nil
			}
		case *tcell.EventResize:
			t.screen.Sync()
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
		}
		t.draw()
	}
}

func (t *Terminal) wake() {
	// A full queue already holds a pending redraw.
	_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

func (t *Terminal) Identity(userID, color string) {
	t.mu.Lock()
	t.st.selfID, t.st.selfColor = userID, color
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) DocumentReplaced(text string, caret int, stats position.Stats, by string) {
	t.mu.Lock()
	if text != t.st.text {
		t.st.suggestions = nil
	}
	t.st.text, t.st.caret, t.st.stats = text, caret, stats
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) PresenceChanged(users []presence.Participant, activeUsers int) {
	t.mu.Lock()
	t.st.users, t.st.active = users, activeUsers
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) RemoteCursorMoved(user presence.Participant, at position.Point) {
	t.mu.Lock()
	t.st.cursors[user.ID] = remoteCursor{user: user, at: at}
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) RemoteCursorRemoved(userID string) {
	t.mu.Lock()
	delete(t.st.cursors, userID)
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) ConnectionChanged(connected bool) {
	t.mu.Lock()
	t.st.connected = connected
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) Status(msg string) {
	t.mu.Lock()
	t.st.status = msg
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) Error(msg string) {
	t.mu.Lock()
	t.st.notice = "Error: " + msg
	t.mu.Unlock()
	t.wake()
}

// handleKey applies one key press and reports whether the user asked to quit.
func (t *Terminal) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return true
	case tcell.KeyRune:
		t.edit(func(text string, caret int) (string, int) {
			return insertText(text, caret, string(ev.Rune()))
		})
	case tcell.KeyEnter:
		t.edit(func(text string, caret int) (string, int) {
			return insertText(text, caret, "\n")
		})
	case tcell.KeyTab:
		t.mu.Lock()
		suggestions := t.st.suggestions
		t.st.suggestions = nil
		t.mu.Unlock()
		t.edit(func(text string, caret int) (string, int) {
			if len(suggestions) > 0 {
				if rest := completion(wordPrefix(text, caret), suggestions[0]); rest != "" {
					return insertText(text, caret, rest)
				}
			}
			return insertText(text, caret, tabText)
		})
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		t.edit(backspace)
	case tcell.KeyDelete:
		t.edit(deleteForward)
	case tcell.KeyLeft:
		t.move(func(text string, caret int) int { return moveHorizontal(text, caret, -1) })
	case tcell.KeyRight:
		t.move(func(text string, caret int) int { return moveHorizontal(text, caret, 1) })
	case tcell.KeyUp:
		t.move(func(text string, caret int) int { return moveVertical(text, caret, -1) })
	case tcell.KeyDown:
		t.move(func(text string, caret int) int { return moveVertical(text, caret, 1) })
	case tcell.KeyHome:
		t.move(lineStart)
	case tcell.KeyEnd:
		t.move(lineEnd)
	case tcell.KeyCtrlL:
		t.edit(func(string, int) (string, int) { return "", 0 })
	case tcell.KeyCtrlT:
		t.suggest(ctx)
	}
	return false
}

// edit hands f to the editor, which runs it against its own document. The
// editor is called without the lock because its hooks take it.
func (t *Terminal) edit(f func(text string, caret int) (string, int)) {
	if t.editor != nil {
		t.editor.Edit(f)
	}
}

func (t *Terminal) move(f func(text string, caret int) int) {
	t.edit(func(text string, caret int) (string, int) {
		return text, f(text, caret)
	})
}

func (t *Terminal) suggest(ctx context.Context) {
	t.mu.Lock()
	prefix := wordPrefix(t.st.text, t.st.caret)
	t.mu.Unlock()

	if t.opts.Suggester == nil || prefix == "" {
		t.setNotice("Nothing to complete", nil)
		return
	}
	go func() {
		got, err := t.opts.Suggester.Suggest(ctx, prefix, t.opts.Language)
		if err != nil {
			t.logger.Printf("Autocomplete for %q: %v", prefix, err)
			t.setNotice("Autocomplete failed: "+err.Error(), nil)
			return
		}
		if len(got) == 0 {
			t.setNotice("No suggestions", nil)
			return
		}
		t.setNotice("Tab to accept: "+strings.Join(got, "  "), got)
	}()
}

func (t *Terminal) setNotice(msg string, suggestions []string) {
	t.mu.Lock()
	t.st.notice = msg
	t.st.suggestions = suggestions
	t.mu.Unlock()
	t.wake()
}

func (t *Terminal) draw() {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.screen
	s.Clear()
	width, height := s.Size()
	if width <= 0 || height < 4 {
		s.Show()
		return
	}

	header := fmt.Sprintf(" CollabText  room %s", t.opts.RoomID)
	if t.st.selfID != "" {
		header += "  you: " + t.st.selfID
	}
	selfStyle := tcell.StyleDefault.Bold(true)
	if t.st.selfColor != "" {
		selfStyle = selfStyle.Foreground(Color(t.st.selfColor))
	}
	drawText(s, 0, 0, width, truncate(header, width), selfStyle)

	x := uniseg.StringWidth(header) + 2
	for _, u := range t.st.users {
		label := " " + u.ID + " "
		drawText(s, x, 0, width, label, tcell.StyleDefault.Background(Color(u.Color)).Foreground(textOn(u.Color)))
		x += uniseg.StringWidth(label) + 1
	}

	bodyTop, bodyHeight := 1, height-3
	lines := position.Lines(t.st.text)
	caret := position.FromOffset(t.st.text, t.st.caret)
	t.st.top = scroll(t.st.top, caret.Line, bodyHeight)
	gutter := gutterWidth(len(lines))
	gutterStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)

	for row := 0; row < bodyHeight; row++ {
		n := t.st.top + row
		if n >= len(lines) {
			break
		}
		y := bodyTop + row
		drawText(s, 0, y, gutter, fmt.Sprintf("%*d ", gutter-1, n+1), gutterStyle)
		drawText(s, gutter, y, width, lines[n], tcell.StyleDefault)
	}

	for _, rc := range t.st.cursors {
		row := rc.at.Line - t.st.top
		if row < 0 || row >= bodyHeight || rc.at.Line >= len(lines) {
			continue
		}
		cx := gutter + displayColumn(lines[rc.at.Line], rc.at.Column)
		if cx >= width {
			continue
		}
		r, comb, style, _ := s.GetContent(cx, bodyTop+row)
		if r == 0 {
			r = ' '
		}
		s.SetContent(cx, bodyTop+row, r, comb, style.Background(Color(rc.user.Color)).Foreground(textOn(rc.user.Color)))
	}

	statusStyle := tcell.StyleDefault.Reverse(true)
	status := statusLine(statusInfo{
		connected: t.st.connected,
		active:    t.st.active,
		stats:     t.st.stats,
		caret:     caret,
		status:    t.st.status,
	})
	fill(s, height-2, width, statusStyle)
	drawText(s, 0, height-2, width, truncate(status, width), statusStyle)
	drawText(s, 0, height-1, width, truncate(t.st.notice, width), tcell.StyleDefault)

	if row := caret.Line - t.st.top; row >= 0 && row < bodyHeight && caret.Line < len(lines) {
		s.ShowCursor(gutter+displayColumn(lines[caret.Line], caret.Column), bodyTop+row)
	} else {
		s.HideCursor()
	}
	s.Show()
}

func drawText(s tcell.Screen, x, y, maxX int, text string, style tcell.Style) {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		w := g.Width()
		if x+w > maxX {
			return
		}
		runes := g.Runes()
		s.SetContent(x, y, runes[0], runes[1:], style)
		x += max(w, 1)
	}
}

func fill(s tcell.Screen, y, width int, style tcell.Style) {
	for x := 0; x < width; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}
