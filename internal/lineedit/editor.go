// Package lineedit mirrors what the remote process will read as pending stdin
// and keeps the local terminal display in step with it.
package lineedit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Escape sequences written to the screen and recognised on input.
const (
	insertModeOn  = "\x1b[4h"
	insertModeOff = "\x1b[4l"
	cursorLeft    = "\x1b[D"
	cursorRight   = "\x1b[C"
	eraseNarrow   = "\b \b"
	eraseWide     = "\b \b\b \b"
	newline       = "\r\n"
	ss3           = "\x1bO"
)

// Screen receives the visual side effects of editing.
type Screen interface {
	Write(s string)
}

// Sink receives completed lines. It owns the awaiting-response flag: while
// Awaiting reports true, no line may go to the runner.
type Sink interface {
	Awaiting() bool
	// SubmitLine sends line when idle and queues it otherwise.
	SubmitLine(line string)
	// QueueLines appends lines to the pending queue in order.
	QueueLines(lines []string)
}

// EventKind distinguishes terminal input events.
type EventKind int

const (
	// EventData is raw terminal input: keystrokes or pasted text.
	EventData EventKind = iota
	// EventCompositionStart marks the start of input-method composition.
	EventCompositionStart
	// EventCompositionEnd delivers the composed text.
	EventCompositionEnd
)

// Event is one unit of terminal input.
type Event struct {
	Kind EventKind
	Text string
}

// Editor holds the single line the user is typing and its cursor. It is not
// safe for concurrent use; the session event loop is its only caller.
type Editor struct {
	screen Screen
	sink   Sink

	buf          []rune
	cursor       int
	composing    bool
	lastComposed string
	// pending holds an escape sequence cut off at the end of the last chunk.
	pending string
}

// New creates an empty editor.
func New(screen Screen, sink Sink) *Editor {
	return &Editor{screen: screen, sink: sink}
}

func (e *Editor) String() string {
	return string(e.buf)
}

// Len returns the buffer length in characters.
func (e *Editor) Len() int {
	return len(e.buf)
}

// Cursor returns the cursor offset in characters.
func (e *Editor) Cursor() int {
	return e.cursor
}

// Composing reports whether an input-method composition is in progress.
func (e *Editor) Composing() bool {
	return e.composing
}

// Reset empties the buffer without touching the screen.
func (e *Editor) Reset() {
	e.buf = nil
	e.cursor = 0
	e.lastComposed = ""
	e.pending = ""
}

// Handle dispatches a terminal input event.
func (e *Editor) Handle(ev Event) {
	switch ev.Kind {
	case EventData:
		e.HandleData(ev.Text)
	case EventCompositionStart:
		e.CompositionStart()
	case EventCompositionEnd:
		e.CompositionEnd(ev.Text)
	}
}

// HandleData routes a chunk of raw terminal input. The interrupt key is the
// caller's business and must be filtered out before reaching the editor.
func (e *Editor) HandleData(data string) {
	if data == "" {
		return
	}

	if e.sink.Awaiting() {
		data = e.takePending() + data
		// Only whole lines survive while a response is outstanding.
		if hasLineBreak(data) {
			if lines := nonEmpty(cleanLines(SplitLines(data))); len(lines) > 0 {
				e.sink.QueueLines(lines)
			}
		}
		return
	}

	if e.composing || (e.lastComposed != "" && data == e.lastComposed) {
		e.lastComposed = ""
		return
	}

	data = e.takePending() + data
	if hasLineBreak(data) {
		e.Paste(data)
		return
	}

	e.handleKeys(data)
}

func (e *Editor) takePending() string {
	p := e.pending
	e.pending = ""
	return p
}

// handleKeys walks data one sequence at a time. Printable runs are inserted,
// backspace and the horizontal arrows edit, everything else is ignored. An
// escape sequence left open at the end of data is kept for the next chunk.
func (e *Editor) handleKeys(data string) {
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			e.InsertText(text.String())
			text.Reset()
		}
	}

	var state byte
	for len(data) > 0 {
		seq, width, n, newState := ansi.DecodeSequence(data, state, nil)
		if n <= 0 {
			break
		}
		if newState != ansi.NormalState && n == len(data) {
			e.pending = data
			break
		}
		state = newState
		data = data[n:]

		if width > 0 {
			text.WriteString(seq)
			continue
		}

		// SS3 keys decode as ESC O followed by a plain final byte.
		if seq == ss3 {
			if data == "" {
				e.pending = seq
				break
			}
			seq += data[:1]
			data = data[1:]
		}

		flush()
		switch seq {
		case "\b", "\x7f":
			e.Backspace()
		case cursorLeft, ss3 + "D":
			e.MoveLeft()
		case cursorRight, ss3 + "C":
			e.MoveRight()
		}
	}
	flush()
}

// InsertText inserts text at the cursor. Appending at the end of the line is
// a plain write; inserting mid-line wraps the write in terminal insert mode
// so the tail shifts right.
func (e *Editor) InsertText(text string) {
	if text == "" {
		return
	}
	runes := []rune(text)

	if e.cursor == len(e.buf) {
		e.screen.Write(text)
		e.buf = append(e.buf, runes...)
		e.cursor += len(runes)
		return
	}

	e.screen.Write(insertModeOn + text + insertModeOff)
	e.buf = slices.Insert(e.buf, e.cursor, runes...)
	e.cursor += len(runes)
}

// Backspace removes the character before the cursor. It erases two columns
// for wide characters but always removes exactly one character.
func (e *Editor) Backspace() {
	if e.cursor == 0 {
		return
	}

	cols := columns(e.buf[e.cursor-1])
	if e.cursor == len(e.buf) {
		if cols == 2 {
			e.screen.Write(eraseWide)
		} else {
			e.screen.Write(eraseNarrow)
		}
	} else {
		e.screen.Write(strings.Repeat("\b", cols) + fmt.Sprintf("\x1b[%dP", cols))
	}

	e.buf = slices.Delete(e.buf, e.cursor-1, e.cursor)
	e.cursor--
}

// MoveLeft moves the cursor one character left.
func (e *Editor) MoveLeft() {
	if e.cursor == 0 {
		return
	}
	e.cursor--
	e.screen.Write(strings.Repeat(cursorLeft, columns(e.buf[e.cursor])))
}

// MoveRight moves the cursor one character right.
func (e *Editor) MoveRight() {
	if e.cursor >= len(e.buf) {
		return
	}
	r := e.buf[e.cursor]
	e.cursor++
	e.screen.Write(strings.Repeat(cursorRight, columns(r)))
}

// Submit completes the current line and hands it to the sink. The buffer is
// reset whatever the sink does with the line.
func (e *Editor) Submit() {
	line := string(e.buf)
	e.screen.Write(newline)
	e.Reset()
	e.sink.SubmitLine(line)
}

// Paste handles text carrying line breaks. The first segment is edited into
// the current line, which is then submitted; the remaining non-empty
// segments are queued so they are typed in one by one as responses arrive.
func (e *Editor) Paste(text string) {
	lines := SplitLines(text)
	e.handleKeys(lines[0])
	e.pending = ""
	e.Submit()

	if rest := nonEmpty(cleanLines(lines[1:])); len(rest) > 0 {
		e.sink.QueueLines(rest)
	}
}

// CompositionStart suppresses raw input until CompositionEnd.
func (e *Editor) CompositionStart() {
	e.composing = true
}

// CompositionEnd inserts the composed text. The terminal usually delivers
// the same text again as plain data; that copy is dropped once.
func (e *Editor) CompositionEnd(text string) {
	e.composing = false
	if e.sink.Awaiting() {
		return
	}
	e.lastComposed = text
	e.InsertText(text)
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// SplitLines splits text on CRLF, CR and LF.
func SplitLines(text string) []string {
	return strings.Split(lineBreaks.Replace(text), "\n")
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// cleanLines applies each line's own edit keys and drops other control
// sequences, leaving the text the editor would have submitted.
func cleanLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		scratch := &Editor{screen: discardScreen{}}
		scratch.handleKeys(l)
		out[i] = scratch.String()
	}
	return out
}

type discardScreen struct{}

func (discardScreen) Write(string) {}
