package terminal

import (
	"strings"
	"sync"

	"golang.org/x/term"

	"coderun/internal/lineedit"
)

const showCursor = "\x1b[?25h"

// Surface is the console as seen by one session.
type Surface struct {
	console *Console
	input   chan lineedit.Event
	done    chan struct{}

	raw     bool
	restore *term.State

	mu     sync.Mutex
	cols   int
	rows   int
	closed bool
}

var eolNormalizer = strings.NewReplacer("\r\n", "\r\n", "\n", "\r\n")

// Write draws text. In raw mode a bare line feed no longer returns the
// carriage, so every "\n" is sent as "\r\n".
func (s *Surface) Write(text string) {
	if s.isClosed() {
		return
	}
	if s.raw {
		text = eolNormalizer.Replace(text)
	}
	s.console.write(text)
}

// WriteLine draws text followed by a line break.
func (s *Surface) WriteLine(text string) {
	s.Write(text + "\n")
}

// Focus makes sure the cursor is visible.
func (s *Surface) Focus() {
	if s.raw {
		s.Write(showCursor)
	}
}

// Fit records the current terminal size.
func (s *Surface) Fit() {
	fd := s.console.outFd
	if fd < 0 {
		fd = s.console.inFd
	}
	if fd < 0 || !term.IsTerminal(fd) {
		return
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
}

// Size returns the size recorded by the last Fit, or zeros when unknown.
func (s *Surface) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// WatchResize refits the surface whenever the terminal is resized.
func (s *Surface) WatchResize() func() {
	return watchResize(s.Fit)
}

// Input returns keystrokes typed while this surface is active. The channel
// is closed when stdin reaches EOF.
func (s *Surface) Input() <-chan lineedit.Event {
	return s.input
}

// Dispose restores the terminal mode and detaches the surface from the
// console. It is safe to call more than once.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.console.detach(s)
	if s.restore != nil {
		return term.Restore(s.console.inFd, s.restore)
	}
	return nil
}

func (s *Surface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
