// Package terminal adapts the process tty to the session surface: raw-mode
// keystrokes in, runner output and editor echo out.
package terminal

import (
	"errors"
	"io"
	"os"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"

	"coderun/internal/lineedit"
)

const readBufferSize = 4096

var (
	// ErrNoOutput is returned when the console has nowhere to draw.
	ErrNoOutput = errors.New("terminal output is not available")
	// ErrSurfaceActive is returned when a surface is requested while the
	// previous one has not been disposed.
	ErrSurfaceActive = errors.New("a terminal surface is already active")
)

// Console owns stdin and stdout for the life of the process. Surfaces come
// and go with sessions; a single reader goroutine forwards keystrokes to
// whichever surface is active.
type Console struct {
	in  io.Reader
	out io.Writer

	inFd  int
	outFd int
	tty   bool

	pumpOnce sync.Once
	outMu    sync.Mutex

	mu     sync.Mutex
	active *Surface
	eof    bool
}

// NewConsole creates a console reading from in and drawing on out. Raw mode
// is used only when in is a terminal.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{in: in, out: out, inFd: -1, outFd: -1}
	if f, ok := in.(*os.File); ok {
		c.inFd = int(f.Fd())
		c.tty = term.IsTerminal(c.inFd)
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.outFd = int(f.Fd())
	}
	return c
}

// IsTerminal reports whether keystrokes come from an interactive terminal.
func (c *Console) IsTerminal() bool {
	return c.tty
}

// NewSurface creates the surface for a new session. The previous surface
// must have been disposed.
func (c *Console) NewSurface() (*Surface, error) {
	if c.out == nil {
		return nil, ErrNoOutput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrSurfaceActive
	}

	s := &Surface{
		console: c,
		input:   make(chan lineedit.Event, 64),
		done:    make(chan struct{}),
	}
	if c.tty {
		state, err := term.MakeRaw(c.inFd)
		if err != nil {
			return nil, err
		}
		s.restore = state
		s.raw = true
	}
	if c.eof {
		close(s.input)
	}
	c.active = s

	c.pumpOnce.Do(func() { go c.pump() })
	return s, nil
}

func (c *Console) detach(s *Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

func (c *Console) write(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	io.WriteString(c.out, text)
}

// pump reads stdin until EOF. Reads can end in the middle of a multi-byte
// character; the incomplete tail is carried into the next read.
func (c *Console) pump() {
	buf := make([]byte, readBufferSize)
	var carry []byte

	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			complete, rest := splitUTF8(data)
			carry = append([]byte(nil), rest...)
			if len(complete) > 0 {
				c.deliver(string(complete))
			}
		}
		if err != nil {
			if len(carry) > 0 {
				c.deliver(string(carry))
			}
			c.mu.Lock()
			c.eof = true
			s := c.active
			c.mu.Unlock()
			if s != nil {
				close(s.input)
			}
			return
		}
	}
}

// deliver hands text to the active surface, or drops it when there is none.
func (c *Console) deliver(text string) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return
	}

	select {
	case s.input <- lineedit.Event{Kind: lineedit.EventData, Text: text}:
	case <-s.done:
	}
}

// splitUTF8 splits data before a trailing incomplete UTF-8 sequence.
func splitUTF8(data []byte) (complete, rest []byte) {
	// A rune is at most utf8.UTFMax bytes; only the tail can be incomplete.
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return data, nil
		}
		return data[:i], data[i:]
	}
	return data, nil
}
