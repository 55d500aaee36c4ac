package session

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"

	"coderun/internal/lineedit"
	"coderun/internal/protocol"
)

type fakeSurface struct {
	mu            sync.Mutex
	out           strings.Builder
	input         chan lineedit.Event
	fitted        int
	focused       int
	resizeStopped int
	disposed      int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{input: make(chan lineedit.Event, 16)}
}

func (s *fakeSurface) Write(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.WriteString(text)
}

func (s *fakeSurface) WriteLine(text string) {
	s.Write(text + "\r\n")
}

func (s *fakeSurface) Focus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused++
}

func (s *fakeSurface) Fit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted++
}

func (s *fakeSurface) WatchResize() func() {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.resizeStopped++
	}
}

func (s *fakeSurface) Input() <-chan lineedit.Event {
	return s.input
}

func (s *fakeSurface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed++
	return nil
}

func (s *fakeSurface) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

func (s *fakeSurface) ResizeStopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizeStopped
}

func (s *fakeSurface) Disposed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	err     error
	closes  int

	frames    chan []byte
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{frames: make(chan []byte, 16)}
}

func (c *fakeChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), frame...))
	return nil
}

func (c *fakeChannel) Frames() <-chan []byte {
	return c.frames
}

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.frames) })
	return nil
}

// push delivers a frame from the runner.
func (c *fakeChannel) push(frame string) {
	c.frames <- []byte(frame)
}

// remoteClose ends the connection from the runner's side.
func (c *fakeChannel) remoteClose(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.frames) })
}

func (c *fakeChannel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// messages decodes everything the client has sent.
func (c *fakeChannel) messages(t *testing.T) []*protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Message, 0, len(c.sent))
	for _, frame := range c.sent {
		msg, err := protocol.ValidateClientMessage(frame)
		if err != nil {
			t.Fatalf("client sent invalid frame %s: %v", frame, err)
		}
		out = append(out, msg)
	}
	return out
}

func (c *fakeChannel) count(t *testing.T, kind protocol.Kind) int {
	t.Helper()
	n := 0
	for _, msg := range c.messages(t) {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

// inputs returns the data of every input message, in send order.
func (c *fakeChannel) inputs(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, msg := range c.messages(t) {
		if msg.Type == protocol.KindInput {
			out = append(out, msg.Data)
		}
	}
	return out
}

var errBoom = errors.New("boom")

func discardLogger() pslog.Logger {
	return captureLogger(io.Discard)
}

func captureLogger(w io.Writer) pslog.Logger {
	return pslog.NewWithOptions(w, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
}

// openDriver returns a driver that has already sent its compile request.
func openDriver(t *testing.T, maxOutput int) (*Driver, *fakeSurface, *fakeChannel) {
	t.Helper()
	surface := newFakeSurface()
	channel := newFakeChannel()
	d := NewDriver(discardLogger(), surface, channel, maxOutput)
	if err := d.Open(protocol.NewCompileMessage("print(input())", protocol.LanguagePython)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d, surface, channel
}

func typeText(d *Driver, text string) {
	d.HandleInput(lineedit.Event{Kind: lineedit.EventData, Text: text})
}
