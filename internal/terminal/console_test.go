package terminal

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"coderun/internal/lineedit"
)

func nextEvent(t *testing.T, s *Surface) (lineedit.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-s.Input():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for input")
	}
	return lineedit.Event{}, false
}

func TestSplitUTF8(t *testing.T) {
	han := []byte("한")

	complete, rest := splitUTF8(append([]byte("ab"), han[:2]...))
	if string(complete) != "ab" || !bytes.Equal(rest, han[:2]) {
		t.Errorf("expected split before partial rune, got %q / %q", complete, rest)
	}

	complete, rest = splitUTF8([]byte("a한"))
	if string(complete) != "a한" || len(rest) != 0 {
		t.Errorf("expected no split for complete text, got %q / %q", complete, rest)
	}

	complete, rest = splitUTF8(nil)
	if len(complete) != 0 || len(rest) != 0 {
		t.Errorf("expected empty result, got %q / %q", complete, rest)
	}
}

func TestConsoleDeliversWholeCharacters(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	console := NewConsole(pr, &bytes.Buffer{})

	s, err := console.NewSurface()
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	defer s.Dispose()

	han := []byte("한")
	go func() {
		pw.Write(append([]byte("x"), han[:1]...))
		pw.Write(han[1:])
	}()

	var got string
	for got != "x한" {
		ev, ok := nextEvent(t, s)
		if !ok {
			t.Fatalf("input closed early, got %q", got)
		}
		if ev.Kind != lineedit.EventData {
			t.Fatalf("expected data event, got %v", ev.Kind)
		}
		got += ev.Text
		if len(got) > len("x한") {
			t.Fatalf("unexpected input %q", got)
		}
	}
}

func TestConsoleEOFClosesInput(t *testing.T) {
	pr, pw := io.Pipe()
	console := NewConsole(pr, &bytes.Buffer{})

	s, err := console.NewSurface()
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	defer s.Dispose()

	go func() {
		pw.Write([]byte("1\n"))
		pw.Close()
	}()

	ev, ok := nextEvent(t, s)
	if !ok || ev.Text != "1\n" {
		t.Fatalf("expected line before EOF, got %q (%v)", ev.Text, ok)
	}
	if _, ok := nextEvent(t, s); ok {
		t.Error("expected input closed at EOF")
	}

	// Surfaces created after EOF start closed.
	s.Dispose()
	next, err := console.NewSurface()
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	defer next.Dispose()
	if _, ok := nextEvent(t, next); ok {
		t.Error("expected closed input on surface created after EOF")
	}
}

func TestConsoleOneActiveSurface(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	console := NewConsole(pr, &bytes.Buffer{})

	first, err := console.NewSurface()
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	if _, err := console.NewSurface(); !errors.Is(err, ErrSurfaceActive) {
		t.Fatalf("expected ErrSurfaceActive, got %v", err)
	}

	if err := first.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if err := first.Dispose(); err != nil {
		t.Fatalf("second Dispose failed: %v", err)
	}

	second, err := console.NewSurface()
	if err != nil {
		t.Fatalf("NewSurface after dispose failed: %v", err)
	}
	second.Dispose()
}

func TestConsoleWithoutOutput(t *testing.T) {
	console := NewConsole(&bytes.Buffer{}, nil)
	if _, err := console.NewSurface(); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}

func TestSurfaceWritesVerbatimWithoutTTY(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	console := NewConsole(pr, &out)

	s, err := console.NewSurface()
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	if console.IsTerminal() {
		t.Fatal("expected pipe not to be a terminal")
	}

	s.Write("a\nb")
	s.WriteLine("c")
	s.Focus()
	s.Fit()
	stop := s.WatchResize()
	stop()
	stop()
	s.Dispose()
	s.Write("after")

	if out.String() != "a\nbc\n" {
		t.Errorf("unexpected output %q", out.String())
	}
	if cols, rows := s.Size(); cols != 0 || rows != 0 {
		t.Errorf("expected unknown size, got %dx%d", cols, rows)
	}
}

func TestRawSurfaceConvertsLineFeeds(t *testing.T) {
	var out bytes.Buffer
	console := &Console{out: &out, inFd: -1, outFd: -1}
	s := &Surface{console: console, done: make(chan struct{}), raw: true}

	s.Write("a\nb\r\nc")
	s.WriteLine("")

	if out.String() != "a\r\nb\r\nc\r\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}
