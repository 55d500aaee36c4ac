package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"coderun/internal/lineedit"
	"coderun/internal/protocol"
)

// State represents the connection state of a session.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// ErrNoSurface is returned by Start when no terminal surface can be created.
var ErrNoSurface = errors.New("no terminal surface available")

// Session holds metadata for a single run of a source file on the runner.
type Session struct {
	ID        string            `json:"id"`
	Language  protocol.Language `json:"language"`
	Endpoint  string            `json:"endpoint"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newSession(lang protocol.Language, endpoint string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Language:  lang,
		Endpoint:  endpoint,
		CreatedAt: time.Now().UTC(),
	}
}

// Surface is the terminal the session draws on and reads keystrokes from.
type Surface interface {
	Write(text string)
	WriteLine(text string)
	Focus()
	Fit()
	// WatchResize refits the surface on size changes until stop is called.
	WatchResize() (stop func())
	Input() <-chan lineedit.Event
	Dispose() error
}

// Channel is an open duplex connection to the runner. Frames is closed when
// the connection ends; Err then reports why, or nil for a normal close.
type Channel interface {
	Send(frame []byte) error
	Frames() <-chan []byte
	Err() error
	Close() error
}

// DialFunc opens a Channel to the runner at endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Channel, error)

// SurfaceFunc creates the terminal surface for a new session.
type SurfaceFunc func() (Surface, error)

// Notices written to the surface.
const (
	noticeConnecting   = "[SYS] Connecting to the runner..."
	noticeConnected    = "[SYS] Successfully connected to the runner. Type Ctrl + C to exit.\n"
	noticeClosed       = "\n[SYS] Connection to the runner closed"
	noticeError        = "[SYS] Error occurred, connection closed"
	noticeExitSent     = "\n\n[SYS] Sent exit message to the server"
	noticeOutputLimit  = "\n\n[SYS] Output is too long, process terminated (Max %d characters)"
	noticeExitCode     = "\n\n[SYS] Process ended with exit code: %d"
	noticeTimeLimit    = "\n\n[SYS] Time limit exceeded, process terminated (Max %d seconds)"
	noticeCompileError = "Compilation error"
)

const interruptKey = "\x03"
