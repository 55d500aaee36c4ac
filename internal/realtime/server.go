package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"pkt.systems/pslog"

	"coderun/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Program plays the remote process for one mock run. It returns the exit
// code reported to the client unless it already called Exit.
type Program func(ctx context.Context, run *MockRun) int

// MockRunner is a websocket peer speaking the runner protocol. It executes
// nothing; a Program decides what the "process" prints.
type MockRunner struct {
	program Program
	log     pslog.Logger

	mu   sync.RWMutex
	runs map[string]*MockRun
	// order keeps run IDs in arrival order for listing.
	order []string
}

// MockRun is one connection to the mock runner.
type MockRun struct {
	ID        string
	Request   *protocol.Message
	StartedAt time.Time

	peer  *peer
	inbox chan *protocol.Message

	mu       sync.Mutex
	received []*protocol.Message
	exitCode *int
	ended    bool
}

type peer struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewMockRunner creates a mock runner running program for every
// connection. A nil program selects EchoProgram.
func NewMockRunner(log pslog.Logger, program Program) *MockRunner {
	if program == nil {
		program = EchoProgram
	}
	return &MockRunner{
		program: program,
		log:     log,
		runs:    make(map[string]*MockRun),
	}
}

// Handler returns an http.Handler with all routes configured.
func (m *MockRunner) Handler() http.Handler {
	mux := http.NewServeMux()

	// REST inspection endpoints.
	mux.HandleFunc("GET /runs", m.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", m.handleGetRun)
	mux.HandleFunc("DELETE /runs/{id}", m.handleKillRun)

	// WebSocket endpoint, on the root and on /ws.
	mux.HandleFunc("/ws", m.handleWebSocket)
	mux.HandleFunc("/{$}", m.handleWebSocket)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection and starts a mock run.
func (m *MockRunner) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade error", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	run := &MockRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		peer:      &peer{conn: conn, send: make(chan []byte, sendBuffer)},
		inbox:     make(chan *protocol.Message, sendBuffer),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go run.peer.writePump()
	go m.readPump(run, cancel)
	go m.serve(ctx, run)
}

// readPump reads client messages into the run's inbox.
func (m *MockRunner) readPump(run *MockRun, cancel context.CancelFunc) {
	log := m.log.With("run", run.ID)
	defer func() {
		cancel()
		close(run.inbox)
		run.peer.conn.Close()
	}()

	run.peer.conn.SetReadDeadline(time.Now().Add(readDeadline))
	run.peer.conn.SetPongHandler(func(string) error {
		run.peer.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := run.peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "error", err)
			}
			return
		}

		msg, err := protocol.ValidateClientMessage(message)
		if err != nil {
			log.Warn("invalid client message", "error", err)
			continue
		}
		run.record(msg)
		run.peer.conn.SetReadDeadline(time.Now().Add(readDeadline))

		select {
		case run.inbox <- msg:
		default:
			log.Warn("inbox full, dropping message", "type", msg.Type)
		}
	}
}

// serve waits for the compile request, plays the program and closes the
// connection when it returns.
func (m *MockRunner) serve(ctx context.Context, run *MockRun) {
	log := m.log.With("run", run.ID)
	defer run.peer.close()

	first, ok := <-run.inbox
	if !ok {
		return
	}
	if first.Type != protocol.KindCode {
		run.CompileError(fmt.Sprintf("expected %s message, got %s", protocol.KindCode, first.Type))
		run.Exit(1)
		return
	}
	run.Request = first
	m.track(run)
	log.Info("run started", "language", first.Language, "bytes", len(first.Source))

	code := m.program(ctx, run)
	if !run.Exited() {
		run.Exit(code)
	}
	log.Info("run ended", "code", code)
}

func (m *MockRunner) track(run *MockRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
}

// Runs returns every run that sent a compile request, oldest first.
func (m *MockRunner) Runs() []*MockRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*MockRun, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.runs[id])
	}
	return out
}

// Run returns a run by ID.
func (m *MockRunner) Run(id string) (*MockRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	return run, ok
}

// Next returns the next input or exit message from the client. It returns
// io.EOF once the client is gone.
func (r *MockRun) Next(ctx context.Context) (*protocol.Message, error) {
	select {
	case msg, ok := <-r.inbox:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stdout sends process output.
func (r *MockRun) Stdout(data string) error {
	return r.emit(&protocol.Message{Type: protocol.KindStdout, Data: data})
}

// Stderr sends process error output.
func (r *MockRun) Stderr(data string) error {
	return r.emit(&protocol.Message{Type: protocol.KindStderr, Data: data})
}

// Echo acknowledges an input line without output.
func (r *MockRun) Echo(data string) error {
	return r.emit(&protocol.Message{Type: protocol.KindEcho, Data: data})
}

// CompileError reports a failed build.
func (r *MockRun) CompileError(stderr string) error {
	return r.emit(&protocol.Message{Type: protocol.KindCompileErr, Stderr: stderr})
}

// Exit reports process termination. Later calls are ignored.
func (r *MockRun) Exit(code int) error {
	r.mu.Lock()
	if r.exitCode != nil {
		r.mu.Unlock()
		return nil
	}
	r.exitCode = &code
	r.mu.Unlock()
	return r.emit(&protocol.Message{Type: protocol.KindExit, ReturnCode: &code})
}

// Exited reports whether Exit has been called.
func (r *MockRun) Exited() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode != nil
}

// Received returns every valid message the client sent, in order.
func (r *MockRun) Received() []*protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*protocol.Message, len(r.received))
	copy(out, r.received)
	return out
}

// Kill ends the run as if the process had been killed.
func (r *MockRun) Kill() {
	r.Exit(137)
	r.peer.close()
}

func (r *MockRun) record(msg *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, msg)
}

func (r *MockRun) emit(msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return r.peer.enqueue(data)
}

func (p *peer) enqueue(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// close ends the send stream; writePump then sends a close frame.
func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// writePump writes messages to the WebSocket connection.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// EchoProgram behaves like a program that prints a banner and then copies
// every input line to stdout. An empty source fails to compile.
func EchoProgram(ctx context.Context, run *MockRun) int {
	if strings.TrimSpace(run.Request.Source) == "" {
		run.CompileError("no source code")
		return 1
	}

	run.Stdout(fmt.Sprintf("mock runner: %s, %d bytes\n", run.Request.Language, len(run.Request.Source)))
	for {
		msg, err := run.Next(ctx)
		if err != nil {
			return 0
		}
		switch msg.Type {
		case protocol.KindInput:
			run.Stdout(msg.Data)
		case protocol.KindExit:
			return 130
		}
	}
}
