package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/pslog"

	"coderun/internal/lineedit"
	"coderun/internal/protocol"
)

// Driver runs the message protocol for one session. It owns the
// awaiting-response flag, the pending-line queue and the output counter.
// Every method must be called from the session event loop.
type Driver struct {
	log       pslog.Logger
	surface   Surface
	channel   Channel
	queue     *LineQueue
	editor    *lineedit.Editor
	maxOutput int

	state    State
	awaiting bool
	output   int
	limitHit bool
	exitSent bool

	exitCode   int
	exitReport bool
}

// NewDriver creates a driver in the connecting state.
func NewDriver(log pslog.Logger, surface Surface, channel Channel, maxOutput int) *Driver {
	d := &Driver{
		log:       log,
		surface:   surface,
		channel:   channel,
		queue:     NewLineQueue(),
		maxOutput: maxOutput,
		state:     StateConnecting,
	}
	d.editor = lineedit.New(surface, d)
	return d
}

// State returns the connection state.
func (d *Driver) State() State {
	return d.state
}

// Awaiting reports whether a line is in flight.
func (d *Driver) Awaiting() bool {
	return d.awaiting
}

// ExitSent reports whether the client has asked the runner to terminate.
func (d *Driver) ExitSent() bool {
	return d.exitSent
}

// ExitCode returns the exit code reported by the runner, if any.
func (d *Driver) ExitCode() (int, bool) {
	return d.exitCode, d.exitReport
}

// OutputCount returns the number of output characters received so far.
func (d *Driver) OutputCount() int {
	return d.output
}

// Pending returns the number of queued lines.
func (d *Driver) Pending() int {
	return d.queue.Len()
}

// Editor exposes the line editor fed by HandleInput.
func (d *Driver) Editor() *lineedit.Editor {
	return d.editor
}

// Open sends the compile request on a freshly opened channel.
func (d *Driver) Open(compile *protocol.Message) error {
	frame, err := protocol.Encode(compile)
	if err != nil {
		return fmt.Errorf("encode compile request: %w", err)
	}
	if err := d.channel.Send(frame); err != nil {
		return fmt.Errorf("send compile request: %w", err)
	}

	d.state = StateOpen
	d.surface.WriteLine(noticeConnected)
	d.log.Debug("compile request sent", "language", compile.Language, "bytes", len(compile.Source))
	return nil
}

// HandleFrame processes one frame from the runner.
func (d *Driver) HandleFrame(raw []byte) {
	msg, err := protocol.ValidateServerMessage(raw)
	if err != nil {
		d.log.Warn("dropping runner message", "error", err)
		d.surface.WriteLine("[Error] " + err.Error())
		d.awaiting = false
		d.drainOne()
		return
	}

	switch msg.Type {
	case protocol.KindCompileErr:
		text := msg.Stderr
		if text == "" {
			text = noticeCompileError
		}
		d.surface.WriteLine(text)

	case protocol.KindEcho:
		if d.awaiting {
			d.awaiting = false
			d.drainOne()
		}

	case protocol.KindStdout, protocol.KindStderr:
		d.output += utf8.RuneCountInString(msg.Data)
		d.surface.Write(msg.Data)
		if d.output > d.maxOutput && !d.limitHit {
			d.limitHit = true
			d.log.Info("output limit exceeded", "chars", d.output, "max", d.maxOutput)
			d.surface.WriteLine(fmt.Sprintf(noticeOutputLimit, d.maxOutput))
			if d.sendExit() {
				d.surface.WriteLine(noticeExitSent)
			}
		}
		d.awaiting = false
		d.drainOne()

	case protocol.KindExit:
		d.exitCode = msg.ExitCode()
		d.exitReport = true
		d.log.Debug("process exited", "code", d.exitCode)
		d.surface.WriteLine(fmt.Sprintf(noticeExitCode, d.exitCode))
	}
}

// HandleInput processes one terminal input event. The interrupt key ends the
// remote process; everything else goes to the line editor.
func (d *Driver) HandleInput(ev lineedit.Event) {
	if ev.Kind == lineedit.EventData && strings.Contains(ev.Text, interruptKey) {
		d.Interrupt()
		return
	}
	if d.state != StateOpen {
		return
	}
	d.editor.Handle(ev)
}

// Interrupt asks the runner to terminate the process. Once exit has been
// sent, a further interrupt closes the channel without waiting for the
// runner.
func (d *Driver) Interrupt() {
	if d.state != StateOpen {
		return
	}
	if d.exitSent {
		d.log.Debug("closing on repeated interrupt")
		if err := d.channel.Close(); err != nil {
			d.log.Debug("close channel", "error", err)
		}
		return
	}
	if d.sendExit() {
		d.surface.WriteLine(noticeExitSent)
	}
}

// TimeLimitExceeded ends the process when the watchdog expires.
func (d *Driver) TimeLimitExceeded(seconds int) {
	if d.state != StateOpen {
		return
	}
	d.sendExit()
	d.surface.WriteLine(fmt.Sprintf(noticeTimeLimit, seconds))
}

// Closed moves the driver to its terminal state. err is the transport
// failure, or nil for a normal close.
func (d *Driver) Closed(err error) {
	if d.state == StateClosed {
		return
	}
	if err != nil {
		d.log.Error("runner connection failed", "error", err)
		d.surface.WriteLine(noticeError)
	}

	d.state = StateClosed
	d.awaiting = false
	if n := d.queue.Len(); n > 0 {
		d.log.Debug("discarding pending lines", "count", n)
	}
	d.queue.Reset()
	d.surface.WriteLine(noticeClosed)
}

// SubmitLine sends line when idle and queues it while a line is in flight.
func (d *Driver) SubmitLine(line string) {
	if !d.accepting() {
		d.log.Warn("line dropped", "state", d.state, "exit_sent", d.exitSent)
		return
	}
	if d.awaiting {
		d.queue.Enqueue(line)
		return
	}
	d.send(line)
}

// QueueLines appends lines behind the one in flight.
func (d *Driver) QueueLines(lines []string) {
	if !d.accepting() {
		d.log.Warn("lines dropped", "count", len(lines), "state", d.state, "exit_sent", d.exitSent)
		return
	}
	d.queue.Enqueue(lines...)
	d.drainOne()
}

func (d *Driver) accepting() bool {
	return d.state == StateOpen && !d.exitSent
}

// drainOne sends the oldest queued line if nothing is in flight.
func (d *Driver) drainOne() {
	if d.awaiting || !d.accepting() {
		return
	}
	line, ok := d.queue.DrainOne()
	if !ok {
		return
	}
	// Queued lines never went through the editor, so echo them here.
	d.surface.WriteLine(line)
	d.send(line)
}

func (d *Driver) send(line string) {
	d.awaiting = true
	frame, err := protocol.Encode(protocol.NewInputMessage(line + "\n"))
	if err != nil {
		d.log.Error("encode input", "error", err)
		return
	}
	if err := d.channel.Send(frame); err != nil {
		d.log.Warn("send input", "error", err)
	}
}

func (d *Driver) sendExit() bool {
	if d.exitSent {
		return false
	}
	frame, err := protocol.Encode(protocol.NewExitMessage())
	if err != nil {
		d.log.Error("encode exit", "error", err)
		return false
	}
	d.exitSent = true
	if err := d.channel.Send(frame); err != nil {
		d.log.Warn("send exit", "error", err)
		return false
	}
	return true
}
