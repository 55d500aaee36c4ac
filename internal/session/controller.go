package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"coderun/internal/protocol"
)

const (
	defaultTimeLimit   = 180 * time.Second
	defaultMaxOutput   = 100000
	defaultDialTimeout = 10 * time.Second
	defaultExitGrace   = 2 * time.Second
	defaultTick        = time.Second
)

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	Endpoint    string
	TimeLimit   time.Duration
	MaxOutput   int
	DialTimeout time.Duration
	ExitGrace   time.Duration
	// Tick is the watchdog period. The countdown starts at TimeLimit/1s and
	// loses one per tick.
	Tick time.Duration
}

func (o Options) withDefaults() Options {
	if o.TimeLimit <= 0 {
		o.TimeLimit = defaultTimeLimit
	}
	if o.MaxOutput <= 0 {
		o.MaxOutput = defaultMaxOutput
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.ExitGrace <= 0 {
		o.ExitGrace = defaultExitGrace
	}
	if o.Tick <= 0 {
		o.Tick = defaultTick
	}
	return o
}

// Controller is the single entry point for running source on the runner.
// At most one session is live at a time.
type Controller struct {
	opts       Options
	dial       DialFunc
	newSurface SurfaceFunc

	mu      sync.Mutex
	current *run
}

// run is everything owned by one live session.
type run struct {
	session    *Session
	log        pslog.Logger
	surface    Surface
	channel    Channel
	driver     *Driver
	stopResize func()
	cancel     context.CancelFunc
	done       chan struct{}

	releaseOnce sync.Once
}

// NewController creates a controller that opens channels with dial and
// draws on surfaces created by newSurface.
func NewController(opts Options, dial DialFunc, newSurface SurfaceFunc) *Controller {
	return &Controller{
		opts:       opts.withDefaults(),
		dial:       dial,
		newSurface: newSurface,
	}
}

// Start tears down the previous session and runs source on a fresh one. It
// returns once the compile request has been sent; use Done to wait for the
// session to end.
func (c *Controller) Start(ctx context.Context, source string, lang protocol.Language) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanup()

	log := pslog.Ctx(ctx)
	surface, err := c.newSurface()
	if err != nil {
		log.Error("cannot create terminal surface", "error", err)
		return fmt.Errorf("%w: %v", ErrNoSurface, err)
	}

	sess := newSession(lang, c.opts.Endpoint)
	log = log.With("session", sess.ID, "endpoint", c.opts.Endpoint)
	r := &run{
		session: sess,
		log:     log,
		surface: surface,
		done:    make(chan struct{}),
	}

	surface.Fit()
	surface.Focus()
	r.stopResize = surface.WatchResize()
	surface.WriteLine(noticeConnecting)

	dialCtx, cancelDial := context.WithTimeout(ctx, c.opts.DialTimeout)
	channel, err := c.dial(dialCtx, c.opts.Endpoint)
	cancelDial()
	if err != nil {
		log.Error("dial runner", "error", err)
		surface.WriteLine(noticeError)
		c.release(r)
		return fmt.Errorf("dial runner: %w", err)
	}
	r.channel = channel
	r.driver = NewDriver(log, surface, channel, c.opts.MaxOutput)

	if err := r.driver.Open(protocol.NewCompileMessage(source, lang)); err != nil {
		log.Error("start session", "error", err)
		surface.WriteLine(noticeError)
		c.release(r)
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	c.current = r
	log.Info("session started", "language", lang)

	go c.loop(loopCtx, r)
	return nil
}

// Stop tears down the current session, if any. It is safe to call more
// than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup()
}

// Done returns a channel closed when the current session's connection has
// ended. With no session it returns a closed channel.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.current.done
}

// ExitCode returns the exit code reported by the runner for the current
// session once it has ended.
func (c *Controller) ExitCode() (int, bool) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return 0, false
	}
	select {
	case <-r.done:
		return r.driver.ExitCode()
	default:
		return 0, false
	}
}

// Session returns metadata of the current session.
func (c *Controller) Session() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	return c.current.session, true
}

// cleanup ends the event loop of the current session. The caller holds c.mu.
// The session stays readable through Done and ExitCode until it is replaced.
func (c *Controller) cleanup() {
	r := c.current
	if r == nil {
		return
	}
	c.current = nil

	r.cancel()
	<-r.done
	c.release(r)
}

// release frees what r holds. It runs once per session, from the event loop
// when it ends or from Start when setup fails.
func (c *Controller) release(r *run) {
	r.releaseOnce.Do(func() { c.releaseNow(r) })
}

func (c *Controller) releaseNow(r *run) {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.log.Debug("close channel", "error", err)
		}
	}
	if r.stopResize != nil {
		r.stopResize()
	}
	if err := r.surface.Dispose(); err != nil {
		r.log.Warn("dispose surface", "error", err)
	}
	r.log.Debug("session released")
}

// loop is the session event loop. All driver state is mutated here. The
// session's resources are released before Done is signalled.
func (c *Controller) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer c.release(r)

	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()
	ticks := ticker.C
	limitSeconds := int(c.opts.TimeLimit / time.Second)
	remaining := limitSeconds

	var grace <-chan time.Time
	graceArmed := false
	frames := r.channel.Frames()
	input := r.surface.Input()
	cancelled := ctx.Done()

	for {
		select {
		case <-cancelled:
			// Teardown or process shutdown: tell the runner and stop
			// without waiting for it.
			cancelled = nil
			r.driver.Interrupt()
			r.channel.Close()

		case frame, ok := <-frames:
			if !ok {
				r.driver.Closed(r.channel.Err())
				r.log.Info("session ended", "output_chars", r.driver.OutputCount())
				return
			}
			r.driver.HandleFrame(frame)

		case ev, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			r.driver.HandleInput(ev)

		case <-ticks:
			remaining--
			if remaining > 0 {
				continue
			}
			ticks = nil
			ticker.Stop()
			r.log.Info("time limit exceeded", "seconds", limitSeconds)
			r.driver.TimeLimitExceeded(limitSeconds)
			r.channel.Close()

		case <-grace:
			grace = nil
			r.log.Debug("closing after exit grace")
			r.channel.Close()
		}

		if !graceArmed && r.driver.ExitSent() {
			graceArmed = true
			grace = time.After(c.opts.ExitGrace)
		}
	}
}
