// Package realtime carries runner messages over websockets: the client
// connection used by sessions and a mock runner that speaks the same
// protocol.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
	maxFrameSize  = 4 << 20
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("connection closed")

// Conn is a client connection to a runner. Frames are delivered in arrival
// order on Frames, which is closed once the connection has ended.
type Conn struct {
	conn   *websocket.Conn
	log    pslog.Logger
	send   chan []byte
	frames chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Dial opens a websocket connection to the runner at endpoint.
func Dial(ctx context.Context, endpoint string) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: writeDeadline,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &Conn{
		conn:   ws,
		log:    pslog.Ctx(ctx).With("endpoint", endpoint),
		send:   make(chan []byte, sendBuffer),
		frames: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	ws.SetReadLimit(maxFrameSize)

	go c.writePump()
	go c.readPump()
	return c, nil
}

// Send queues a text frame for the runner.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Frames returns the inbound frame stream.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Err reports why the connection ended. It is nil while the connection is
// up, after a normal close by either side and after Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close flushes queued frames, sends a close frame and ends the connection.
// It does not wait for the runner.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump reads frames from the websocket connection.
func (c *Conn) readPump() {
	defer close(c.frames)

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case c.closed():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.log.Debug("runner closed connection")
				c.shutdown(nil)
			default:
				c.log.Warn("websocket read error", "error", err)
				c.shutdown(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		select {
		case c.frames <- message:
		case <-c.done:
			return
		}
	}
}

// writePump writes frames to the websocket connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Warn("websocket write error", "error", err)
				c.shutdown(err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}

		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued so an exit request sent right
// before Close reaches the runner.
func (c *Conn) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(msgType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(msgType, data)
}
