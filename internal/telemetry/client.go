//
//
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/khalid729/grp-stiffness-test-machine/internal/fanout"
)

// ErrNotConnected is returned by outbound sends while no connection is live.
var ErrNotConnected = errors.New("telemetry: not connected")

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("telemetry: client closed")

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8000/ws.
	URL string
	// Origin is sent in the websocket handshake.
	Origin string
	// DialTimeout bounds connection establishment. Zero means no bound
	// beyond the caller's context.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Client multiplexes one websocket connection to many topic listeners.
//
// Listeners run on a single dispatch goroutine, one frame at a time, in the
// order frames were received. They must not block for long; slow work
// belongs on another goroutine.
type Client struct {
	opts   Options
	logger *slog.Logger
	hub    *fanout.Hub[Topic, Frame]
	queue  *frameQueue

	// mu serializes Connect, Disconnect and Close.
	mu         sync.Mutex
	conn       *websocket.Conn
	readerDone chan struct{}
	session    string
	closed     bool

	// active is the connection outbound sends use; nil when down.
	active    atomic.Pointer[websocket.Conn]
	connected atomic.Bool
	closing   atomic.Bool

	stop         chan struct{}
	dispatchDone chan struct{}
}

// NewClient creates a disconnected client and starts its dispatch goroutine.
// Call Close to release it.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")

	c := &Client{
		opts:         opts,
		logger:       logger,
		hub:          fanout.NewHub[Topic, Frame](logger),
		queue:        newFrameQueue(),
		stop:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

// On registers fn for topic and returns a function that removes exactly
// this registration. Multiple listeners per topic are invoked in
// registration order. On panics if topic is not one of Topics.
func (c *Client) On(topic Topic, fn Listener) (unsubscribe func()) {
	if !topic.Valid() {
		panic(fmt.Sprintf("telemetry: unknown topic %q", topic))
	}
	return c.hub.On(topic, fn)
}

// IsConnected reports whether the connection is currently live.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Session returns the identifier of the current or most recent connection.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect establishes the connection and sends the subscribe handshake.
// It is a no-op while a live connection exists. A connection that was lost
// is discarded and replaced.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn != nil && c.connected.Load() {
		return nil
	}
	c.teardownLocked()

	cfg, err := websocket.NewConfig(c.opts.URL, c.opts.Origin)
	if err != nil {
		return fmt.Errorf("telemetry: invalid endpoint %q: %w", c.opts.URL, err)
	}
	session := uuid.NewString()
	cfg.Header.Set("X-Session-ID", session)

	dialCtx := ctx
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	conn, err := cfg.DialContext(dialCtx)
	if err != nil {
		return fmt.Errorf("telemetry: dial %s: %w", c.opts.URL, err)
	}

	if err := sendEnvelope(conn, EventSubscribe, struct{}{}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("telemetry: subscribe handshake: %w", err)
	}

	c.conn = conn
	c.session = session
	c.readerDone = make(chan struct{})
	c.closing.Store(false)
	c.active.Store(conn)
	c.connected.Store(true)
	c.enqueueStatus(true)

	go c.readLoop(conn, c.readerDone)

	c.logger.Info("connected", "url", c.opts.URL, "session", session)
	return nil
}

// Disconnect sends the unsubscribe handshake and closes the connection.
// It is a no-op when not connected. A connection-status frame with
// connected=false is published once the reader has stopped.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	wasConnected := c.connected.Swap(false)
	if wasConnected {
		if err := sendEnvelope(c.conn, EventUnsubscribe, struct{}{}); err != nil {
			c.logger.Debug("unsubscribe handshake failed", "error", err)
		}
	}
	c.teardownLocked()
	if wasConnected {
		c.enqueueStatus(false)
	}
	c.logger.Info("disconnected", "session", c.session)
}

// teardownLocked closes the current connection and waits for its reader.
// Caller must hold c.mu.
func (c *Client) teardownLocked() {
	if c.conn == nil {
		return
	}
	c.closing.Store(true)
	c.active.Store(nil)
	_ = c.conn.Close()
	<-c.readerDone
	c.conn = nil
	c.readerDone = nil
}

// Close disconnects, stops dispatching and drops every listener. It must
// not be called from inside a listener.
func (c *Client) Close() error {
	c.Disconnect()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.dispatchDone
	c.hub.Close()
	return nil
}

// JogForward sends the forward jog state without waiting for an answer.
func (c *Client) JogForward(state bool) error {
	return c.send(EventJogForward, JogState{State: state})
}

// JogBackward sends the backward jog state without waiting for an answer.
func (c *Client) JogBackward(state bool) error {
	return c.send(EventJogBackward, JogState{State: state})
}

// SetJogSpeed sends the jog velocity without waiting for an answer.
func (c *Client) SetJogSpeed(velocity float64) error {
	return c.send(EventSetJogSpeed, JogSpeed{Velocity: velocity})
}

// Pending returns the number of received frames not yet dispatched.
func (c *Client) Pending() int {
	return c.queue.pending()
}

// Stats returns the dispatch counters.
func (c *Client) Stats() fanout.Stats {
	return c.hub.Stats()
}

func (c *Client) send(event string, payload any) error {
	conn := c.active.Load()
	if conn == nil {
		return ErrNotConnected
	}
	if err := sendEnvelope(conn, event, payload); err != nil {
		return fmt.Errorf("telemetry: send %s: %w", event, err)
	}
	return nil
}

// readLoop decodes envelopes until the connection fails or is closed.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		var env Envelope
		err := websocket.JSON.Receive(conn, &env)
		if err == nil {
			c.route(env)
			continue
		}

		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			c.logger.Warn("dropping malformed envelope", "error", err)
			continue
		}

		if c.closing.Load() {
			close(done)
			return
		}

		level := slog.LevelWarn
		if errors.Is(err, io.EOF) {
			level = slog.LevelInfo
		}
		c.logger.Log(context.Background(), level, "connection lost", "error", err)

		// done is closed before the status is queued so a listener reacting
		// to the loss can reconnect without waiting on this goroutine.
		lost := c.connected.CompareAndSwap(true, false)
		c.active.CompareAndSwap(conn, nil)
		close(done)
		if lost {
			c.enqueueStatus(false)
		}
		return
	}
}

// route maps an envelope onto its topic and queues it for dispatch.
func (c *Client) route(env Envelope) {
	topic, ok := TopicForEvent(env.Event)
	if !ok {
		c.logger.Debug("ignoring event", "event", env.Event)
		return
	}
	payload := env.Data
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	c.queue.push(Frame{Topic: topic, Payload: payload})
}

func (c *Client) enqueueStatus(connected bool) {
	payload, _ := json.Marshal(ConnectionStatus{Connected: connected})
	c.queue.push(Frame{Topic: TopicConnectionStatus, Payload: payload})
}

// dispatchLoop delivers queued frames one at a time.
func (c *Client) dispatchLoop() {
	defer close(c.dispatchDone)
	for {
		select {
		case <-c.stop:
			return
		case <-c.queue.notify:
		}
		for {
			f, ok := c.queue.pop()
			if !ok {
				break
			}
			c.hub.Publish(f.Topic, f)
		}
	}
}

func sendEnvelope(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return websocket.JSON.Send(conn, Envelope{Event: event, Data: data})
}

// SocketURL derives the websocket endpoint from an HTTP base URL and path.
func SocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend url %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}
