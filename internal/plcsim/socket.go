//
//
package plcsim

import (
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

// socketClient is one connected dashboard.
type socketClient struct {
	id         string
	conn       *websocket.Conn
	subscribed atomic.Bool
}

// jogResponse answers a jog_forward or jog_backward message.
type jogResponse struct {
	Direction string `json:"direction"`
	State     bool   `json:"state"`
	Success   bool   `json:"success"`
}

// jogSpeedResponse answers a set_jog_speed message.
type jogSpeedResponse struct {
	Velocity float64 `json:"velocity"`
	Success  bool    `json:"success"`
}

func (s *Server) serveSocket(conn *websocket.Conn) {
	c := &socketClient{id: uuid.NewString(), conn: conn}
	logger := s.logger.With("client", c.id, "session", conn.Request().Header.Get("X-Session-ID"))

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	logger.Info("client connected", "remote", conn.Request().RemoteAddr)

	defer func() {
		// A dashboard that drops mid-jog must not leave the crosshead moving.
		s.machine.StopAllJog()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = conn.Close()
		logger.Info("client disconnected")
	}()

	if err := send(conn, telemetry.EventConnectionStatus, telemetry.ConnectionStatus{Connected: true}); err != nil {
		logger.Warn("greeting failed", "error", err)
		return
	}

	for {
		var env telemetry.Envelope
		err := websocket.JSON.Receive(conn, &env)
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				logger.Warn("dropping malformed message", "error", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.Debug("read failed", "error", err)
			}
			return
		}
		s.handleMessage(c, env)
	}
}

func (s *Server) handleMessage(c *socketClient, env telemetry.Envelope) {
	switch env.Event {
	case telemetry.EventSubscribe:
		c.subscribed.Store(true)
	case telemetry.EventUnsubscribe:
		c.subscribed.Store(false)
	case telemetry.EventJogForward, telemetry.EventJogBackward:
		var req telemetry.JogState
		_ = json.Unmarshal(env.Data, &req)
		op, dir := OpJogForward, "forward"
		if env.Event == telemetry.EventJogBackward {
			op, dir = OpJogBackward, "backward"
		}
		out := s.machine.Execute(op, req.State)
		s.reply(c, telemetry.EventJogResponse, jogResponse{Direction: dir, State: req.State, Success: out.Success})
	case telemetry.EventSetJogSpeed:
		var req telemetry.JogSpeed
		_ = json.Unmarshal(env.Data, &req)
		out := s.machine.Execute(OpJogSpeed, req.Velocity)
		s.reply(c, telemetry.EventJogSpeedResponse, jogSpeedResponse{Velocity: req.Velocity, Success: out.Success})
	default:
		s.logger.Debug("ignoring client event", "event", env.Event, "client", c.id)
	}
}

func (s *Server) reply(c *socketClient, event string, data any) {
	if err := send(c.conn, event, data); err != nil {
		s.logger.Debug("reply failed", "event", event, "client", c.id, "error", err)
	}
}

// Broadcast sends one event to every subscribed client. A client whose
// write fails is closed; its reader then unregisters it.
func (s *Server) Broadcast(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("encode broadcast", "event", event, "error", err)
		return
	}
	s.BroadcastRaw(event, payload)
}

// BroadcastRaw sends a pre-encoded JSON payload to every subscribed client.
// The payload is not checked against the event's schema.
func (s *Server) BroadcastRaw(event string, payload json.RawMessage) {
	env := telemetry.Envelope{Event: event, Data: payload}

	s.mu.Lock()
	targets := make([]*socketClient, 0, len(s.clients))
	for c := range s.clients {
		if c.subscribed.Load() {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := websocket.JSON.Send(c.conn, env); err != nil {
			s.logger.Debug("dropping client", "client", c.id, "error", err)
			_ = c.conn.Close()
		}
	}
}

// Clients returns the number of open websocket connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Subscribers returns the number of clients receiving broadcasts.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := range s.clients {
		if c.subscribed.Load() {
			n++
		}
	}
	return n
}

// DropClients closes every websocket connection, as a backend restart would.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

func send(conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return websocket.JSON.Send(conn, telemetry.Envelope{Event: event, Data: payload})
}
