//
//
package plcsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Interval is the live data push period used by Run.
	Interval time.Duration
	// SocketPath is where the websocket endpoint is mounted.
	SocketPath string
	Logger     *slog.Logger
}

// Server exposes a Machine over the dashboard backend's REST and websocket
// surface.
type Server struct {
	machine  *Machine
	logger   *slog.Logger
	interval time.Duration
	mux      *http.ServeMux

	mu      sync.Mutex
	clients map[*socketClient]struct{}
}

// NewServer creates a server for m. Nothing is pushed until Run or Tick is
// called.
func NewServer(m *Machine, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.SocketPath == "" {
		opts.SocketPath = "/ws"
	}

	s := &Server{
		machine:  m,
		logger:   logger.With("component", "plcsim-server"),
		interval: opts.Interval,
		mux:      http.NewServeMux(),
		clients:  make(map[*socketClient]struct{}),
	}
	s.registerRoutes(opts.SocketPath)
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run pushes live data every interval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(s.interval)
		}
	}
}

// Tick advances the machine by dt, then pushes the live data frame followed
// by any events the step raised.
func (s *Server) Tick(dt time.Duration) {
	events := s.machine.Step(dt)
	s.Broadcast(telemetry.EventLiveData, s.machine.Snapshot())
	for _, ev := range events {
		s.Broadcast(ev.Name, ev.Data)
	}
}

// commandRoute binds a POST path to a machine operation.
type commandRoute struct {
	pattern string
	op      string
	arg     any
}

var commandRoutes = []commandRoute{
	{"POST /api/command/start", OpStart, nil},
	{"POST /api/command/stop", OpStop, nil},
	{"POST /api/command/home", OpHome, nil},
	{"POST /api/servo/enable", OpServoEnable, nil},
	{"POST /api/servo/disable", OpServoDisable, nil},
	{"POST /api/servo/reset", OpServoReset, nil},
	{"POST /api/jog/forward/start", OpJogForward, true},
	{"POST /api/jog/forward/stop", OpJogForward, false},
	{"POST /api/jog/backward/start", OpJogBackward, true},
	{"POST /api/jog/backward/stop", OpJogBackward, false},
	{"POST /api/clamp/upper/lock", OpLockUpper, nil},
	{"POST /api/clamp/lower/lock", OpLockLower, nil},
	{"POST /api/clamp/unlock", OpUnlockAll, nil},
	{"POST /api/mode/local", OpModeLocal, nil},
	{"POST /api/mode/remote", OpModeRemote, nil},
}

func (s *Server) registerRoutes(socketPath string) {
	s.mux.Handle("GET "+socketPath, websocket.Server{Handler: s.serveSocket})

	s.mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.machine.Snapshot())
	})
	s.mux.HandleFunc("GET /api/status/connection", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.machine.ConnectionStatus())
	})
	s.mux.HandleFunc("POST /api/status/reconnect", s.handleReconnect)
	s.mux.HandleFunc("GET /api/parameters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.machine.Parameters())
	})
	s.mux.HandleFunc("POST /api/parameters", s.handleSetParameters)
	s.mux.HandleFunc("POST /api/jog/speed", s.handleJogSpeed)
	s.mux.HandleFunc("GET /api/mode", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.machine.Mode())
	})
	for _, route := range commandRoutes {
		s.mux.HandleFunc(route.pattern, s.commandHandler(route.op, route.arg))
	}

	s.mux.HandleFunc("GET /api/tests", s.handleTests)
	s.mux.HandleFunc("GET /api/tests/{id}", s.handleTest)
	s.mux.HandleFunc("DELETE /api/tests/{id}", s.handleDeleteTest)
	s.mux.HandleFunc("GET /api/alarms", s.handleAlarms)
	s.mux.HandleFunc("POST /api/alarms/acknowledge-all", s.handleAckAll)
	s.mux.HandleFunc("POST /api/alarms/{id}/acknowledge", s.handleAck)
	s.mux.HandleFunc("GET /api/report/pdf/{id}", s.handleReport)
	s.mux.HandleFunc("GET /api/report/excel", s.handleReport)
}

func (s *Server) commandHandler(op string, arg any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := s.machine.Execute(op, arg)
		s.logger.Debug("command", "op", op, "success", out.Success, "request_id", r.Header.Get("X-Request-ID"))
		if out.Success {
			s.Broadcast(telemetry.EventLiveData, s.machine.Snapshot())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	out := s.machine.Execute(OpReconnect, nil)
	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Connected bool   `json:"connected"`
		Message   string `json:"message"`
	}{out.Success, s.machine.ConnectionStatus().Connected, out.Message})
}

func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	var u command.ParametersUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid parameters body: "+err.Error())
		return
	}
	if err := command.ValidateParameters(u, s.machine.opts.Limits); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	out := s.machine.Execute(OpSetParameters, u)
	if !out.Success {
		writeDetail(w, http.StatusInternalServerError, "Failed to write parameters to PLC")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJogSpeed(w http.ResponseWriter, r *http.Request) {
	var body telemetry.JogSpeed
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid jog speed body: "+err.Error())
		return
	}
	limits := s.machine.opts.Limits
	if command.ValidateJogSpeed(body.Velocity, limits) != nil {
		writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Velocity must be between %v and %v mm/min", limits.MinSpeed, limits.MaxSpeed))
		return
	}
	writeJSON(w, http.StatusOK, s.machine.Execute(OpJogSpeed, body.Velocity))
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1, 1, 0)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size", 20, 1, 100)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.machine.History().Tests(page, size))
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, found := s.machine.History().Test(id)
	if !found {
		writeDetail(w, http.StatusNotFound, "Test not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.machine.History().DeleteTest(id) {
		writeDetail(w, http.StatusNotFound, "Test not found")
		return
	}
	writeJSON(w, http.StatusOK, succeed(fmt.Sprintf("Test %d deleted", id)))
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1, 1, 0)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size", 50, 1, 100)
	if !ok {
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))
	writeJSON(w, http.StatusOK, s.machine.History().Alarms(activeOnly, page, size))
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.machine.History().Acknowledge(id, r.URL.Query().Get("ack_by")) {
		writeDetail(w, http.StatusNotFound, "Alarm not found")
		return
	}
	writeJSON(w, http.StatusOK, succeed(fmt.Sprintf("Alarm %d acknowledged", id)))
}

func (s *Server) handleAckAll(w http.ResponseWriter, r *http.Request) {
	n := s.machine.History().AcknowledgeAll(r.URL.Query().Get("ack_by"))
	writeJSON(w, http.StatusOK, succeed(fmt.Sprintf("%d alarms acknowledged", n)))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, http.StatusServiceUnavailable, "Report generation not available")
}

// queryInt reads an optional integer query parameter bounded by [lo, hi];
// hi of zero means unbounded. On failure it writes the error response.
func queryInt(w http.ResponseWriter, r *http.Request, key string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi > 0 && v > hi) {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid %s %q", key, raw))
		return 0, false
	}
	return v, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}
