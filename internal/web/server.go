// Package web provides the local HTTP interface: a diagnostics page, the
// status JSON, and the peer motor-command intake.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/chandud1124/aquaguard/internal/backend"
	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/status"
)

const (
	// Peer clocks are set by NTP after boot; allow generous drift before
	// rejecting a signed command.
	signatureTolerance = 5 * time.Minute

	motorBodyLimit = 16 << 10
)

// Options configures the server.
type Options struct {
	Addr    string
	Tracker *status.Tracker

	// Queue receives verified peer motor commands. Nil disables the
	// POST /motor route, which is how the top controller runs.
	Queue      *command.Queue
	PeerSecret string

	Log *zap.Logger
}

// Server serves the status page and the peer command endpoint.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	queue      *command.Queue
	secret     string
	log        *zap.Logger
	now        func() time.Time
}

// New creates a Server that reads state from the given tracker.
func New(opts Options) *Server {
	s := &Server{
		tracker: opts.Tracker,
		queue:   opts.Queue,
		secret:  opts.PeerSecret,
		log:     opts.Log,
		now:     time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/status.json", s.handleJSON).Methods(http.MethodGet)
	if s.queue != nil {
		r.HandleFunc("/motor", s.handleMotor).Methods(http.MethodPost)
	}

	access := &zapio.Writer{Log: s.log.Named("http"), Level: zapcore.DebugLevel}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handlers.LoggingHandler(access, r),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// motorRequest is the body a peer controller posts to /motor.
type motorRequest struct {
	Command  string  `json:"command"`
	DeviceID string  `json:"device_id"`
	LevelPct float64 `json:"level_percentage"`
}

type motorResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleMotor verifies the peer signature and queues the command for the
// next control-loop iteration. The loop, not the handler, decides whether
// the interlocks allow it.
func (s *Server) handleMotor(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, motorBodyLimit))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, motorResponse{Status: "error", Error: "reading body"})
		return
	}

	now := s.now()
	err = backend.Verify(s.secret, r.Header.Get(backend.HeaderDeviceID), body,
		r.Header.Get(backend.HeaderTimestamp), r.Header.Get(backend.HeaderSignature),
		signatureTolerance, now)
	if err != nil {
		s.log.Warn("rejected motor command",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, motorResponse{Status: "error", Error: "bad signature"})
		return
	}

	var req motorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, motorResponse{Status: "error", Error: "bad payload"})
		return
	}

	var kind command.Kind
	switch req.Command {
	case "start":
		kind = command.KindStart
	case "stop":
		kind = command.KindStop
	default:
		writeJSON(w, http.StatusUnprocessableEntity, motorResponse{
			Status: "error",
			Error:  fmt.Sprintf("unknown command %q", req.Command),
		})
		return
	}

	cmd := command.Command{
		ID:       uuid.NewString(),
		Kind:     kind,
		Source:   command.SourcePeer,
		LevelPct: req.LevelPct,
		IssuedAt: now,
	}
	s.queue.Enqueue(cmd, now)
	s.log.Info("peer motor command queued",
		zap.String("command", req.Command),
		zap.String("peer", req.DeviceID),
		zap.Float64("peer_level", req.LevelPct))
	writeJSON(w, http.StatusOK, motorResponse{Status: "queued", ID: cmd.ID})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
