package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeflow/internal/deps"
	"codeflow/internal/logging"
	"codeflow/internal/services"
)

const maxRequestBytes = 4 << 20

// Server exposes a Runner over HTTP.
type Server struct {
	runner     *Runner
	logger     *slog.Logger
	maxTimeout time.Duration
	required   []deps.Requirement

	listener net.Listener
	server   *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxTimeout clamps requested timeouts to max.
func WithMaxTimeout(max time.Duration) ServerOption {
	return func(s *Server) {
		if max > 0 {
			s.maxTimeout = max
		}
	}
}

// WithRequiredBinaries lists binaries reported by GET /healthz.
func WithRequiredBinaries(names []string) ServerOption {
	return func(s *Server) {
		s.required = deps.SandboxRequirements(names)
	}
}

// NewServer wraps runner in the /v1/run contract.
func NewServer(runner *Runner, logger *slog.Logger, opts ...ServerOption) *Server {
	if runner == nil {
		runner = &Runner{}
	}
	s := &Server{
		runner: runner,
		logger: logging.NewComponentLogger(logger, "sandbox"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes served by the sandbox.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/run", s.handleRun)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start listens on bind and serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("sandbox listen: %w", err)
	}
	s.listener = listener
	// WriteTimeout must outlast the longest permitted command.
	writeTimeout := s.maxTimeout + 30*time.Second
	if s.maxTimeout <= 0 {
		writeTimeout = 0
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("sandbox server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("sandbox listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or an empty string before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down, waiting briefly for running commands.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := services.WithRequestID(r.Context(), requestID)
	logger := logging.WithContext(ctx, s.logger)

	var req Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		logger.Warn("rejected malformed run request", logging.Error(err))
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Cmd) == 0 {
		writeJSONError(w, http.StatusBadRequest, "cmd is required")
		return
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout.Seconds()
	}
	if s.maxTimeout > 0 && req.Timeout > s.maxTimeout.Seconds() {
		req.Timeout = s.maxTimeout.Seconds()
	}

	started := time.Now()
	out, err := s.runner.Run(ctx, req)
	elapsed := time.Since(started)
	w.Header().Set("X-Request-ID", requestID)
	if err != nil {
		var timeoutErr *TimeoutError
		var spawnErr *SpawnError
		switch {
		case errors.As(err, &timeoutErr):
			logger.Warn("command timed out",
				logging.String("command", req.Cmd[0]),
				logging.Duration("timeout", timeoutErr.Timeout),
			)
		case errors.As(err, &spawnErr):
			logger.Warn("command failed to start", logging.String("command", req.Cmd[0]), logging.Error(err))
		default:
			logger.Warn("command aborted", logging.String("command", req.Cmd[0]), logging.Error(err))
		}
		writeJSON(w, http.StatusOK, ErrorResponse(err.Error()))
		return
	}

	logger.Info("command finished",
		logging.String("command", req.Cmd[0]),
		logging.Int("returncode", out.ReturnCode),
		logging.Duration("elapsed", elapsed),
	)
	writeJSON(w, http.StatusOK, OKResponse(out))
}

type healthResponse struct {
	Status       string        `json:"status"`
	Dependencies []deps.Status `json:"dependencies,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	statuses := deps.CheckBinaries(s.required)
	resp := healthResponse{Status: "ok", Dependencies: statuses}
	code := http.StatusOK
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// drainBody discards up to limit bytes so the connection can be reused.
func drainBody(r io.Reader, limit int64) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, limit))
}
