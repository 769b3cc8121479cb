package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeflow/internal/api"
	"codeflow/internal/config"
	"codeflow/internal/logging"
	"codeflow/internal/services"
	"codeflow/internal/submission"
)

// jsonOverheadBytes covers escaping and envelope fields around submitted
// source text.
const jsonOverheadBytes = 64 << 10

type apiServer struct {
	bind      string
	logger    *slog.Logger
	daemon    *Daemon
	subs      *submission.Service
	bodyLimit int64

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:      bind,
		logger:    logger.With(logging.String(logging.FieldComponent, "api-server")),
		daemon:    d,
		subs:      d.submissions,
		bodyLimit: 2*cfg.Submission.MaxBytes + jsonOverheadBytes,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", s.handleStatus)
	protected.HandleFunc("GET /api/artifacts", s.handleListArtifacts)
	protected.HandleFunc("POST /api/artifacts", s.handleSubmit)
	protected.HandleFunc("GET /api/artifacts/{id}", s.handleGetArtifact)
	protected.HandleFunc("PATCH /api/artifacts/{id}", s.handleUpdateArtifact)
	protected.HandleFunc("DELETE /api/artifacts/{id}", s.handleDeleteArtifact)
	protected.HandleFunc("POST /api/artifacts/{id}/retry", s.handleRetryArtifact)
	protected.HandleFunc("GET /api/queue", s.handleQueue)
	protected.HandleFunc("GET /files/{name}", s.handleFile)
	protected.HandleFunc("POST /api/notifications/test", s.handleTestNotification)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/", authMiddleware(token, protected))
	return s.withRequestID(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:          status.Running,
		PID:              status.PID,
		DatabaseEngine:   status.DatabaseEngine,
		DatabaseLocation: status.DatabaseLocation,
		LockFilePath:     status.LockFilePath,
		SandboxURL:       status.SandboxURL,
		Workflow:         api.FromStatusSummary(status.Workflow),
		Checks:           api.FromCheckResults(status.Checks),
	})
}

func (s *apiServer) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.subs.List(r.Context(), userFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ArtifactListResponse{Items: api.FromArtifacts(artifacts)})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	artifact, err := s.subs.Submit(r.Context(), submission.SubmitRequest{
		OwnerID:    userFromRequest(r),
		Name:       req.Name,
		Visibility: req.Visibility,
		Content:    []byte(req.Content),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ArtifactResponse{Artifact: api.FromArtifact(artifact)})
}

func (s *apiServer) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.artifactID(w, r)
	if !ok {
		return
	}
	artifact, err := s.subs.Get(r.Context(), userFromRequest(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ArtifactResponse{Artifact: api.FromArtifact(artifact)})
}

func (s *apiServer) handleUpdateArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.artifactID(w, r)
	if !ok {
		return
	}
	var req api.UpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	artifact, err := s.subs.Update(r.Context(), userFromRequest(r), id, submission.UpdateRequest{
		Name:       req.Name,
		Visibility: req.Visibility,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ArtifactResponse{Artifact: api.FromArtifact(artifact)})
}

func (s *apiServer) handleRetryArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.artifactID(w, r)
	if !ok {
		return
	}
	artifact, err := s.subs.Retry(r.Context(), userFromRequest(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ArtifactResponse{Artifact: api.FromArtifact(artifact)})
}

func (s *apiServer) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.artifactID(w, r)
	if !ok {
		return
	}
	if err := s.subs.Delete(r.Context(), userFromRequest(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	summary := s.daemon.workflow.Status(r.Context())
	resp := api.QueueResponse{
		Running: summary.Running,
		Pending: api.FromJobs(s.daemon.workflow.Pending()),
	}
	if summary.Current != nil {
		current := api.FromJob(*summary.Current)
		resp.Current = &current
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.logger.Warn("test notification failed", logging.Error(err))
		message = fmt.Sprintf("%s: %v", message, err)
	}
	s.writeJSON(w, http.StatusOK, api.NotificationTestResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.subs.File(r.Context(), userFromRequest(r), r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *apiServer) artifactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid artifact id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.bodyLimit)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
		s.writeError(w, status, "internal error")
		return
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
