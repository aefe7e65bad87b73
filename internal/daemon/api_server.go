package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"reelsight/internal/api"
	"reelsight/internal/config"
	"reelsight/internal/history"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/pipeline"
	"reelsight/internal/services"
	"reelsight/internal/storage"
	"reelsight/internal/workflow"
)

// Multipart bodies above this size are spooled to temp files by net/http.
const uploadMemoryLimit = 32 << 20

type apiServer struct {
	cfg    *config.Config
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		cfg:    cfg,
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		// No write timeout: event streams stay open until the job ends.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(s.token))
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs/{id}", s.handleStatus)
		r.Get("/jobs/{id}/events", s.handleEvents)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
		r.Post("/jobs/{id}/resume", s.handleResume)
		r.Get("/jobs/{id}/result", s.handleResult)
		r.Get("/history", s.handleHistory)
		r.Get("/usage", s.handleUsage)
		r.Get("/health", s.handleHealth)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
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

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		// Open event streams do not drain on their own.
		_ = s.server.Close()
	}
	s.listener = nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", fmt.Sprintf("parse multipart: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("media")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "missing 'media' file")
		return
	}
	defer file.Close()

	owner := strings.TrimSpace(r.FormValue("owner"))
	if limit := s.cfg.Quota.MaxResultsPerOwner; limit > 0 && owner != "" {
		count, err := storage.CountOwnedResults(ctx, s.daemon.store, owner)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "transient", fmt.Sprintf("count results: %v", err))
			return
		}
		if count >= limit {
			s.writeError(w, http.StatusTooManyRequests, "quota_exceeded",
				fmt.Sprintf("owner %s has %d of %d stored results", owner, count, limit))
			return
		}
	}

	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "." || filename == string(filepath.Separator) {
		s.writeError(w, http.StatusBadRequest, "validation", "media file name required")
		return
	}
	id := uuid.NewString()
	key := storage.UploadKey(id, filename)
	size, err := s.daemon.store.Put(ctx, key, file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "transient", fmt.Sprintf("store upload: %v", err))
		return
	}

	jobID, err := s.daemon.manager.Submit(ctx, workflow.Input{
		ID:    id,
		Owner: owner,
		Media: job.Input{
			Filename:    filename,
			Key:         key,
			ContentType: header.Header.Get("Content-Type"),
			SizeBytes:   size,
		},
	})
	if err != nil {
		_ = s.daemon.store.Delete(context.WithoutCancel(ctx), key)
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: jobID})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.manager.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	var req api.ResumeRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "validation", fmt.Sprintf("decode body: %v", err))
			return
		}
	}
	jobID, err := s.daemon.manager.Resume(r.Context(), workflow.ResumeRequest{
		JobID:     chi.URLParam(r, "id"),
		FromStage: req.FromStage,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: jobID})
}

func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.daemon.store.Read(r.Context(), storage.ResultKey(id))
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
		s.writeError(w, http.StatusNotFound, "not_found", "result not available")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "transient", fmt.Sprintf("read result: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.daemon.history == nil {
		s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: []api.HistoryEntry{}})
		return
	}
	query := r.URL.Query()
	filter := history.Filter{
		Owner:  strings.TrimSpace(query.Get("owner")),
		Status: strings.TrimSpace(query.Get("status")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "validation", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	entries, err := s.daemon.history.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "transient", fmt.Sprintf("list history: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: api.FromHistory(entries)})
}

func (s *apiServer) handleUsage(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "validation", "owner is required")
		return
	}
	count, err := storage.CountOwnedResults(r.Context(), s.daemon.store, owner)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "transient", fmt.Sprintf("count results: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.UsageResponse{
		Owner:   owner,
		Results: count,
		Limit:   s.cfg.Quota.MaxResultsPerOwner,
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromHealth(s.daemon.manager.Health(r.Context())))
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, workflow.ErrTerminal):
		s.writeError(w, http.StatusConflict, "terminal", err.Error())
	case errors.Is(err, workflow.ErrActive), errors.Is(err, pipeline.ErrNotResumable):
		s.writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, pipeline.ErrUnknownStage), errors.Is(err, job.ErrDuplicate):
		s.writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, workflow.ErrStopped):
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, services.FailureCode(err), err.Error())
	}
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}
