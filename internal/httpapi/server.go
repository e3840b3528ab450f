// Package httpapi exposes task evaluation, trace lookup, replay and run
// reports over HTTP.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/report"
	"github.com/ahrav/finjudge/internal/scoring"
)

// maxTaskBytes bounds a task request body.
const maxTaskBytes = 1 << 20

// Server serves the evaluation API.
type Server struct {
	eval     *evaluation.Evaluator
	apiToken string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAPIToken requires token as a bearer token on /v1 routes.
func WithAPIToken(token string) Option {
	return func(s *Server) { s.apiToken = token }
}

// NewServer creates an API server over eval.
func NewServer(eval *evaluation.Evaluator, opts ...Option) *Server {
	s := &Server{eval: eval, logger: slog.Default().With("component", "httpapi")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, s.requestLogger, m.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1/runs/{runID}", func(r chi.Router) {
		r.Use(s.requireToken, validRunID)
		r.Post("/tasks", s.evaluateTask)
		r.Get("/tasks", s.listTraces)
		r.Get("/tasks/{taskID}", s.getTrace)
		r.Get("/tasks/{taskID}/replay", s.replayTrace)
		r.Get("/report", s.runReport)
		r.Get("/manifest", s.runManifest)
	})
	return r
}

// NewHTTPServer wraps the handler in an http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type errResp struct {
	Error string `json:"error"`
}

// ReplayResponse is the body of the replay route.
type ReplayResponse struct {
	Stored   domain.ScoreResult `json:"stored"`
	Replayed domain.ScoreResult `json:"replayed"`
	Match    bool               `json:"match"`
	Mismatch string             `json:"mismatch,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.eval.Judges().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "judges unreachable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) evaluateTask(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	var task domain.Task
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskBytes))
	if err := dec.Decode(&task); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
		return
	}

	trace, err := s.eval.EvaluateTask(r.Context(), runID, task)
	switch {
	case errors.Is(err, domain.ErrInvalidTask), errors.Is(err, domain.ErrInvalidRunID):
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
	case errors.Is(err, audit.ErrTraceExists):
		writeJSON(w, http.StatusConflict, errResp{err.Error()})
	case err != nil:
		s.logger.ErrorContext(r.Context(), "evaluate task failed", "run_id", runID, "task_id", task.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
	default:
		writeJSON(w, http.StatusCreated, trace)
	}
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	trace, ok := s.lookup(w, r)
	if ok {
		writeJSON(w, http.StatusOK, trace)
	}
}

func (s *Server) listTraces(w http.ResponseWriter, r *http.Request) {
	traces, err := s.eval.Store().List(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	if traces == nil {
		traces = []*domain.Trace{}
	}
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) replayTrace(w http.ResponseWriter, r *http.Request) {
	trace, ok := s.lookup(w, r)
	if !ok {
		return
	}
	replayed, err := scoring.Replay(trace)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errResp{err.Error()})
		return
	}
	resp := ReplayResponse{Stored: trace.Score, Replayed: replayed, Match: true}
	if err := scoring.Verify(trace); err != nil {
		resp.Match = false
		resp.Mismatch = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	traces, err := s.eval.Store().List(r.Context(), runID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report.Build(runID, traces))
}

func (s *Server) runManifest(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.eval.Store().(audit.ManifestStore)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errResp{"trace store does not keep manifests"})
		return
	}
	man, err := ms.GetManifest(r.Context(), chi.URLParam(r, "runID"))
	switch {
	case errors.Is(err, audit.ErrManifestNotFound):
		writeJSON(w, http.StatusNotFound, errResp{err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
	default:
		writeJSON(w, http.StatusOK, man)
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*domain.Trace, bool) {
	trace, err := s.eval.Store().Get(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "taskID"))
	switch {
	case errors.Is(err, audit.ErrTraceNotFound):
		writeJSON(w, http.StatusNotFound, errResp{err.Error()})
		return nil, false
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return nil, false
	}
	return trace, true
}

// validRunID answers 400 for run ids that cannot key a trace.
func validRunID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := domain.ValidateRunID(chi.URLParam(r, "runID")); err != nil {
			writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.apiToken == "" {
		return next
	}
	want := []byte(s.apiToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			writeJSON(w, http.StatusUnauthorized, errResp{"unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"latency", time.Since(start),
			"request_id", m.GetReqID(r.Context()))
	})
}
