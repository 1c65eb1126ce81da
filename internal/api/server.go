package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/outbreak-harvester/internal/harvester"
	"github.com/JakeFAU/outbreak-harvester/internal/id"
	"github.com/JakeFAU/outbreak-harvester/internal/metrics"
	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Runner executes one harvest run.
type Runner interface {
	Run(ctx context.Context) harvester.Result
}

// RecordReader is the read side of outbreak.Store.
type RecordReader interface {
	List(ctx context.Context, limit, offset int) ([]outbreak.Record, error)
	Get(ctx context.Context, id string) (outbreak.Record, error)
	Ping(ctx context.Context) error
}

// Options tunes the server.
type Options struct {
	AuthEnabled bool
	APIKey      string
	// RequestTimeout bounds read endpoints.
	RequestTimeout time.Duration
	// HarvestTimeout bounds a triggered run. The run is detached from the
	// client connection so a dropped request cannot abort a commit.
	HarvestTimeout time.Duration
}

// Server wires HTTP handlers to the harvester and the record store.
type Server struct {
	router chi.Router
	runner Runner
	store  RecordReader
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, store RecordReader, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.HarvestTimeout <= 0 {
		opts.HarvestTimeout = 10 * time.Minute
	}
	s := &Server{runner: runner, store: store, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			if opts.AuthEnabled {
				r.Use(apiKeyMiddleware(opts.APIKey))
			}
			r.Post("/harvest", s.harvest)
		})
		r.Route("/outbreaks", func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Get("/", s.listOutbreaks)
			r.Get("/{id}", s.getOutbreak)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type harvestResponse struct {
	RunID   string `json:"run_id,omitempty"`
	Outcome string `json:"outcome"`
	Added   int    `json:"added"`
	Message string `json:"message"`
}

type listResponse struct {
	Outbreaks []outbreak.Record `json:"outbreaks"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// harvest always answers 200: every outcome, failures included, is a
// terminal status carried in the body.
func (s *Server) harvest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.HarvestTimeout)
	defer cancel()

	res := s.runner.Run(ctx)
	s.writeJSON(w, http.StatusOK, harvestResponse{
		RunID:   res.RunID,
		Outcome: string(res.Outcome),
		Added:   res.Added,
		Message: res.Message(),
	})
}

func (s *Server) listOutbreaks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be >= 0")
		return
	}

	records, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list outbreaks failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list outbreaks")
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Outbreaks: records, Limit: limit, Offset: offset})
}

func (s *Server) getOutbreak(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")
	if !id.Valid(recordID) {
		s.writeError(w, http.StatusNotFound, "outbreak not found")
		return
	}
	rec, err := s.store.Get(r.Context(), recordID)
	switch {
	case errors.Is(err, outbreak.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "outbreak not found")
	case err != nil:
		s.logger.Error("get outbreak failed", zap.String("id", recordID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load outbreak")
	default:
		s.writeJSON(w, http.StatusOK, rec)
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

type requestIDKey struct{}

// RequestID returns the ID assigned to the request by the server, if any.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
