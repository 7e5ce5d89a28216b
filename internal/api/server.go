// Package api exposes the task store over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/valter-silva-au/opsboard/internal/core"
)

const (
	defaultBodyLimit = 1 << 20
	shutdownTimeout  = 10 * time.Second
)

// Server serves the task API. Businesses may be nil, in which case
// creating a task from a business id is rejected.
type Server struct {
	store      *core.TaskStore
	businesses core.BusinessLookup
	validate   *validator.Validate
	logger     *slog.Logger
	pageSize   int
}

// Option configures a Server.
type Option func(*Server)

// WithBusinesses enables business lookups for task creation.
func WithBusinesses(b core.BusinessLookup) Option {
	return func(s *Server) { s.businesses = b }
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPageSize sets the page size used when a request does not specify one.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewServer creates a Server over store.
func NewServer(store *core.TaskStore, opts ...Option) *Server {
	s := &Server{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
		pageSize: 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/refresh", s.handleRefresh)
		r.Get("/board", s.handleBoard)
		r.Get("/steps/{classification}", s.handleSteps)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/{id}", s.handleGetTask)
			r.Put("/{id}", s.handleUpdateTask)
			r.Delete("/{id}", s.handleDeleteTask)
			r.Post("/{id}/advance", s.handleAdvanceTask)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// readJSON decodes a JSON request body with a size limit. An empty body
// leaves v at its zero value when allowEmpty is set.
func readJSON[T any](w http.ResponseWriter, r *http.Request, allowEmpty bool) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, defaultBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return v, true
		}
		badRequest(w, r, "invalid request body: "+err.Error())
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
