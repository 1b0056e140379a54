// Package server exposes the retrieval path over HTTP for downstream
// consumers: similarity queries, a health probe, and collection stats.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reelpipe/hindex/internal/async"
	"github.com/reelpipe/hindex/internal/search"
	"github.com/reelpipe/hindex/internal/telemetry"
	"github.com/reelpipe/hindex/internal/vector"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8392"

	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	healthTimeout     = 5 * time.Second
)

// ReindexFunc runs one full re-index pass, reporting through p. It is
// executed in the background when a reindex is triggered over HTTP.
type ReindexFunc func(ctx context.Context, p *async.Progress) error

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address.
	Addr string

	// Collection names the backing collection in stats responses.
	Collection string

	// Reindex enables the /v1/reindex endpoints. Nil leaves them
	// unregistered.
	Reindex ReindexFunc
}

// Server serves queries over HTTP until its context is cancelled.
type Server struct {
	engine     *search.Engine
	store      vector.Store
	collection string
	metrics    *telemetry.Metrics
	httpServer *http.Server

	reindex   ReindexFunc
	reindexer *async.Indexer

	// lifetime outlives individual requests; triggered reindex runs bind
	// to it so they survive the request that started them.
	lifetime context.Context
}

// New creates a Server. Engine and store are required.
func New(engine *search.Engine, store vector.Store, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		engine:     engine,
		store:      store,
		collection: cfg.Collection,
		metrics:    telemetry.NewMetrics(),
		lifetime:   context.Background(),
	}
	if cfg.Reindex != nil {
		s.reindex = cfg.Reindex
		s.reindexer = async.NewIndexer()
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/stats", s.handleStats)
		if s.reindexer != nil {
			r.Post("/reindex", s.handleReindexStart)
			r.Get("/reindex", s.handleReindexStatus)
		}
	})
	return r
}

// ListenAndServe starts the server and blocks until the context is cancelled
// or the listener fails. On cancellation in-flight requests get the shutdown
// timeout to finish and any running reindex is cancelled and drained.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.lifetime = ctx

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	slog.Info("server_listening", slog.String("addr", s.httpServer.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	if s.reindexer != nil {
		s.reindexer.Stop()
	}
	slog.Info("server_stopped")
	return ctx.Err()
}

// requestLogger logs one line per request with status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("remote_addr", r.RemoteAddr))
	})
}
