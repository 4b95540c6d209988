// Package api serves the HTTP surface: the receiver ingest endpoint, the
// per-area observation feed, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"wxaloft/internal/ingest"
	"wxaloft/internal/storage"
)

// Processor handles one ingest body.
type Processor interface {
	Process(ctx context.Context, body []byte) ingest.Result
}

// ObservationStore is the read side used by the observation feed.
type ObservationStore interface {
	LookupArea(ctx context.Context, idOrName string) (storage.Area, error)
	ObservationsForArea(ctx context.Context, areaID int64, since time.Time) ([]storage.Observation, error)
}

// Config holds HTTP settings.
type Config struct {
	Addr           string
	IngestPath     string        // default /acars
	MaxBodyBytes   int64         // default 64 KiB
	RequestTimeout time.Duration // default 30s
}

// Server wires handlers to their collaborators.
type Server struct {
	cfg     Config
	ingest  Processor
	store   ObservationStore
	metrics http.Handler
	log     *zap.Logger
	now     func() time.Time
}

// NewServer creates a server. metrics may be nil.
func NewServer(cfg Config, p Processor, store ObservationStore, metrics http.Handler, log *zap.Logger) *Server {
	if cfg.IngestPath == "" {
		cfg.IngestPath = "/acars"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, ingest: p, store: store, metrics: metrics, log: log, now: time.Now}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.With(htmlContent).HandleFunc(s.cfg.IngestPath, s.handleIngest)
	r.Get("/obs", s.handleObservations)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Addr), zap.String("ingest_path", s.cfg.IngestPath))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
