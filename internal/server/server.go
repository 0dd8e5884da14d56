// ABOUTME: Reference assistant backend: chi router serving conversations, history, chat and ingest
// ABOUTME: Persists to a store.Store and answers with a pluggable Responder

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/store"
)

const (
	defaultIdempotencyTTL = 10 * time.Minute
	maxTrackedRequests    = 10000
	maxBodyBytes          = 1 << 20
	shutdownTimeout       = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	Store     store.Store
	Responder Responder
	// IngestionMarker prefixes the system message stored for an ingested document.
	IngestionMarker string
	IdempotencyTTL  time.Duration
	// Verifier, when set, requires a bearer token on every /api route.
	Verifier auth.TokenVerifier
	Logger   *slog.Logger
}

// Server is the reference backend.
type Server struct {
	router    *chi.Mux
	store     store.Store
	responder Responder
	marker    string
	replays   *dedupe.Cache[string]
	logger    *slog.Logger
	now       func() time.Time
}

// New builds the server and its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	responder := opts.Responder
	if responder == nil {
		responder = EchoResponder{}
	}
	marker := opts.IngestionMarker
	if marker == "" {
		marker = history.DefaultIngestionMarker
	}
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	s := &Server{
		router:    chi.NewRouter(),
		store:     opts.Store,
		responder: responder,
		marker:    marker,
		replays:   dedupe.New[string](ttl, maxTrackedRequests),
		logger:    logger.With("component", "server"),
		now:       time.Now,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get(backend.PathHealth, s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if opts.Verifier != nil {
			r.Use(auth.Middleware(opts.Verifier))
		}
		r.Get(backend.PathConversations, s.handleListConversations)
		r.Get(backend.PathHistory, s.handleHistory)
		r.Post(backend.PathChat, s.handleChat)
		r.Post(backend.PathIngest, s.handleIngest)
	})

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the replay cache.
func (s *Server) Close() {
	s.replays.Close()
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		s.logger.Error("server error", "error", serveErr)
	}

	// The caller's context is already canceled; shutdown gets its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}
