// Package server exposes assistant sessions over a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nexus-ai/nexus-go/pkg/core"
	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// AssistantFactory builds the assistant backing a new session.
type AssistantFactory func(ctx context.Context) (*core.Assistant, error)

// Config contains the server dependencies.
type Config struct {
	// Factory creates one assistant per session. Required.
	Factory AssistantFactory

	// Store serves GET /api/stats. Required.
	Store storage.Store

	// AllowedOrigins for CORS. Defaults to any origin.
	AllowedOrigins []string

	// RequestTimeout bounds every request. Defaults to 120s.
	RequestTimeout time.Duration

	// SessionTTL closes sessions idle for longer than this. Defaults to 30m.
	SessionTTL time.Duration

	// MaxSessions caps open sessions; creating one more closes the least
	// recently used. Defaults to 100.
	MaxSessions int

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server routes HTTP requests to per-session assistants.
type Server struct {
	factory AssistantFactory
	store   storage.Store
	logger  *slog.Logger
	router  *chi.Mux

	sessionTTL  time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// session is an assistant with the time it was last used.
type session struct {
	assistant *core.Assistant
	lastUsed  time.Time
}

// New creates a server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Factory == nil {
		return nil, errors.New("server: factory is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &Server{
		factory:     cfg.Factory,
		store:       cfg.Store,
		logger:      cfg.Logger,
		sessionTTL:  cfg.SessionTTL,
		maxSessions: cfg.MaxSessions,
		now:         cfg.Clock,
		sessions:    make(map[string]*session),
	}
	s.router = s.routes(cfg)
	return s, nil
}

func (s *Server) routes(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{sessionID}", s.handleGetSession)
			r.Delete("/{sessionID}", s.handleDeleteSession)
			r.Post("/{sessionID}/ask", s.handleAsk)
			r.Post("/{sessionID}/feedback", s.handleFeedback)
			r.Post("/{sessionID}/reset", s.handleReset)
			r.Get("/{sessionID}/history", s.handleHistory)
		})
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and
// closes every session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close closes every open session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for id, sess := range sessions {
		s.closeSession(id, sess.assistant)
	}
}

func (s *Server) session(id string) (*core.Assistant, error) {
	expired := s.expire()
	defer s.closeAll(expired)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastUsed = s.now()
	return sess.assistant, nil
}

func (s *Server) addSession(a *core.Assistant) {
	evicted := s.expire()

	s.mu.Lock()
	for len(s.sessions) >= s.maxSessions {
		id := s.leastRecentlyUsed()
		evicted[id] = s.sessions[id].assistant
		delete(s.sessions, id)
	}
	s.sessions[a.SessionID()] = &session{assistant: a, lastUsed: s.now()}
	s.mu.Unlock()

	s.closeAll(evicted)
}

func (s *Server) removeSession(id string) (*core.Assistant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	return sess.assistant, true
}

// expire removes sessions idle for longer than the TTL and returns them.
func (s *Server) expire() map[string]*core.Assistant {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make(map[string]*core.Assistant)
	cutoff := s.now().Add(-s.sessionTTL)
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			expired[id] = sess.assistant
			delete(s.sessions, id)
		}
	}
	return expired
}

// leastRecentlyUsed must be called with s.mu held on a non-empty map.
func (s *Server) leastRecentlyUsed() string {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sess := range s.sessions {
		if oldestID == "" || sess.lastUsed.Before(oldest) {
			oldestID, oldest = id, sess.lastUsed
		}
	}
	return oldestID
}

func (s *Server) closeAll(assistants map[string]*core.Assistant) {
	for id, a := range assistants {
		s.logger.Info("closing evicted session", slog.String("session", id))
		s.closeSession(id, a)
	}
}

func (s *Server) closeSession(id string, a *core.Assistant) {
	if err := a.Close(); err != nil {
		s.logger.Warn("failed to close session", slog.String("session", id), slog.String("error", err.Error()))
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
