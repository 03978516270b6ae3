package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cliplens/cliplens/internal/analyze"
	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/server/middleware"
	"github.com/cliplens/cliplens/internal/server/ratelimit"
	"github.com/cliplens/cliplens/internal/store"
)

// ChatStreamer answers follow-up questions about an analyzed video,
// streaming the reply. Implemented by the analyze client.
type ChatStreamer interface {
	ChatStream(ctx context.Context, cc analyze.ChatContext, question string, emit func(delta string)) (string, error)
}

// Options wires the server's collaborators. DB and Chat are optional.
type Options struct {
	Port               int
	PasswordHash       string
	JWTSecret          string
	JWTExpirationHours int

	// NewOrchestrator builds a fully wired pipeline orchestrator for a
	// user's session.
	NewOrchestrator func(userID string) *pipeline.Orchestrator

	Chat      ChatStreamer
	DB        *store.DB
	RateLimit *ratelimit.Config
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	sessions    *Sessions
	db          *store.DB
	chat        ChatStreamer
	jwtService  *JWTService
	authHandler *AuthHandler
	rateLimiter *ratelimit.Limiter
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.NewOrchestrator == nil {
		return nil, fmt.Errorf("orchestrator factory is required")
	}
	if opts.PasswordHash == "" {
		return nil, fmt.Errorf("access password hash is required")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	s := &Server{
		sessions:    NewSessions(opts.NewOrchestrator),
		db:          opts.DB,
		chat:        opts.Chat,
		jwtService:  NewJWTService(opts.JWTSecret, opts.JWTExpirationHours),
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
	}
	s.authHandler = NewAuthHandler(opts.PasswordHash, s.jwtService)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	mux.HandleFunc("GET /health", s.handleHealth)

	authed := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.Handle("POST /api/analyses", protect(s.handleStartAnalysis))
	mux.Handle("GET /api/analyses/current", protect(s.handleCurrentAnalysis))
	mux.Handle("GET /api/analyses/events", protect(s.handleAnalysisEvents))
	mux.Handle("POST /api/analyses/reset", protect(s.handleResetAnalysis))

	mux.Handle("GET /api/videos", protect(s.handleListVideos))
	mux.Handle("GET /api/videos/{id}", protect(s.handleGetVideo))
	mux.Handle("POST /api/videos/{id}/chat", protect(s.handleChat))

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: s.withRateLimit(s.withLogging(s.withCORS(mux))),
		// No WriteTimeout: the SSE endpoints hold their connection open
		// for as long as the client watches the run.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Start begins listening for requests. It blocks until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[server] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware-wrapped handler. Used in tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())+1))
			}
			s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[server] %s %s from %s in %v", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// clientID extracts the client identifier (IP) used for rate limiting.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
