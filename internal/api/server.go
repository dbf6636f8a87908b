package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

func NewServer(handlers *Handlers, metrics http.Handler, cfg ServerConfig) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
			Handler:      NewHandler(handlers, metrics, cfg),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handlers: handlers,
	}
}

// NewHandler builds the routed and middleware-wrapped handler.
func NewHandler(handlers *Handlers, metrics http.Handler, cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", handlers.Health)

	// Usage
	mux.HandleFunc("GET /api/usage", handlers.GetUsage)
	mux.HandleFunc("GET /api/trends", handlers.GetTrends)

	// Configuration
	mux.HandleFunc("GET /api/config", handlers.GetConfig)
	mux.HandleFunc("PUT /api/config", handlers.UpdateConfig)

	// Tasks
	mux.HandleFunc("POST /api/check", handlers.TriggerCheck)
	mux.HandleFunc("GET /api/tasks", handlers.ListTasks)
	mux.HandleFunc("POST /api/tasks/{name}", handlers.RunTask)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	limiter := NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	return withMiddleware(limiter.Middleware(mux), cfg.RequestTimeout)
}

func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
