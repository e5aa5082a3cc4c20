package server

import (
	"context"
	"fmt"
	"net"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/config"
	"github.com/kpessa/dynamic-text-sub006/internal/http"
	"github.com/kpessa/dynamic-text-sub006/internal/logging"
	"github.com/kpessa/dynamic-text-sub006/internal/middleware"
	"github.com/kpessa/dynamic-text-sub006/internal/monitoring"
	"github.com/kpessa/dynamic-text-sub006/internal/orchestrator"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
	"github.com/kpessa/dynamic-text-sub006/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	router  *gin.Engine
	orch    *orchestrator.Orchestrator
	metrics *monitoring.Metrics
	httpSrv *nethttp.Server
}

// New builds the full server: worker pool, handlers, middleware, routes.
func New(cfg *config.Config, log *logging.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewNop()
	}

	metrics := monitoring.NewMetrics()

	sandboxCfg := sandbox.Config{
		Deadline:       time.Duration(cfg.Sandbox.DeadlineMs) * time.Millisecond,
		CacheCapacity:  cfg.Sandbox.CacheCapacity,
		MaxSourceBytes: cfg.Sandbox.MaxSourceBytes,
	}
	orch := orchestrator.New(sandboxCfg, cfg.Sandbox.PoolSize, log, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		router.Use(limiter.Middleware())
	}

	handlers := http.NewHandlers(orch)
	wsHandler := ws.NewHandler(orch, log, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	{
		api.POST("/execute", handlers.Execute)
		api.POST("/batch", handlers.BatchExecute)
		api.POST("/validate", handlers.Validate)
		api.GET("/metrics", handlers.Metrics)
		api.POST("/cache/clear", handlers.ClearCache)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/stream/console", wsHandler.HandleConsoleFeed)

	return &Server{
		cfg:     cfg,
		log:     log.Named("server"),
		router:  router,
		orch:    orch,
		metrics: metrics,
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &nethttp.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening",
			zap.String("addr", addr),
			zap.Int("pool_size", s.orch.PoolSize()),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.orch.Close()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpSrv.Shutdown(shutdownCtx)
	s.orch.Close()
	return err
}
