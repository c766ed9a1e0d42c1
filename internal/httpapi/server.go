package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lzajac/airdata/internal/config"
	"github.com/lzajac/airdata/internal/model"
	"github.com/lzajac/airdata/internal/ratelimit"
	"github.com/lzajac/airdata/internal/store"
)

// Store is the measurement persistence surface the API depends on.
type Store interface {
	Ping(ctx context.Context) error
	Insert(ctx context.Context, m model.Measurement) (int64, time.Time, error)
	Query(ctx context.Context, q store.QueryFilter) ([]model.Measurement, error)
	Latest(ctx context.Context, q store.QueryFilter) (*model.Measurement, error)
	Stats(ctx context.Context) (store.Stats, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     config.Config
	store   Store
	limiter *ratelimit.Limiter
	engine  *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, st Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{
		cfg:     cfg,
		store:   st,
		limiter: ratelimit.New(cfg.RateLimit, time.Minute),
		engine:  engine,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	// Liveness stays outside auth and rate limiting.
	s.engine.GET("/health", s.handleHealth)

	keyed := apiKeyMiddleware(s.cfg.APIKey)
	var readAuth gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if s.cfg.RequireReadAuth {
		readAuth = keyed
	}

	measurements := s.engine.Group("/measurements")
	measurements.Use(rateLimitMiddleware(s.limiter))
	{
		measurements.GET("", readAuth, s.handleList)
		measurements.GET("/latest", readAuth, s.handleLatest)
		measurements.GET("/stats", readAuth, s.handleStats)
		measurements.POST("", keyed, s.handleCreate)
		measurements.DELETE("/:id", keyed, s.handleDelete)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
