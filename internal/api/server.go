// Package api serves the read-side HTTP surface over a synced store:
// entry lookups, listings, loader status and a websocket event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	"github.com/slatehq/slatebox/internal/loader"
	"github.com/slatehq/slatebox/internal/store"
)

// Catalog is the read-side view of a store.
type Catalog interface {
	Get(id string) (*store.EntryRecord, error)
	Summaries() ([]store.EntrySummary, error)
	Count() (int, error)
}

// StatusSource reports loader state for the status endpoint.
type StatusSource interface {
	Status() loader.Status
}

type Config struct {
	Addr string
}

type Server struct {
	config  *Config
	server  *http.Server
	hub     *Hub
	catalog Catalog
	status  StatusSource
	started time.Time
}

func New(config *Config, catalog Catalog, status StatusSource, hub *Hub) *Server {
	s := &Server{
		config:  config,
		hub:     hub,
		catalog: catalog,
		status:  status,
		started: time.Now(),
	}
	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: s.setupRoutes(),
	}
	return s
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("api server start", "addr", s.config.Addr)
	defer slog.Info("api server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Shutdown()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	r := gin.New()

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())

	r.GET("/", s.Index)
	r.GET("/healthz", s.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", s.Status)
		v1.GET("/entries", s.Entries)
		v1.GET("/entry/*id", s.Entry)
		v1.GET("/events", s.hub.Handler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
