// Package api exposes the HTTP surface: the SSE detection stream, ingest
// endpoints for audio and video results, recent detections, health, and
// metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/featherwatch/featherwatch/internal/broadcast"
	"github.com/featherwatch/featherwatch/internal/datastore"
	"github.com/featherwatch/featherwatch/internal/logging"
	"github.com/featherwatch/featherwatch/internal/observability"
	"github.com/featherwatch/featherwatch/internal/pipeline"
)

// Config holds HTTP server settings.
type Config struct {
	Port              string
	Debug             bool
	QueueSize         int
	HeartbeatInterval time.Duration
}

// Server is the HTTP front end.
type Server struct {
	echo        *echo.Echo
	cfg         Config
	pipe        *pipeline.Pipeline
	broadcaster *broadcast.Broadcaster
	store       datastore.Interface
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates the HTTP server and registers all routes.
func New(cfg Config, pipe *pipeline.Pipeline, broadcaster *broadcast.Broadcaster, store datastore.Interface, metrics *observability.Metrics) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		cfg:         cfg,
		pipe:        pipe,
		broadcaster: broadcaster,
		store:       store,
		metrics:     metrics,
		logger:      logging.ForService("api"),
	}

	e.GET("/api/v1/stream", s.ServeStream)
	e.GET("/api/v1/detections/recent", s.RecentDetections)
	e.POST("/api/v1/audio", s.IngestAudio)
	e.POST("/api/v1/video/:id", s.VideoResult)
	e.GET("/healthz", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		metrics.Registry(), promhttp.HandlerOpts{})))

	return s
}

// Start runs the HTTP listener until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "port", s.cfg.Port)
	if err := s.echo.Start(":" + s.cfg.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health reports basic liveness.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.broadcaster.Count(),
	})
}

// RecentDetections returns the newest stored detections.
func (s *Server) RecentDetections(c echo.Context) error {
	detections, err := s.store.RecentDetections(c.Request().Context(), 25)
	if err != nil {
		s.logger.Error("failed to load recent detections", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to load detections",
		})
	}

	payloads := make([]pipeline.DetectionPayload, 0, len(detections))
	for i := range detections {
		payloads = append(payloads, pipeline.NewDetectionPayload(&detections[i]))
	}
	return c.JSON(http.StatusOK, payloads)
}
