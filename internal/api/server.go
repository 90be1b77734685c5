// Package api exposes the notification queries, mark-as-read and the live SSE stream over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"notification-pipeline/internal/broadcast"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "notification-service"

// CheckFunc is one readiness probe.
type CheckFunc func(ctx context.Context) error

type Config struct {
	RateLimit float64
	RateBurst int
}

type Server struct {
	router  *gin.Engine
	svc     *service.NotificationService
	bus     *broadcast.Broadcaster
	checks  map[string]CheckFunc
	logger  logger.Logger
	started time.Time
}

func NewServer(cfg Config, svc *service.NotificationService, bus *broadcast.Broadcaster, checks map[string]CheckFunc, log logger.Logger) *Server {
	router := gin.New()
	log = log.WithFields(map[string]interface{}{"component": "api"})
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))

	s := &Server{
		router:  router,
		svc:     svc,
		bus:     bus,
		checks:  checks,
		logger:  log,
		started: time.Now(),
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(cfg Config) {
	api := s.router.Group("/api/notifications")
	{
		queries := api.Group("")
		queries.Use(RateLimit(cfg.RateLimit, cfg.RateBurst, s.logger))
		queries.GET("/user/:userId", s.handleList())
		queries.GET("/user/:userId/unread", s.handleListUnread())
		queries.GET("/user/:userId/unread-count", s.handleUnreadCount())
		queries.PATCH("/:id/read", s.handleMarkAsRead())

		// long-lived; not rate limited per request
		api.GET("/stream/user/:userId", s.handleStream())
		api.GET("/stream-sse/user/:userId", s.handleStream())

		api.GET("/health", s.handleHealth())
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/ready", s.handleReady())
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
