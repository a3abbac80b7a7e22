package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/skobkin/meshwatch/internal/config"
)

// NewRouter wires the API routes. hub and metrics may be nil.
func NewRouter(h *Handler, hub *Hub, cfg config.HTTPConfig, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	if hub != nil {
		router.GET("/ws", hub.ServeWS)
	}

	apiGroup := router.Group("/api")
	if cfg.RateLimit > 0 {
		apiGroup.Use(newClientLimiter(cfg.RateLimit, cfg.Burst).middleware())
	}
	{
		apiGroup.GET("/nodes", h.ListNodes)
		apiGroup.GET("/nodes/:id", h.GetNode)
		apiGroup.GET("/messages", h.ListMessages)
		apiGroup.POST("/messages", h.SendMessage)
		apiGroup.GET("/alerts", h.ListAlerts)
		apiGroup.POST("/alerts/:id/ack", h.AcknowledgeAlert)
		apiGroup.GET("/routes", h.ListRoutes)
		apiGroup.GET("/channels", h.ListChannels)
		apiGroup.GET("/geojson", h.GeoJSON)
		apiGroup.GET("/health", h.Health)
		apiGroup.GET("/stats", h.Stats)
	}

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if logger == nil {
			return
		}
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}
