package httpserver

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/interaction-analytics-service/internal/auth"
	"github.com/PratikDhanave/interaction-analytics-service/internal/config"
	"github.com/PratikDhanave/interaction-analytics-service/internal/handlers"
	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
	"github.com/PratikDhanave/interaction-analytics-service/internal/session"
	"github.com/PratikDhanave/interaction-analytics-service/internal/store"
)

//go:embed beacon.js
var beaconJS []byte

// Deps are the collaborators the router wires together.
type Deps struct {
	Config   config.Config
	Store    store.EventStore
	Sessions *session.Registry
	// Stream receives events ingested through POST /events. May be nil.
	Stream   reporter.Sink
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /beacon.js, /prometheus
// Authenticated: /events, /metrics, /signals
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger), cors())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the store dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "sessions": d.Sessions.Len()})
	})

	r.GET("/beacon.js", func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=3600")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", beaconJS)
	})

	if d.Gatherer != nil {
		r.GET("/prometheus", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Auth group enforces tenant context via X-API-Key.
	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(d.Config.APIKeys))

	handlers.RegisterEventRoutes(authGroup, d.Store, d.Stream, d.Logger)
	handlers.RegisterMetricRoutes(authGroup, d.Store, d.Logger)
	handlers.RegisterSignalRoutes(authGroup, d.Sessions, d.Logger)

	return r
}

// cors lets pages on any origin post signals with their site key.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+auth.HeaderAPIKey+", Idempotency-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}
