// Package httptransport is the local bridge a UI shell talks to: profile reads and
// triggers over HTTP, snapshot changes over a websocket and prometheus metrics.
package httptransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mindtracking-client/internal/platform/logging"
	"mindtracking-client/internal/platform/observability"
)

// Options configures the router builder.
type Options struct {
	Logger       *slog.Logger
	Debug        bool
	AllowOrigins []string
	Metrics      *observability.Metrics
	// Gatherer backs GET /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	// Health reports store statistics on GET /healthz. An error answers 503.
	Health func(ctx context.Context) (map[string]any, error)
}

// Router bundles the gin engine and the /api group.
type Router struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
}

// Build constructs a gin engine with recovery, logging, CORS and observability middlewares.
func Build(opts Options) (*Router, error) {
	logger := logging.OrDefault(opts.Logger).With(slog.String("component", "http"))

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(logger))
	engine.Use(observabilityMiddleware(opts.Metrics))

	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	engine.GET("/healthz", healthHandler(opts.Health))

	return &Router{
		Engine: engine,
		API:    engine.Group("/api"),
	}, nil
}

func healthHandler(health func(ctx context.Context) (map[string]any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			RespondSuccess(c, http.StatusOK, gin.H{"status": "ok"}, "")
			return
		}
		stats, err := health(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			RespondError(c, http.StatusServiceUnavailable, err.Error(), gin.H{"status": "degraded"})
			return
		}
		RespondSuccess(c, http.StatusOK, gin.H{"status": "ok", "store": stats}, "")
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.LogAttrs(c.Request.Context(), slog.LevelInfo, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func observabilityMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", path)
		c.Request = c.Request.WithContext(reqCtx)

		start := time.Now()
		c.Next()

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)
		metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
