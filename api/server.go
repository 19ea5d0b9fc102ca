package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heibot/modguard/client"
)

var timeNow = time.Now

// Options configures the HTTP router.
type Options struct {
	Logger      *zap.Logger
	CORSOrigins []string
	// RPS and Burst bound requests per client IP. Zero RPS disables the limit.
	RPS   int
	Burst int
	// Limiter overrides the limiter built from RPS and Burst.
	Limiter *ClientLimiter
}

// NewRouter builds the gin engine serving the moderation API under /v1.
func NewRouter(c *client.Client, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(opts.Logger))
	r.Use(PrometheusMiddleware())

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(ctx *gin.Context) {
		if err := c.Ping(ctx.Request.Context()); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", MetricsHandler())

	v1 := r.Group("/v1")
	limiter := opts.Limiter
	if limiter == nil && opts.RPS > 0 {
		limiter = NewClientLimiter(opts.RPS, opts.Burst)
	}
	if limiter != nil {
		v1.Use(limiter.Middleware())
	}
	NewHandler(c, opts.Logger).Register(v1)

	return r
}
