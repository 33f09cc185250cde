package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"asistencia/internal/auth"
	"asistencia/internal/httpmiddleware"
)

// RouterOptions carries the transport-level wiring around the handlers.
type RouterOptions struct {
	Server        *Server
	Logger        *zap.Logger
	JWTIssuer     string
	JWTSigningKey string
	RateLimit     *httpmiddleware.TokenBucket
	Healthy       func() bool
}

// NewRouter wires gin routes and middleware.
func NewRouter(opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	if opts.RateLimit != nil {
		r.Use(opts.RateLimit.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		healthy := opts.Healthy == nil || opts.Healthy()
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "sessions": healthy})
	})

	r.POST("/v1/login", opts.Server.Login)

	authed := r.Group("/v1", auth.SessionAuth(opts.JWTSigningKey, opts.JWTIssuer))
	authed.POST("/logout", opts.Server.Logout)
	authed.GET("/me", opts.Server.Me)
	authed.GET("/challenge", opts.Server.Challenge)
	authed.POST("/attendance", opts.Server.Attend)
	authed.GET("/history", opts.Server.History)

	return r
}

// requestLogger logs one structured line per request, skipping probes.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
