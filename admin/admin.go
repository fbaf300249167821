// Package admin serves the HTTP side channel of the order server: liveness,
// readiness and Prometheus metrics. It carries no order data.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"order-shop/metrics"
)

// Version is reported by /health and /ready.
var Version = "dev"

type Admin struct {
	router  *gin.Engine
	srv     *http.Server
	logger  *zap.Logger
	ready   func() bool
	started time.Time
}

// New builds the admin router. ready backs /ready; nil means always ready.
func New(addr string, ready func() bool, logger *zap.Logger) *Admin {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	metrics.Register()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	a := &Admin{
		router:  r,
		logger:  logger,
		ready:   ready,
		started: time.Now(),
	}
	a.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.started).String(),
			"version": Version,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		ready := a.ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(a.started).String(),
			"version": Version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

// Serve blocks serving on ln until Shutdown.
func (a *Admin) Serve(ln net.Listener) error {
	a.logger.Info("admin listening", zap.Stringer("addr", ln.Addr()))
	if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe blocks serving on the configured address until Shutdown.
func (a *Admin) ListenAndServe() error {
	ln, err := net.Listen("tcp", a.srv.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ln)
}

func (a *Admin) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		level := zap.DebugLevel
		if status >= 500 {
			level = zap.ErrorLevel
		} else if status >= 400 {
			level = zap.WarnLevel
		}
		logger.Check(level, "http_request").Write(
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
