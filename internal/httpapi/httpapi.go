// Package httpapi exposes the external trigger and observability
// endpoints: a secret-gated cron hook, a health probe, and Prometheus
// metrics.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relaybot/internal/engine"
	"relaybot/internal/flow"
	logx "relaybot/pkg/logx"
)

type Config struct {
	Addr string
	// CronSecret guards /api/cron. Empty means the endpoint is open,
	// which is only sane behind a private network.
	CronSecret string
}

type Server struct {
	cfg Config
	eng *engine.Engine
	log logx.Logger
	srv *http.Server
}

func New(cfg Config, eng *engine.Engine, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{cfg: cfg, eng: eng, log: log}
}

// Start binds and serves in a background goroutine. A listen failure
// after startup is logged, not fatal; the bot keeps running without the
// HTTP surface.
func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/cron", s.handleCron)
	r.POST("/api/cron", s.handleCron)

	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("http: listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http: server stopped", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCron is the external minute trigger. Hosting-level schedulers
// (or curl) hit it once per minute; duplicate hits within a minute are
// collapsed by the engine's watermark. An explicit ?time=HH:MM bypasses
// the watermark for manual testing.
func (s *Server) handleCron(c *gin.Context) {
	if s.cfg.CronSecret != "" {
		got := c.Query("secret")
		if got == "" {
			got = c.GetHeader("X-Cron-Secret")
		}
		if got != s.cfg.CronSecret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad secret"})
			return
		}
	}

	ctx := c.Request.Context()
	if at := c.Query("time"); at != "" {
		hhmm, ok := flow.ParseHHMM(at)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "time must be HH:MM"})
			return
		}
		if err := s.eng.ForceAt(ctx, hhmm, "http"); err != nil {
			s.log.Error("http: forced tick failed", logx.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tick failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": hhmm})
		return
	}

	if err := s.eng.Tick(ctx, "http"); err != nil {
		s.log.Error("http: tick failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tick failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
