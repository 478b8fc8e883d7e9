// Package api serves the read-only controller status surface over HTTP.
// Everything except the health probe sits behind JWT auth.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"growth-core/internal/orchestrator"
)

// Server wraps the HTTP surface around a running controller.
type Server struct {
	ctrl *orchestrator.Orchestrator
	log  *zap.Logger
	http *http.Server
}

// NewServer builds the router. secret signs the JWT bearer tokens.
func NewServer(ctrl *orchestrator.Orchestrator, secret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{ctrl: ctrl, log: log.Named("api")}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	auth := r.Group("/api", jwtAuth(secret))
	auth.GET("/status", s.status)
	auth.GET("/report/research", s.research)
	auth.GET("/report/backtest/:strategy", s.backtest)

	s.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run(addr string) error {
	s.http.Addr = addr
	s.log.Info("api listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.GetStatus())
}

func (s *Server) research(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.GetResearchReport())
}

func (s *Server) backtest(c *gin.Context) {
	name := c.Param("strategy")
	result, err := s.ctrl.GetBacktestReport(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
