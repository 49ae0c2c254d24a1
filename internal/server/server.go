// Package server exposes the camera preview over HTTP: health and status
// endpoints and the websocket bridge.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"

	"github.com/acentior/camera-preview/internal/logs"
)

const shutdownTimeout = 5 * time.Second

// Preview reports whether a preview is running.
type Preview interface {
	Active() bool
}

// Document lists the containers a preview can be started in.
type Document interface {
	Containers() []string
}

// Viewers counts live stream viewers.
type Viewers interface {
	Sessions() int
}

type Deps struct {
	Preview  Preview
	Document Document
	// Viewers may be nil when the live view is disabled.
	Viewers Viewers
	Bridge  http.Handler

	LoggerFactory logging.LoggerFactory
}

type Server struct {
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	log        logging.LeveledLogger
}

func New(addr string, deps Deps) *Server {
	s := &Server{
		deps: deps,
		log:  logs.New(deps.LoggerFactory, "server"),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)
	if s.deps.Bridge != nil {
		s.engine.GET("/bridge", gin.WrapH(s.deps.Bridge))
	}
}

// Handler returns the routes, for serving elsewhere.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

type statusResponse struct {
	Active     bool     `json:"active"`
	Containers []string `json:"containers"`
	Viewers    int      `json:"viewers"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Active:     s.deps.Preview.Active(),
		Containers: s.deps.Document.Containers(),
	}
	if s.deps.Viewers != nil {
		resp.Viewers = s.deps.Viewers.Sessions()
	}
	c.JSON(http.StatusOK, resp)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
