// Package api serves the looper state over HTTP as read-only JSON
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ghost-looper/debug"
	"ghost-looper/display"
	"ghost-looper/sequencer"
)

const service = "ghost-looper"

// Server is a sequencer.Renderer that keeps the latest frame for HTTP
// clients
type Server struct {
	mu     sync.RWMutex
	ready  bool
	status sequencer.Status
	tracks []sequencer.Track
	frames uint64

	router *gin.Engine
}

// NewServer builds the router. Call gin.SetMode before this to silence the
// default logger.
func NewServer() *Server {
	s := &Server{}

	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/status", s.handleStatus)
		v1.GET("/tracks", s.handleTracks)
	}

	s.router = r
	return s
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Render stores a frame. It never blocks on clients.
func (s *Server) Render(ready bool, st sequencer.Status, tracks []sequencer.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
	s.status = st
	s.tracks = tracks
	s.frames++
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errc := make(chan error, 1)
	go func() {
		debug.Log("api", "listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": service,
	})
}

// handleStatus returns the latest status with its display label
func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frames == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame rendered yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":       s.ready,
		"label":       display.Label(s.ready, s.status.State),
		"state":       s.status.State.String(),
		"clockSource": s.status.ClockSource.String(),
		"status":      s.status,
	})
}

// handleTracks returns one row per track, drawn with the grid symbols
func (s *Server) handleTracks(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := display.Plain(s.status, s.tracks)
	out := make([]gin.H, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = gin.H{
			"name":     t.Name,
			"note":     t.Note,
			"channel":  t.Channel,
			"selected": i == s.status.CurrentTrack,
			"steps":    rows[i],
		}
	}
	c.JSON(http.StatusOK, gin.H{"tracks": out})
}
