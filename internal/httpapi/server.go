// Package httpapi is the optional HTTP admin surface: health, stats, and
// prometheus metrics. It never touches the chat wire protocol.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parley/server/internal/store"
)

// Engine is the subset of the chat server the admin API reports on.
type Engine interface {
	Connections() int
	Sessions() int
}

// Server is the Echo application.
type Server struct {
	echo   *echo.Echo
	engine Engine
	st     *store.Store
}

// New constructs an Echo app with the admin routes.
func New(engine Engine, st *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, engine: engine, st: st}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: s.engine.Connections(),
	})
}

type statsResponse struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
	Users       int `json:"users"`
	Groups      int `json:"groups"`
	Messages    int `json:"messages"`
}

func (s *Server) handleStats(c echo.Context) error {
	users, err := s.st.UserCount()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	groups, err := s.st.GroupCount()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pm, gm, err := s.st.MessageCounts()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statsResponse{
		Connections: s.engine.Connections(),
		Sessions:    s.engine.Sessions(),
		Users:       users,
		Groups:      groups,
		Messages:    pm + gm,
	})
}
