package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"go.uber.org/zap"
)

// Orchestrator is the research surface the API drives.
type Orchestrator interface {
	StartResearch(ctx context.Context, query string) (string, error)
	GetTask(id string) (*research.ResearchTask, bool)
	ListTasks() []*research.ResearchTask
	Cancel(id string) error
}

// Options configure the API server.
type Options struct {
	Server config.ServerConfig
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
	// KeepAlive is the SSE comment interval; zero means 15s.
	KeepAlive time.Duration
}

// Server is the echo HTTP API.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
}

// New builds the API. hub may be nil when streaming is disabled.
func New(orch Orchestrator, hub *Hub, opts Options, logger *zap.Logger) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: orchestrator required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	if err := opts.Server.Validate(); err != nil {
		return nil, err
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	api := e.Group("/api")
	if opts.Server.AuthEnabled {
		api.Use(runtime.EchoAuthMiddleware([]byte(opts.Server.JWTSecret)))
	}
	rh := &ResearchHandler{
		orch:      orch,
		hub:       hub,
		streaming: opts.Server.StreamEnabled && hub != nil,
		keepAlive: opts.KeepAlive,
		logger:    logger,
	}
	rh.Register(api.Group("/research"))

	return &Server{echo: e, logger: logger}, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Listening.", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// errorHandler renders every error as {"error": "..."} and logs it.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote_ip", c.RealIP()),
			zap.Error(err),
		}
		if code >= http.StatusInternalServerError {
			logger.Error("Request failed.", fields...)
		} else {
			logger.Info("Request rejected.", fields...)
		}
		if !c.Response().Committed {
			if req.Method == http.MethodHead {
				_ = c.NoContent(code)
				return
			}
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
}
