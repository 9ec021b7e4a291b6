package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/config"
	"github.com/kestrelworks/queryd/internal/logging"
	"github.com/kestrelworks/queryd/internal/pipeline"
	"github.com/kestrelworks/queryd/internal/query"
	"github.com/kestrelworks/queryd/internal/services"
)

// Server provides the HTTP endpoints for queryd.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *logging.Logger
	cfg      config.ServerConfig
}

// NewServer creates the HTTP server over the service registry.
func NewServer(registry services.Registry, cfg config.ServerConfig, logger *logging.Logger) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("service registry is required")
	}
	if registry.Orchestrator() == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(newIPLimiter(cfg.RateLimit, cfg.RateBurst).middleware())
	e.Use(newHTTPMetrics(logger).middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := logging.WithRequestID(c.Request().Context(),
				c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)))
			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger.Named("http"),
		cfg:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/queries", s.handleBasicQuery)
	v1.POST("/queries/comprehensive", s.handleComprehensiveQuery)
	v1.GET("/queries/:id/status", s.handleQueryStatus)
}

// handleHealth reports pool and cache occupancy alongside liveness.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if p := s.registry.Pool(); p != nil {
		resp.Pool = p.Stats()
	}
	if cch := s.registry.Cache(); cch != nil {
		resp.Cache = cch.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBasicQuery(c echo.Context) error {
	return s.handleQuery(c, s.registry.Orchestrator().Process)
}

func (s *Server) handleComprehensiveQuery(c echo.Context) error {
	return s.handleQuery(c, s.registry.Orchestrator().ProcessComprehensive)
}

func (s *Server) handleQuery(c echo.Context, run func(context.Context, string, query.Context) (*query.Result, error)) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid query request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	if req.SessionID != "" {
		ctx = logging.WithSessionID(ctx, req.SessionID)
	}

	result, err := run(ctx, req.Query, query.Context{
		UserID:              req.UserID,
		SessionID:           req.SessionID,
		MaxTokens:           req.MaxTokens,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleQueryStatus(c echo.Context) error {
	info, err := s.registry.Orchestrator().GetStatus(c.Param("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// errorResponse maps orchestrator errors to HTTP statuses.
func (s *Server) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, query.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, pipeline.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
