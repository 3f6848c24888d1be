// Package httpapi exposes the intake pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/pipeline"
	"github.com/Veraticus/spice-intake/internal/service"
)

// Processor is the pipeline surface the server drives.
type Processor interface {
	Process(ctx context.Context, in model.RawInput) (*pipeline.Result, error)
	Pending(ctx context.Context, userID string) ([]model.PendingExpense, error)
	Confirm(ctx context.Context, userID, pendingID string, overrides pipeline.Overrides) (*model.FinalExpense, error)
	Reject(ctx context.Context, userID, pendingID string) error
}

// ExpenseLister reads confirmed expenses.
type ExpenseLister interface {
	ListExpenses(ctx context.Context, filter service.ExpenseFilter) ([]model.FinalExpense, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Metrics  http.Handler
	Addr     string
	MaxLimit int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	processor Processor
	expenses  ExpenseLister
	logger    *slog.Logger
	config    Config
}

// NewServer creates a server. A nil Metrics handler disables /metrics.
func NewServer(processor Processor, expenses ExpenseLister, cfg Config, logger *slog.Logger) (*Server, error) {
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	if expenses == nil {
		return nil, errors.New("expense lister cannot be nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 500
	}
	logger = common.OrDefault(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("HTTP request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"duration", time.Since(start),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			return nil
		}
	})

	s := &Server{
		echo:      e,
		processor: processor,
		expenses:  expenses,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleHealth)
	s.echo.POST("/process-expense", s.handleProcess)

	users := s.echo.Group("/users/:user")
	users.GET("/pending", s.handleListPending)
	users.POST("/pending/:id/confirm", s.handleConfirm)
	users.POST("/pending/:id/reject", s.handleReject)
	users.GET("/expenses", s.handleListExpenses)

	if s.config.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.config.Metrics))
	}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.config.Addr)
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}
