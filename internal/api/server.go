package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"dca-console/internal/dashboard"
	"dca-console/internal/strategy"
)

const shutdownTimeout = 5 * time.Second

// Dashboard is the controller the API serves.
type Dashboard interface {
	View() dashboard.View
	SetSession(ctx context.Context, s dashboard.Session) error
	Refresh(ctx context.Context) error
	RefreshOrders(ctx context.Context) error
	Form() strategy.Fields
	UpdateForm(f strategy.Fields) strategy.Fields
	Drafts() []strategy.Draft
	SaveDraft(ctx context.Context) strategy.Draft
	LoadDraft(id string) (strategy.Fields, error)
	DeleteDraft(ctx context.Context, id string) bool
	ApplyTemplate(id string) (strategy.Fields, error)
	CreateOrder(ctx context.Context) (*dashboard.Submission, error)
	Withdraw(ctx context.Context, orderID string) (*dashboard.Submission, error)
	CloseOrder(ctx context.Context, orderID string) (*dashboard.Submission, error)
	Submission(id string) (*dashboard.Submission, bool)
}

type Options struct {
	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
	BodyLimit      string
	Log            *zap.Logger
}

type Server struct {
	dash Dashboard
	log  *zap.Logger
	echo *echo.Echo
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Message: message}
}

func New(dash Dashboard, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = "1M"
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}

	s := &Server{dash: dash, log: log, echo: e}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(opts.BodyLimit))
	e.Use(s.logRequests)

	e.GET("/ping", s.Ping)

	v1 := e.Group("/v1")
	v1.GET("/view", s.GetView)
	v1.PUT("/session", s.PutSession)
	v1.POST("/refresh", s.PostRefresh)
	v1.POST("/orders/refresh", s.PostRefreshOrders)

	v1.GET("/form", s.GetForm)
	v1.PUT("/form", s.PutForm)

	v1.GET("/drafts", s.GetDrafts)
	v1.POST("/drafts", s.PostDraft)
	v1.POST("/drafts/:id/load", s.LoadDraft)
	v1.DELETE("/drafts/:id", s.DeleteDraft)

	v1.GET("/templates", s.GetTemplates)
	v1.POST("/templates/:id/apply", s.ApplyTemplate)

	v1.GET("/estimate", s.GetEstimate)

	v1.POST("/orders", s.CreateOrder)
	v1.POST("/orders/:id/withdraw", s.Withdraw)
	v1.POST("/orders/:id/close", s.CloseOrder)
	v1.GET("/submissions/:id", s.GetSubmission)

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(opts.MetricsHandler))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.log.Info("http server listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Debug("http request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
