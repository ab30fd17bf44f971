package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"dca-console/internal/dashboard"
	"dca-console/internal/network"
	"dca-console/internal/strategy"
)

func statusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, dashboard.ErrDraftNotFound),
		errors.Is(err, dashboard.ErrOrderNotFound),
		errors.Is(err, strategy.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrNoAccount),
		errors.Is(err, dashboard.ErrUnsupportedNetwork),
		errors.Is(err, dashboard.ErrNoBackend):
		return http.StatusConflict
	case errors.Is(err, strategy.ErrNotSubmittable),
		errors.Is(err, strategy.ErrInvalidField),
		errors.Is(err, network.ErrInvalidAddress),
		errors.Is(err, dashboard.ErrChartTooLarge):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return dashboard.FormatError(httpErr.Message)
	}
	return dashboard.FormatError(err)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, NewErrorResponse(errorMessage(err)))
	}
	if err != nil {
		s.log.Warn("write error response failed", zap.Error(err))
	}
}
