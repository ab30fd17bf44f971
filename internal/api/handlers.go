package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"dca-console/internal/dashboard"
	"dca-console/internal/network"
	"dca-console/internal/strategy"
)

type sessionRequest struct {
	Account string       `json:"account"`
	Network network.Type `json:"network" validate:"required"`
}

// estimateQuery overrides the live form for a single estimate. Empty values
// keep the form's.
type estimateQuery struct {
	TotalInAmount        string `query:"total_in_amount" validate:"omitempty,numeric"`
	CycleCount           string `query:"cycle_count" validate:"omitempty,numeric"`
	PerCycleMinOutAmount string `query:"per_cycle_min_out_amount" validate:"omitempty,numeric"`
	PerCycleMaxOutAmount string `query:"per_cycle_max_out_amount" validate:"omitempty,numeric"`
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "dca-console is running")
}

func (s *Server) GetView(c echo.Context) error {
	return c.JSON(http.StatusOK, s.dash.View())
}

func (s *Server) PutSession(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := s.dash.SetSession(c.Request().Context(), dashboard.Session{Account: req.Account, Network: req.Network}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.dash.View())
}

func (s *Server) PostRefresh(c echo.Context) error {
	if err := s.dash.Refresh(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.dash.View())
}

func (s *Server) PostRefreshOrders(c echo.Context) error {
	if err := s.dash.RefreshOrders(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.dash.View())
}

func (s *Server) GetForm(c echo.Context) error {
	return c.JSON(http.StatusOK, s.dash.Form())
}

// PutForm merges the body over the live fields; omitted keys keep their
// current value.
func (s *Server) PutForm(c echo.Context) error {
	f := s.dash.Form()
	if err := c.Bind(&f); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.dash.UpdateForm(f))
}

func (s *Server) GetDrafts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.dash.Drafts())
}

func (s *Server) PostDraft(c echo.Context) error {
	return c.JSON(http.StatusCreated, s.dash.SaveDraft(c.Request().Context()))
}

func (s *Server) LoadDraft(c echo.Context) error {
	f, err := s.dash.LoadDraft(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) DeleteDraft(c echo.Context) error {
	id := c.Param("id")
	if !s.dash.DeleteDraft(c.Request().Context(), id) {
		return c.JSON(http.StatusNotFound, NewErrorResponse(dashboard.ErrDraftNotFound.Error()+": "+id))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) GetTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, strategy.Templates())
}

func (s *Server) ApplyTemplate(c echo.Context) error {
	f, err := s.dash.ApplyTemplate(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) GetEstimate(c echo.Context) error {
	var q estimateQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return err
	}
	if err := c.Validate(&q); err != nil {
		return err
	}
	f := s.dash.Form()
	override(&f.TotalInAmount, q.TotalInAmount)
	override(&f.CycleCount, q.CycleCount)
	override(&f.PerCycleMinOutAmount, q.PerCycleMinOutAmount)
	override(&f.PerCycleMaxOutAmount, q.PerCycleMaxOutAmount)
	chart, err := dashboard.Chart(f.TotalInAmount, f.CycleCount, f.PerCycleMinOutAmount, f.PerCycleMaxOutAmount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chart)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (s *Server) CreateOrder(c echo.Context) error {
	sub, err := s.dash.CreateOrder(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, sub.Outcome())
}

func (s *Server) Withdraw(c echo.Context) error {
	sub, err := s.dash.Withdraw(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, sub.Outcome())
}

func (s *Server) CloseOrder(c echo.Context) error {
	sub, err := s.dash.CloseOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, sub.Outcome())
}

func (s *Server) GetSubmission(c echo.Context) error {
	id := c.Param("id")
	sub, ok := s.dash.Submission(id)
	if !ok {
		return c.JSON(http.StatusNotFound, NewErrorResponse("submission not found: "+id))
	}
	return c.JSON(http.StatusOK, sub.Outcome())
}
