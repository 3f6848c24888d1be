package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Veraticus/spice-intake/internal/ingest"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/pipeline"
	"github.com/Veraticus/spice-intake/internal/service"
	"github.com/Veraticus/spice-intake/internal/storage"
)

// ProcessRequest is the body of POST /process-expense. Data is plain text for
// text input and base64 for everything else.
type ProcessRequest struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Data   string `json:"data"`
}

// ProcessResponse is returned for every completed run.
type ProcessResponse struct {
	ExpenseID *int64  `json:"expense_id,omitempty"`
	Status    string  `json:"status"`
	RunID     string  `json:"run_id"`
	Reason    string  `json:"reason,omitempty"`
	PendingID string  `json:"pending_id,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	Score     float64 `json:"confidence"`
}

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Message: "Expense intake API is running."})
}

func (s *Server) handleProcess(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("Invalid process request", "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}

	in, err := rawInput(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	result, err := s.processor.Process(c.Request().Context(), in)
	if err != nil {
		return s.httpError(err)
	}

	resp := ProcessResponse{
		RunID:  result.RunID,
		Reason: string(result.Reason),
		Score:  result.Confidence,
	}
	switch result.Outcome {
	case pipeline.OutcomeFinalized:
		resp.Status = "success"
		resp.ExpenseID = &result.Expense.ID
		return c.JSON(http.StatusOK, resp)
	case pipeline.OutcomeDeferred:
		resp.Status = "deferred"
		resp.PendingID = result.Pending.ID
		resp.Detail = "expense needs manual review"
	default:
		resp.Status = "aborted"
		resp.Detail = "expense could not be processed"
	}
	return c.JSON(http.StatusBadRequest, resp)
}

func rawInput(req ProcessRequest) (model.RawInput, error) {
	kind := model.ParseInputType(req.Type)
	in := model.RawInput{UserID: req.UserID, Type: kind}
	if kind == model.InputText || !kind.IsValid() {
		in.Payload = []byte(req.Data)
		return in, nil
	}

	payload, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return in, errors.New("data must be base64 for " + string(kind) + " input")
	}
	in.Payload = payload
	return in, nil
}

func (s *Server) handleListPending(c echo.Context) error {
	pending, err := s.processor.Pending(c.Request().Context(), c.Param("user"))
	if err != nil {
		return s.httpError(err)
	}
	if pending == nil {
		pending = []model.PendingExpense{}
	}
	return c.JSON(http.StatusOK, pending)
}

func (s *Server) handleConfirm(c echo.Context) error {
	var overrides pipeline.Overrides
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&overrides); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
		}
	}

	final, err := s.processor.Confirm(c.Request().Context(), c.Param("user"), c.Param("id"), overrides)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, final)
}

func (s *Server) handleReject(c echo.Context) error {
	if err := s.processor.Reject(c.Request().Context(), c.Param("user"), c.Param("id")); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListExpenses(c echo.Context) error {
	filter, err := s.expenseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	expenses, err := s.expenses.ListExpenses(c.Request().Context(), filter)
	if err != nil {
		return s.httpError(err)
	}
	if expenses == nil {
		expenses = []model.FinalExpense{}
	}
	return c.JSON(http.StatusOK, expenses)
}

func (s *Server) expenseFilter(c echo.Context) (service.ExpenseFilter, error) {
	filter := service.ExpenseFilter{
		UserID:   c.Param("user"),
		Category: c.QueryParam("category"),
		Limit:    100,
	}

	for name, dst := range map[string]**time.Time{"from": &filter.StartDate, "to": &filter.EndDate} {
		if v := c.QueryParam(name); v != "" {
			t, err := time.Parse(time.DateOnly, v)
			if err != nil {
				return filter, errors.New(name + " must be YYYY-MM-DD")
			}
			*dst = &t
		}
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := c.QueryParam(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return filter, errors.New(name + " must be a non-negative integer")
			}
			*dst = n
		}
	}
	if filter.Limit == 0 || filter.Limit > s.config.MaxLimit {
		filter.Limit = s.config.MaxLimit
	}
	return filter, nil
}

// httpError maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func (s *Server) httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedInputType),
		errors.Is(err, pipeline.ErrMissingUser),
		errors.Is(err, pipeline.ErrIncompleteExpense):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pipeline.ErrUserNotAllowed):
		return echo.NewHTTPError(http.StatusForbidden, "user is not allowed")
	case errors.Is(err, pipeline.ErrPendingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrPendingClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidDateRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
