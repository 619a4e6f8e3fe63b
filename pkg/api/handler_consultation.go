package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/services"
)

// submitConsultationHandler handles POST /api/v1/consultations.
// Starts the deliberation in the background and returns immediately with
// the consultation id; progress streams over /ws and the final result is
// available from GET /api/v1/consultations/:id.
func (s *Server) submitConsultationHandler(c *echo.Context) error {
	var req SubmitConsultationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}
	if len(req.Question) > maxQuestionBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("question exceeds maximum size of %d bytes", maxQuestionBytes))
	}

	opts, err := engine.OptionsFromMap(req.Options)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProjectPath != "" {
		opts.ProjectPath = req.ProjectPath
	}
	// HTTP clients have no terminal; prompts always answer from policy.
	opts.Interactive = false

	consultationID, err := s.engine.Submit(req.Question, "", opts)
	if err != nil {
		return mapEngineError(err)
	}

	return c.JSON(http.StatusAccepted, &ConsultationAccepted{
		ConsultationID: consultationID,
		Status:         string(models.StatePending),
		Message:        "Consultation accepted for deliberation",
	})
}

// listConsultationsHandler handles GET /api/v1/consultations.
func (s *Server) listConsultationsHandler(c *echo.Context) error {
	filters := services.ConsultationFilters{Limit: 25}

	// Parse pagination.
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filters.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	// Parse filters.
	if v := c.QueryParam("state"); v != "" {
		if !models.ConsultationState(v).IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid state: "+v)
		}
		filters.State = v
	}
	if v := c.QueryParam("mode"); v != "" {
		if !models.Mode(v).IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid mode: "+v)
		}
		filters.Mode = v
	}
	if v := c.QueryParam("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid created_after: must be RFC3339")
		}
		filters.CreatedAfter = &t
	}
	if v := c.QueryParam("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid created_before: must be RFC3339")
		}
		filters.CreatedBefore = &t
	}
	filters.IncludeDeleted = c.QueryParam("include_deleted") == "true"

	list, err := s.consultationService.ListConsultations(c.Request().Context(), filters)
	if err != nil {
		return mapServiceError(err)
	}

	resp := &ConsultationListResponse{
		Consultations: make([]ConsultationSummary, 0, len(list.Consultations)),
		TotalCount:    list.TotalCount,
		Limit:         list.Limit,
		Offset:        list.Offset,
	}
	for _, cons := range list.Consultations {
		resp.Consultations = append(resp.Consultations, summarize(cons))
	}

	return c.JSON(http.StatusOK, resp)
}

// activeConsultationsHandler handles GET /api/v1/consultations/active.
func (s *Server) activeConsultationsHandler(c *echo.Context) error {
	ids := s.engine.Pool().ActiveIDs()
	return c.JSON(http.StatusOK, &ActiveConsultationsResponse{
		ConsultationIDs: ids,
		Count:           len(ids),
	})
}

// getConsultationHandler handles GET /api/v1/consultations/:id.
func (s *Server) getConsultationHandler(c *echo.Context) error {
	consultationID := c.Param("id")
	if consultationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "consultation id is required")
	}

	cons, err := s.consultationService.GetConsultation(c.Request().Context(), consultationID, true)
	if err != nil {
		return mapServiceError(err)
	}

	result, err := services.BuildConsultationResult(cons)
	if err != nil {
		return mapServiceError(err)
	}

	detail := &ConsultationDetail{
		ConsultationResult: *result,
		Running:            s.engine.Pool().Running(consultationID),
	}
	if cons.ErrorMessage != nil {
		detail.ErrorMessage = *cons.ErrorMessage
	}

	return c.JSON(http.StatusOK, detail)
}

// cancelConsultationHandler handles POST /api/v1/consultations/:id/cancel.
func (s *Server) cancelConsultationHandler(c *echo.Context) error {
	consultationID := c.Param("id")
	if consultationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "consultation id is required")
	}

	if err := s.engine.Cancel(consultationID); err != nil {
		return mapEngineError(err)
	}

	return c.JSON(http.StatusOK, &CancelResponse{
		ConsultationID: consultationID,
		Message:        "Consultation cancellation requested",
	})
}

func summarize(cons *ent.Consultation) ConsultationSummary {
	summary := ConsultationSummary{
		ConsultationID: cons.ID,
		Question:       cons.Question,
		Mode:           string(cons.Mode),
		State:          string(cons.State),
		CreatedAt:      cons.CreatedAt,
		CompletedAt:    cons.CompletedAt,
		DurationMs:     cons.DurationMs,
		ActualCostUSD:  cons.ActualCostUsd,
	}
	if cons.Recommendation != nil {
		summary.Recommendation = *cons.Recommendation
	}
	return summary
}
