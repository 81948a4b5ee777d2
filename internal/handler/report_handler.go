package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hudoor/internal/middleware"
	"github.com/noah-isme/hudoor/internal/service"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/response"
)

// ReportHandler exposes reporting endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// StudentHistory godoc
// @Summary Violations of a student, newest first
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports/students/{id}/history [get]
func (h *ReportHandler) StudentHistory(c *gin.Context) {
	history, err := h.reports.GetStudentHistory(c.Request.Context(), c.Param("id"), optionalQuery(c, "from"), optionalQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(history))
	response.JSON(c, http.StatusOK, history, nil, middleware.ExtractMeta(c))
}

// ClassPeriod godoc
// @Summary Violation counts per student of a class
// @Tags Reports
// @Produce json
// @Param id path string true "Class ID"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Param onlyViolations query bool false "Hide students without violations"
// @Success 200 {object} response.Envelope
// @Router /reports/classes/{id}/period [get]
func (h *ReportHandler) ClassPeriod(c *gin.Context) {
	var opts service.ClassPeriodOptions
	if raw := c.Query("onlyViolations"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "onlyViolations must be true or false"))
			return
		}
		opts.OnlyViolations = v
	}
	stats, err := h.reports.GetClassPeriodStats(c.Request.Context(), c.Param("id"), optionalQuery(c, "from"), optionalQuery(c, "to"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(stats))
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
