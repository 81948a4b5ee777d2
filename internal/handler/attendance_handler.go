package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hudoor/internal/service"
	"github.com/noah-isme/hudoor/pkg/response"
)

// AttendanceHandler exposes the daily attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Get godoc
// @Summary Attendance of a student on a day
// @Description A day without a record is reported as present.
// @Tags Attendance
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{date}/{studentId} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	rec, err := h.attendance.Lookup(c.Param("date"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// Save godoc
// @Summary Save attendance of one student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.SaveAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 507 {object} response.Envelope
// @Router /attendance [put]
func (h *AttendanceHandler) Save(c *gin.Context) {
	var req service.SaveAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.attendance.SaveAttendance(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// MarkClass godoc
// @Summary Save attendance of several students of a class
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkMarkRequest true "Class attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/class [post]
func (h *AttendanceHandler) MarkClass(c *gin.Context) {
	var req service.BulkMarkRequest
	if !bindJSON(c, &req) {
		return
	}
	records, err := h.attendance.MarkClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}

// Stats godoc
// @Summary School wide counts for a day
// @Tags Attendance
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/stats [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.attendance.GetDailyStats(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Sheet godoc
// @Summary Daily sheet of a class
// @Tags Attendance
// @Produce json
// @Param classId query string true "Class ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/sheet [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	sheet, err := h.attendance.ClassDailySheet(c.Query("classId"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sheet)
}

// PurgeOrphans godoc
// @Summary Delete attendance of removed students
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/purge-orphans [post]
func (h *AttendanceHandler) PurgeOrphans(c *gin.Context) {
	n, err := h.attendance.PurgeOrphans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": n})
}
