package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/internal/service"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/response"
)

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students, newest first
// @Tags Students
// @Produce json
// @Param gradeId query string false "Filter by grade"
// @Param classId query string false "Filter by class"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter service.StudentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	filter.Search = strings.TrimSpace(filter.Search)
	students, pagination := h.students.List(filter)
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Create godoc
// @Summary Enrol a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body models.NewStudent true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 507 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req models.NewStudent
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, student, nil)
}

// CreateBulk godoc
// @Summary Enrol several students at once
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.BulkCreateStudentsRequest true "Students payload"
// @Success 201 {object} response.Envelope
// @Router /students/bulk [post]
func (h *StudentHandler) CreateBulk(c *gin.Context) {
	var req service.BulkCreateStudentsRequest
	if !bindJSON(c, &req) {
		return
	}
	students, err := h.students.CreateBulk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, students, nil, map[string]interface{}{"count": len(students)})
}

// Update godoc
// @Summary Update student name and parent phone
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Move godoc
// @Summary Move student to another class
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.MoveStudentRequest true "Target class"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/move [post]
func (h *StudentHandler) Move(c *gin.Context) {
	var req service.MoveStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Move(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
