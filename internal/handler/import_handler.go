package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hudoor/internal/service"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/response"
)

// ImportHandler exposes spreadsheet import of students.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler constructs handler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Preview godoc
// @Summary Parse a student list without saving it
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx or csv file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports/preview [post]
func (h *ImportHandler) Preview(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, http.StatusBadRequest, "file is required"))
		return
	}
	if header.Size > h.imports.MaxBytes() {
		response.Error(c, appErrors.Clone(appErrors.ErrImportFailed, "file is too large"))
		return
	}
	f, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, appErrors.ErrImportFailed.Message))
		return
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(f, h.imports.MaxBytes()+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, appErrors.ErrImportFailed.Message))
		return
	}
	preview, err := h.imports.Preview(header.Filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, preview)
}

// Commit godoc
// @Summary Enrol previewed rows into a class
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body service.CommitImportRequest true "Rows to import"
// @Success 201 {object} response.Envelope
// @Router /imports/commit [post]
func (h *ImportHandler) Commit(c *gin.Context) {
	var req service.CommitImportRequest
	if !bindJSON(c, &req) {
		return
	}
	students, err := h.imports.Commit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, students, nil, map[string]interface{}{"count": len(students)})
}
