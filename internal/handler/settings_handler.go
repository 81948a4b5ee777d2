package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/internal/service"
	"github.com/noah-isme/hudoor/pkg/response"
)

// SettingsHandler exposes school settings, printed assets and activation.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get godoc
// @Summary School settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.GetSettings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}

// Save godoc
// @Summary Complete the school setup
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body service.SaveSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /settings [put]
func (h *SettingsHandler) Save(c *gin.Context) {
	var req service.SaveSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	settings, err := h.settings.SaveSettings(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}

// GetAssets godoc
// @Summary Logo, stamp and signatures
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/assets [get]
func (h *SettingsHandler) GetAssets(c *gin.Context) {
	assets, err := h.settings.GetAssets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, assets)
}

// SaveAssets godoc
// @Summary Replace logo, stamp and signatures
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body models.SchoolAssets true "Data URLs"
// @Success 200 {object} response.Envelope
// @Router /settings/assets [put]
func (h *SettingsHandler) SaveAssets(c *gin.Context) {
	var req models.SchoolAssets
	if !bindJSON(c, &req) {
		return
	}
	assets, err := h.settings.SaveAssets(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, assets)
}

// ClearAssets godoc
// @Summary Remove every stored image
// @Tags Settings
// @Success 204
// @Router /settings/assets [delete]
func (h *SettingsHandler) ClearAssets(c *gin.Context) {
	if err := h.settings.ClearAssets(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Activation godoc
// @Summary Device fingerprint and activation state
// @Tags Activation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /activation [get]
func (h *SettingsHandler) Activation(c *gin.Context) {
	status, err := h.settings.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}

// Activate godoc
// @Summary Activate this device
// @Tags Activation
// @Accept json
// @Produce json
// @Param payload body service.ActivateRequest true "Activation key"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /activation [post]
func (h *SettingsHandler) Activate(c *gin.Context) {
	var req service.ActivateRequest
	if !bindJSON(c, &req) {
		return
	}
	status, err := h.settings.Activate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}
