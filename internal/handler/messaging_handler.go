package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hudoor/internal/service"
	"github.com/noah-isme/hudoor/pkg/response"
)

// MessagingHandler exposes parent notices.
type MessagingHandler struct {
	messaging *service.MessagingService
}

// NewMessagingHandler constructs handler.
func NewMessagingHandler(messaging *service.MessagingService) *MessagingHandler {
	return &MessagingHandler{messaging: messaging}
}

// Notice godoc
// @Summary Parent notice with WhatsApp and SMS links
// @Tags Messaging
// @Produce json
// @Param studentId query string true "Student ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /messaging/notice [get]
func (h *MessagingHandler) Notice(c *gin.Context) {
	notice, err := h.messaging.ComposeNotice(c.Request.Context(), c.Query("studentId"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, notice)
}
