package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calloway-health/consultline/internal/services"
)

type ReminderHandler struct {
	service services.ReminderService
}

func NewReminderHandler(service services.ReminderService) *ReminderHandler {
	return &ReminderHandler{service: service}
}

// SendReminders sweeps upcoming appointments and texts each patient once.
// GET /reminders/send_reminders
func (h *ReminderHandler) SendReminders(c *gin.Context) {
	sent, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminders sent", "sent": sent})
}
