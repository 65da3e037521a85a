package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/calloway-health/consultline/internal/services"
	"github.com/calloway-health/consultline/internal/utils"
)

type CallHandler struct {
	svc services.CallService
}

func NewCallHandler(svc services.CallService) *CallHandler {
	return &CallHandler{svc: svc}
}

// StartCall opens a call session for a registered patient.
// POST /calls/start_call?phone_number=...
func (h *CallHandler) StartCall(c *gin.Context) {
	phone := c.Query("phone_number")
	if phone == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallHandler.StartCall", "phone_number is required", nil))
		return
	}

	call, err := h.svc.Start(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Call started",
		"call_id": call.ID,
	})
}

// RecentCall reports whether the patient has a call within the last five
// minutes.
// GET /calls/recent_call?phone_number=...
func (h *CallHandler) RecentCall(c *gin.Context) {
	phone := c.Query("phone_number")
	if phone == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallHandler.RecentCall", "phone_number is required", nil))
		return
	}

	recent, err := h.svc.Recent(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}

	if !recent.Found {
		c.JSON(http.StatusOK, gin.H{"message": "No recent calls within 5 minutes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Recent call found",
		"call_id": recent.CallID,
	})
}

// CallResponses lists the question/answer rows recorded for a call.
// GET /calls/call_responses?call_id=...
func (h *CallHandler) CallResponses(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("call_id"), 10, 32)
	if err != nil || id == 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallHandler.CallResponses", "call_id must be a positive integer", nil))
		return
	}

	rows, err := h.svc.Responses(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":   id,
		"responses": rows,
	})
}
