package handlers

import (
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type DailyLogHandler struct {
	logService *services.DailyLogService
}

func NewDailyLogHandler(logService *services.DailyLogService) *DailyLogHandler {
	return &DailyLogHandler{logService: logService}
}

// List returns the caller's logs for a date (default today)
// GET /api/logs?date=YYYY-MM-DD
func (h *DailyLogHandler) List(c *gin.Context) {
	logs, err := h.logService.ListForUser(c.Request.Context(), actor(c), c.Query("date"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, logs)
}

// Due returns the caller's assignments with what is owed on a date
// GET /api/logs/due?date=YYYY-MM-DD
func (h *DailyLogHandler) Due(c *gin.Context) {
	items, err := h.logService.ListDue(c.Request.Context(), actor(c), c.Query("date"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, items)
}

// Submit creates a log, or updates it when log_id is present
// POST /api/logs
func (h *DailyLogHandler) Submit(c *gin.Context) {
	var req services.LogProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	log, err := h.logService.LogProgress(c.Request.Context(), actor(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	if req.LogID == nil || *req.LogID == 0 {
		response.Created(c, log)
		return
	}
	response.Success(c, log)
}

// Pending lists logs waiting for review
// GET /api/approvals
func (h *DailyLogHandler) Pending(c *gin.Context) {
	var q services.PendingLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	logs, err := h.logService.ListPending(c.Request.Context(), actor(c), &q)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, logs)
}

// POST /api/approvals/:id/approve
func (h *DailyLogHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	result, err := h.logService.Approve(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// POST /api/approvals/:id/reject
func (h *DailyLogHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	result, err := h.logService.Reject(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}
