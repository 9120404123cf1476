package handlers

import (
	"net/http"

	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, queue and event stream.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.SSEHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.SSEHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var pending int64
	if dbStatus == "ok" {
		h.db.WithContext(c.Request.Context()).Model(&models.DailyLog{}).
			Where("status = ?", models.LogStatusPending).
			Count(&pending)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "dailydues",
		"components": gin.H{
			"database":     dbStatus,
			"queue_mode":   queueMode,
			"sse_clients":  h.hub.ClientCount(),
			"pending_logs": pending,
		},
	})
}
