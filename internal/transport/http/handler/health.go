package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"phyrisk/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Message  string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Check reports 503 only when a configured dependency is down. Redis and
// RabbitMQ are optional and show as disabled when not configured.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := h.checkDatabase(ctx)
	redisStatus := h.checkRedis(ctx)
	rmqStatus := h.checkRabbitMQ()
	modelStatus := h.checkModel()

	statusCode := http.StatusOK
	for _, s := range []dependencyStatus{dbStatus, redisStatus, rmqStatus, modelStatus} {
		if !s.OK && !s.Disabled {
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, gin.H{
		"app":        h.app.Config.App.Name,
		"env":        h.app.Config.App.Env,
		"uptime_sec": int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
			"rabbitmq": rmqStatus,
			"model":    modelStatus,
		},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dependencyStatus {
	sqlDB, err := h.app.DB.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if h.app.Redis == nil {
		return dependencyStatus{Disabled: true}
	}
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil {
		return dependencyStatus{Disabled: true}
	}
	if h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkModel() dependencyStatus {
	if h.app.Predictor == nil {
		return dependencyStatus{OK: false, Message: "model not loaded"}
	}
	return dependencyStatus{OK: true, Message: h.app.Predictor.Name()}
}
