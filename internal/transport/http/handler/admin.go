package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/response"
)

type AdminHandler struct {
	adminService *app.AdminService
	logger       *zap.Logger
}

type UpdateUserRequest struct {
	IsActive *bool   `json:"is_active"`
	Role     *string `json:"role"`
}

func NewAdminHandler(adminService *app.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{adminService: adminService, logger: logger}
}

func (h *AdminHandler) Metrics(c *gin.Context) {
	m, err := h.adminService.Metrics()
	if err != nil {
		writeError(c, h.logger, err, "load metrics failed")
		return
	}
	response.OK(c, m)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.adminService.ListUsers(queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, h.logger, err, "list users failed")
		return
	}
	response.OK(c, users)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	user, err := h.adminService.UpdateUser(actorID, userID, app.UpdateUserInput{IsActive: req.IsActive, Role: req.Role})
	if err != nil {
		writeError(c, h.logger, err, "update user failed")
		return
	}
	response.OK(c, user)
}
