package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
	logger      *zap.Logger
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	FullName string `json:"full_name" binding:"max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,max=128"`
	Password string `json:"password" binding:"required,max=128"`
}

func NewAuthHandler(authService *app.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		writeError(c, h.logger, err, "register failed")
		return
	}
	response.Created(c, result)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, h.logger, err, "login failed")
		return
	}
	response.OK(c, result)
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := h.authService.GetActiveUser(userID)
	if err != nil {
		writeError(c, h.logger, err, "fetch current user failed")
		return
	}
	response.OK(c, user)
}
