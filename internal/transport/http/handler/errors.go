package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/ai"
	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/middleware"
	"phyrisk/internal/transport/http/response"
)

type errorMapping struct {
	err    error
	status int
	code   int
}

// First match wins; anything unmatched is a 500 with a generic message.
var errorMappings = []errorMapping{
	{app.ErrInvalidInput, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrEmailExists, http.StatusBadRequest, response.CodeEmailExists},
	{app.ErrUnsupportedFormat, http.StatusBadRequest, response.CodeUnsupportedFormat},
	{app.ErrEmptyFile, http.StatusBadRequest, response.CodeEmptyFile},
	{app.ErrInvalidFile, http.StatusBadRequest, response.CodeInvalidFile},
	{app.ErrNoFeatureColumns, http.StatusBadRequest, response.CodeNoFeatureColumns},
	{app.ErrLLMConfig, http.StatusBadRequest, response.CodeLLMConfig},
	{app.ErrMessageEmpty, http.StatusBadRequest, response.CodeMessageEmpty},
	{app.ErrInvalidCredential, http.StatusUnauthorized, response.CodeInvalidCredentials},
	{app.ErrUserInactive, http.StatusForbidden, response.CodeUserInactive},
	{app.ErrForbidden, http.StatusForbidden, response.CodeForbidden},
	{app.ErrDatasetNotFound, http.StatusNotFound, response.CodeDatasetNotFound},
	{app.ErrVersionNotFound, http.StatusNotFound, response.CodeVersionNotFound},
	{app.ErrAssessmentNotFound, http.StatusNotFound, response.CodeAssessmentNotFound},
	{app.ErrRecordNotFound, http.StatusNotFound, response.CodeRecordNotFound},
	{app.ErrConversationNotFound, http.StatusNotFound, response.CodeConversationNotFound},
	{app.ErrUserNotFound, http.StatusNotFound, response.CodeUserNotFound},
	{app.ErrAssessmentNotReady, http.StatusConflict, response.CodeAssessmentNotReady},
	{app.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge},
	{app.ErrMessageEnqueue, http.StatusServiceUnavailable, response.CodeServiceUnavailable},
}

func statusFor(err error) (int, int, string, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.err.Error(), true
		}
	}
	var upstream *ai.StatusError
	if errors.As(err, &upstream) {
		return http.StatusBadGateway, response.CodeUpstream, "llm provider error", true
	}
	return http.StatusInternalServerError, response.CodeInternalServer, "", false
}

// writeError maps a service error to the response envelope. Unexpected errors
// are logged and answered with fallback.
func writeError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status, code, message, known := statusFor(err)
	if !known {
		logger.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		message = fallback
	} else if status >= http.StatusInternalServerError {
		logger.Warn(fallback, zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	response.Error(c, status, code, message)
}

func badRequest(c *gin.Context, message string) {
	response.Error(c, http.StatusBadRequest, response.CodeBadRequest, message)
}

func currentUserID(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return id, ok
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
