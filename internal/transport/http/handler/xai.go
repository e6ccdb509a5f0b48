package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/response"
)

type XAIHandler struct {
	xaiService *app.XAIService
	logger     *zap.Logger
}

func NewXAIHandler(xaiService *app.XAIService, logger *zap.Logger) *XAIHandler {
	return &XAIHandler{xaiService: xaiService, logger: logger}
}

func (h *XAIHandler) Local(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	recordID, ok := parseIDParam(c, "record_id")
	if !ok {
		return
	}
	exp, err := h.xaiService.ExplainRecord(c.Request.Context(), userID, recordID)
	if err != nil {
		writeError(c, h.logger, err, "explain record failed")
		return
	}
	response.OK(c, exp)
}

func (h *XAIHandler) Global(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assessmentID, ok := parseIDParam(c, "assessment_id")
	if !ok {
		return
	}
	global, err := h.xaiService.GlobalImportance(c.Request.Context(), userID, assessmentID)
	if err != nil {
		writeError(c, h.logger, err, "global importance failed")
		return
	}
	response.OK(c, global)
}
