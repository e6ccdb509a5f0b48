package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/response"
)

type RiskHandler struct {
	riskService *app.RiskService
	logger      *zap.Logger
}

type CreateAssessmentRequest struct {
	DatasetID uint `json:"dataset_id" binding:"required,gt=0"`
	// 0 selects the latest version
	Version int `json:"version" binding:"gte=0"`
}

type PredictRequest struct {
	Features map[string]any `json:"features" binding:"required"`
}

func NewRiskHandler(riskService *app.RiskService, logger *zap.Logger) *RiskHandler {
	return &RiskHandler{riskService: riskService, logger: logger}
}

func (h *RiskHandler) CreateAssessment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	a, err := h.riskService.CreateAssessment(c.Request.Context(), app.CreateAssessmentInput{
		UserID:    userID,
		DatasetID: req.DatasetID,
		Version:   req.Version,
	})
	if err != nil {
		writeError(c, h.logger, err, "create assessment failed")
		return
	}
	response.Created(c, a)
}

func (h *RiskHandler) Predict(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}
	result, err := h.riskService.PredictSingle(userID, req.Features)
	if err != nil {
		writeError(c, h.logger, err, "predict failed")
		return
	}
	response.OK(c, result)
}

func (h *RiskHandler) ListAssessments(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	list, err := h.riskService.ListAssessments(userID)
	if err != nil {
		writeError(c, h.logger, err, "list assessments failed")
		return
	}
	response.OK(c, list)
}

func (h *RiskHandler) GetAssessment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	a, err := h.riskService.GetAssessment(userID, id)
	if err != nil {
		writeError(c, h.logger, err, "get assessment failed")
		return
	}
	response.OK(c, a)
}

func (h *RiskHandler) ListRecords(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	records, err := h.riskService.ListRecords(userID, id, queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, h.logger, err, "list records failed")
		return
	}
	response.OK(c, records)
}

func (h *RiskHandler) GetRecord(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rec, err := h.riskService.GetRecord(userID, id)
	if err != nil {
		writeError(c, h.logger, err, "get record failed")
		return
	}
	response.OK(c, rec)
}

func (h *RiskHandler) ModelInfo(c *gin.Context) {
	response.OK(c, h.riskService.ModelInfo())
}
