package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/response"
)

type DatasetHandler struct {
	datasetService *app.DatasetService
	logger         *zap.Logger
}

type CreateDatasetRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description" binding:"max=2000"`
}

func NewDatasetHandler(datasetService *app.DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{datasetService: datasetService, logger: logger}
}

func (h *DatasetHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	ds, err := h.datasetService.Create(app.CreateDatasetInput{UserID: userID, Name: req.Name, Description: req.Description})
	if err != nil {
		writeError(c, h.logger, err, "create dataset failed")
		return
	}
	response.Created(c, ds)
}

func (h *DatasetHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	list, err := h.datasetService.List(userID)
	if err != nil {
		writeError(c, h.logger, err, "list datasets failed")
		return
	}
	response.OK(c, list)
}

func (h *DatasetHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	datasetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ds, err := h.datasetService.Get(userID, datasetID)
	if err != nil {
		writeError(c, h.logger, err, "get dataset failed")
		return
	}
	response.OK(c, ds)
}

func (h *DatasetHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	datasetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.datasetService.Delete(userID, datasetID); err != nil {
		writeError(c, h.logger, err, "delete dataset failed")
		return
	}
	response.OK(c, gin.H{"deleted_dataset_id": datasetID})
}

// Upload takes the multipart field "file".
func (h *DatasetHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	datasetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		writeError(c, h.logger, err, "open upload failed")
		return
	}
	defer f.Close()

	v, err := h.datasetService.Upload(app.UploadInput{
		UserID:    userID,
		DatasetID: datasetID,
		Filename:  header.Filename,
		Size:      header.Size,
		Body:      f,
	})
	if err != nil {
		writeError(c, h.logger, err, "upload dataset failed")
		return
	}
	response.Created(c, v)
}

func (h *DatasetHandler) ListVersions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	datasetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	versions, err := h.datasetService.ListVersions(userID, datasetID)
	if err != nil {
		writeError(c, h.logger, err, "list dataset versions failed")
		return
	}
	response.OK(c, versions)
}

func (h *DatasetHandler) GetVersion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	datasetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		badRequest(c, "invalid version")
		return
	}
	v, err := h.datasetService.GetVersion(userID, datasetID, version)
	if err != nil {
		writeError(c, h.logger, err, "get dataset version failed")
		return
	}
	response.OK(c, v)
}
