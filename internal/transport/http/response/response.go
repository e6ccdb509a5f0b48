package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK = 0

	CodeBadRequest        = 40000
	CodeEmailExists       = 40002
	CodeUnsupportedFormat = 40003
	CodeEmptyFile         = 40004
	CodeInvalidFile       = 40005
	CodeNoFeatureColumns  = 40006
	CodeLLMConfig         = 40007
	CodeMessageEmpty      = 40008

	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeUserInactive       = 40102

	CodeForbidden = 40300

	CodeNotFound             = 40400
	CodeDatasetNotFound      = 40401
	CodeVersionNotFound      = 40402
	CodeAssessmentNotFound   = 40403
	CodeRecordNotFound       = 40404
	CodeConversationNotFound = 40405
	CodeUserNotFound         = 40406

	CodeAssessmentNotReady = 40900
	CodeFileTooLarge       = 41300

	CodeInternalServer     = 50000
	CodeUpstream           = 50200
	CodeServiceUnavailable = 50300
)

type APIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse{
		Code:    CodeOK,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// Abort writes the error and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
