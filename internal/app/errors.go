package app

import (
	"errors"

	"phyrisk/internal/dataset"
	"phyrisk/internal/riskmodel"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrUserInactive      = errors.New("user is inactive")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("forbidden")

	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrVersionNotFound   = errors.New("dataset version not found")
	ErrUnsupportedFormat = dataset.ErrUnsupportedFormat
	ErrEmptyFile         = dataset.ErrEmptyFile
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidFile       = errors.New("file could not be parsed")

	ErrNoFeatureColumns   = riskmodel.ErrNoFeatureColumns
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrAssessmentNotReady = errors.New("assessment is not completed")
	ErrRecordNotFound     = errors.New("risk record not found")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrLLMConfig            = errors.New("llm config is invalid")
	ErrMessageEnqueue       = errors.New("message enqueue failed")
)
