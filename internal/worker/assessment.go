package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"phyrisk/internal/app"
)

type AssessmentRunner interface {
	RunAssessment(ctx context.Context, assessmentID uint) error
}

// AssessmentHandler runs queued risk assessments.
type AssessmentHandler struct {
	runner AssessmentRunner
}

func NewAssessmentHandler(runner AssessmentRunner) *AssessmentHandler {
	return &AssessmentHandler{runner: runner}
}

func (h *AssessmentHandler) Handle(ctx context.Context, body []byte) error {
	var job app.AssessmentJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: decode assessment job: %v", ErrDrop, err)
	}
	if job.AssessmentID == 0 {
		return fmt.Errorf("%w: assessment job without id", ErrDrop)
	}
	err := h.runner.RunAssessment(ctx, job.AssessmentID)
	if errors.Is(err, app.ErrAssessmentNotFound) {
		return fmt.Errorf("%w: %v", ErrDrop, err)
	}
	return err
}
