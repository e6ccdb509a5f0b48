package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phyrisk/internal/model"
	"phyrisk/internal/repository"
	"phyrisk/internal/riskmodel"
)

// Publisher hands a JSON payload to a queue consumer.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// AssessmentJob is the queue payload that asks a worker to run an assessment.
type AssessmentJob struct {
	AssessmentID uint `json:"assessment_id"`
}

type RiskService struct {
	assessmentRepo *repository.AssessmentRepository
	datasetRepo    *repository.DatasetRepository
	datasets       *DatasetService
	predictor      riskmodel.Predictor
	thresholds     riskmodel.Thresholds
	// nil runs assessments inline
	publisher Publisher
	logger    *zap.Logger
}

type CreateAssessmentInput struct {
	UserID    uint
	DatasetID uint
	Version   int
}

type PredictionResult struct {
	Assessment *model.RiskAssessment `json:"assessment"`
	Record     *model.RiskRecord     `json:"record"`
}

type ModelInfo struct {
	Name       string               `json:"name"`
	Features   []string             `json:"features"`
	Means      []float64            `json:"means"`
	Thresholds riskmodel.Thresholds `json:"thresholds"`
}

func NewRiskService(
	assessmentRepo *repository.AssessmentRepository,
	datasetRepo *repository.DatasetRepository,
	datasets *DatasetService,
	predictor riskmodel.Predictor,
	thresholds riskmodel.Thresholds,
	publisher Publisher,
	logger *zap.Logger,
) *RiskService {
	return &RiskService{
		assessmentRepo: assessmentRepo,
		datasetRepo:    datasetRepo,
		datasets:       datasets,
		predictor:      predictor,
		thresholds:     thresholds,
		publisher:      publisher,
		logger:         logger,
	}
}

func (s *RiskService) ModelInfo() ModelInfo {
	return ModelInfo{
		Name:       s.predictor.Name(),
		Features:   s.predictor.Features(),
		Means:      s.predictor.Background(),
		Thresholds: s.thresholds,
	}
}

// CreateAssessment queues a run over one dataset version, or runs it inline
// when no queue is configured or publishing fails.
func (s *RiskService) CreateAssessment(ctx context.Context, input CreateAssessmentInput) (*model.RiskAssessment, error) {
	v, err := s.datasets.GetVersion(input.UserID, input.DatasetID, input.Version)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, v.ColumnCount)
	for _, c := range v.Columns() {
		names = append(names, c.Name)
	}
	if _, err := riskmodel.ColumnIndex(s.predictor.Features(), names); err != nil {
		return nil, err
	}

	a := &model.RiskAssessment{
		UserID:           input.UserID,
		DatasetID:        &v.DatasetID,
		DatasetVersionID: &v.ID,
		ModelName:        s.predictor.Name(),
		Status:           model.AssessmentPending,
	}
	if err := s.assessmentRepo.Create(a); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, AssessmentJob{AssessmentID: a.ID})
		if err == nil {
			return a, nil
		}
		s.logger.Warn("publish assessment job failed, running inline", zap.Uint("assessment_id", a.ID), zap.Error(err))
	}

	if err := s.RunAssessment(ctx, a.ID); err != nil {
		return nil, err
	}
	return s.assessmentRepo.GetByID(a.ID)
}

// RunAssessment scores every row of the assessment's dataset version.
// Scoring failures are recorded on the assessment; the returned error covers
// failures to load or save it and cancellation of ctx, which leaves the
// assessment pending. A completed assessment is left untouched.
func (s *RiskService) RunAssessment(ctx context.Context, assessmentID uint) error {
	a, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrAssessmentNotFound
	}
	if a.Status == model.AssessmentCompleted {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.Status = model.AssessmentRunning
	a.Error = ""
	if err := s.assessmentRepo.Save(a); err != nil {
		return err
	}

	started := time.Now()
	records, err := s.scoreVersion(ctx, a)
	if err != nil && ctx.Err() != nil {
		// interrupted, not failed: leave it pending for the next delivery
		a.Status = model.AssessmentPending
		if saveErr := s.assessmentRepo.Save(a); saveErr != nil {
			s.logger.Warn("reset interrupted assessment failed", zap.Uint("assessment_id", a.ID), zap.Error(saveErr))
		}
		return fmt.Errorf("assessment %d interrupted: %w", a.ID, ctx.Err())
	}
	if err != nil {
		s.logger.Warn("assessment failed", zap.Uint("assessment_id", a.ID), zap.Error(err))
		a.Status = model.AssessmentFailed
		a.Error = err.Error()
		return s.assessmentRepo.Save(a)
	}

	s.summarize(a, records)
	if err := s.assessmentRepo.ReplaceRecords(a, records); err != nil {
		return err
	}
	s.logger.Info("assessment completed",
		zap.Uint("assessment_id", a.ID),
		zap.Int("records", a.RecordCount),
		zap.Int("high", a.HighCount),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

func (s *RiskService) scoreVersion(ctx context.Context, a *model.RiskAssessment) ([]model.RiskRecord, error) {
	if a.DatasetVersionID == nil {
		return nil, fmt.Errorf("assessment %d has no dataset version", a.ID)
	}
	v, err := s.datasetRepo.GetVersionByID(*a.DatasetVersionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVersionNotFound
	}
	table, err := s.datasets.LoadTable(v)
	if err != nil {
		return nil, err
	}
	idx, err := riskmodel.ColumnIndex(s.predictor.Features(), table.Columns)
	if err != nil {
		return nil, err
	}

	records := make([]model.RiskRecord, 0, len(table.Rows))
	for row := range table.Rows {
		if row%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := s.score(riskmodel.VectorizeRow(s.predictor, idx, table, row))
		if err != nil {
			return nil, fmt.Errorf("score row %d failed: %w", row, err)
		}
		rec.AssessmentID = a.ID
		rec.UserID = a.UserID
		rec.RowIndex = row
		records = append(records, rec)
	}
	return records, nil
}

func (s *RiskService) score(values []model.FeatureValue) (model.RiskRecord, error) {
	x := make([]float64, len(values))
	for i, v := range values {
		x[i] = v.Value
	}
	p, err := s.predictor.Predict(x)
	if err != nil {
		return model.RiskRecord{}, err
	}
	rec := model.RiskRecord{Score: p, Label: s.thresholds.Label(p)}
	rec.SetFeatureValues(values)
	return rec, nil
}

func (s *RiskService) summarize(a *model.RiskAssessment, records []model.RiskRecord) {
	a.RecordCount = len(records)
	a.LowCount, a.MediumCount, a.HighCount = 0, 0, 0
	var total float64
	for _, r := range records {
		total += r.Score
		switch r.Label {
		case riskmodel.LabelLow:
			a.LowCount++
		case riskmodel.LabelMedium:
			a.MediumCount++
		case riskmodel.LabelHigh:
			a.HighCount++
		}
	}
	a.MeanScore = 0
	if len(records) > 0 {
		a.MeanScore = total / float64(len(records))
	}
	now := time.Now()
	a.CompletedAt = &now
	a.Status = model.AssessmentCompleted
	a.Error = ""
}

// PredictSingle scores one ad-hoc input and stores it as a one-record assessment.
func (s *RiskService) PredictSingle(userID uint, features map[string]any) (*PredictionResult, error) {
	if userID == 0 || len(features) == 0 {
		return nil, ErrInvalidInput
	}
	values, err := riskmodel.VectorizeMap(s.predictor, features)
	if err != nil {
		return nil, err
	}
	rec, err := s.score(values)
	if err != nil {
		return nil, err
	}
	rec.UserID = userID

	a := &model.RiskAssessment{UserID: userID, ModelName: s.predictor.Name()}
	records := []model.RiskRecord{rec}
	s.summarize(a, records)
	if err := s.assessmentRepo.CreateWithRecords(a, records); err != nil {
		return nil, err
	}
	return &PredictionResult{Assessment: a, Record: &records[0]}, nil
}

func (s *RiskService) ListAssessments(userID uint) ([]model.RiskAssessment, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.assessmentRepo.ListByUserID(userID)
}

func (s *RiskService) GetAssessment(userID, assessmentID uint) (*model.RiskAssessment, error) {
	if userID == 0 || assessmentID == 0 {
		return nil, ErrInvalidInput
	}
	a, err := s.assessmentRepo.GetByIDAndUserID(assessmentID, userID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAssessmentNotFound
	}
	return a, nil
}

func (s *RiskService) ListRecords(userID, assessmentID uint, limit, offset int) ([]model.RiskRecord, error) {
	a, err := s.GetAssessment(userID, assessmentID)
	if err != nil {
		return nil, err
	}
	return s.assessmentRepo.ListRecords(a.ID, limit, offset)
}

func (s *RiskService) GetRecord(userID, recordID uint) (*model.RiskRecord, error) {
	if userID == 0 || recordID == 0 {
		return nil, ErrInvalidInput
	}
	rec, err := s.assessmentRepo.GetRecordByIDAndUserID(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}
