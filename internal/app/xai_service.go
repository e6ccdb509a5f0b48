package app

import (
	"context"

	"go.uber.org/zap"

	"phyrisk/internal/model"
	"phyrisk/internal/repository"
	"phyrisk/internal/xai"
)

type ExplanationCache interface {
	Get(ctx context.Context, recordID uint) (*xai.Explanation, bool, error)
	Set(ctx context.Context, recordID uint, exp *xai.Explanation) error
}

type XAIService struct {
	assessmentRepo  *repository.AssessmentRepository
	explanationRepo *repository.ExplanationRepository
	explainer       xai.Explainer
	features        []string
	cache           ExplanationCache
	sampleLimit     int
	logger          *zap.Logger
}

type LocalExplanation struct {
	RecordID uint    `json:"record_id"`
	Score    float64 `json:"score"`
	Label    string  `json:"label"`
	*xai.Explanation
}

type GlobalExplanation struct {
	AssessmentID uint             `json:"assessment_id"`
	SampleSize   int              `json:"sample_size"`
	Importances  []xai.Importance `json:"importances"`
}

func NewXAIService(
	assessmentRepo *repository.AssessmentRepository,
	explanationRepo *repository.ExplanationRepository,
	explainer xai.Explainer,
	features []string,
	cache ExplanationCache,
	sampleLimit int,
	logger *zap.Logger,
) *XAIService {
	if sampleLimit <= 0 {
		sampleLimit = 500
	}
	return &XAIService{
		assessmentRepo:  assessmentRepo,
		explanationRepo: explanationRepo,
		explainer:       explainer,
		features:        features,
		cache:           cache,
		sampleLimit:     sampleLimit,
		logger:          logger,
	}
}

// ExplainRecord returns the record's SHAP values from cache, database, or a
// fresh computation, in that order. A fresh result is persisted once.
func (s *XAIService) ExplainRecord(ctx context.Context, userID, recordID uint) (*LocalExplanation, error) {
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

	exp, err := s.explain(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &LocalExplanation{RecordID: rec.ID, Score: rec.Score, Label: rec.Label, Explanation: exp}, nil
}

func (s *XAIService) explain(ctx context.Context, rec *model.RiskRecord) (*xai.Explanation, error) {
	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, rec.ID)
		if err != nil {
			s.logger.Debug("explanation cache get failed", zap.Uint("record_id", rec.ID), zap.Error(err))
		}
		if hit {
			return cached, nil
		}
	}

	stored, err := s.explanationRepo.GetByRecordID(rec.ID)
	if err != nil {
		return nil, err
	}
	var exp *xai.Explanation
	if stored != nil {
		exp = fromStored(stored)
	} else {
		exp, err = s.explainer.Explain(rec.Vector(), int64(rec.ID))
		if err != nil {
			return nil, err
		}
		row := &model.XAIExplanation{
			RecordID:   rec.ID,
			UserID:     rec.UserID,
			Method:     exp.Method,
			Space:      exp.Space,
			BaseValue:  exp.BaseValue,
			Prediction: exp.Prediction,
		}
		row.SetSHAPValues(exp.Values)
		if err := s.explanationRepo.Create(row); err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec.ID, exp); err != nil {
			s.logger.Debug("explanation cache set failed", zap.Uint("record_id", rec.ID), zap.Error(err))
		}
	}
	return exp, nil
}

func fromStored(e *model.XAIExplanation) *xai.Explanation {
	return &xai.Explanation{
		Method:     e.Method,
		Space:      e.Space,
		BaseValue:  e.BaseValue,
		Prediction: e.Prediction,
		Values:     e.SHAPValues(),
	}
}

// GlobalImportance averages |shap| per feature over the first sampleLimit
// records of a completed assessment. Stored explanations are reused.
func (s *XAIService) GlobalImportance(ctx context.Context, userID, assessmentID uint) (*GlobalExplanation, error) {
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
	if a.Status != model.AssessmentCompleted {
		return nil, ErrAssessmentNotReady
	}

	records, err := s.assessmentRepo.SampleRecords(a.ID, s.sampleLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	stored, err := s.explanationRepo.ListByRecordIDs(ids)
	if err != nil {
		return nil, err
	}
	byRecord := make(map[uint]*model.XAIExplanation, len(stored))
	for i := range stored {
		byRecord[stored[i].RecordID] = &stored[i]
	}

	exps := make([]*xai.Explanation, 0, len(records))
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e, ok := byRecord[records[i].ID]; ok {
			exps = append(exps, fromStored(e))
			continue
		}
		exp, err := s.explainer.Explain(records[i].Vector(), int64(records[i].ID))
		if err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}

	return &GlobalExplanation{
		AssessmentID: a.ID,
		SampleSize:   len(exps),
		Importances:  xai.GlobalImportance(s.features, exps),
	}, nil
}
