package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"phyrisk/internal/model"
)

const recordBatchSize = 200

type AssessmentRepository struct {
	db *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

func (r *AssessmentRepository) Create(a *model.RiskAssessment) error {
	if err := r.db.Create(a).Error; err != nil {
		return fmt.Errorf("create assessment failed: %w", err)
	}
	return nil
}

func (r *AssessmentRepository) Save(a *model.RiskAssessment) error {
	if err := r.db.Save(a).Error; err != nil {
		return fmt.Errorf("save assessment failed: %w", err)
	}
	return nil
}

func (r *AssessmentRepository) GetByID(id uint) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	if err := r.db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assessment failed: %w", err)
	}
	return &a, nil
}

func (r *AssessmentRepository) GetByIDAndUserID(id, userID uint) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assessment failed: %w", err)
	}
	return &a, nil
}

func (r *AssessmentRepository) ListByUserID(userID uint) ([]model.RiskAssessment, error) {
	var list []model.RiskAssessment
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list assessments failed: %w", err)
	}
	return list, nil
}

// ReplaceRecords swaps the assessment's records for the given set and saves the summary, atomically.
func (r *AssessmentRepository) ReplaceRecords(a *model.RiskAssessment, records []model.RiskRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&model.RiskRecord{}).Select("id").Where("assessment_id = ?", a.ID)
		if err := tx.Where("record_id IN (?)", stale).Delete(&model.XAIExplanation{}).Error; err != nil {
			return fmt.Errorf("clear explanations failed: %w", err)
		}
		if err := tx.Where("assessment_id = ?", a.ID).Delete(&model.RiskRecord{}).Error; err != nil {
			return fmt.Errorf("clear risk records failed: %w", err)
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(&records, recordBatchSize).Error; err != nil {
				return fmt.Errorf("create risk records failed: %w", err)
			}
		}
		if err := tx.Save(a).Error; err != nil {
			return fmt.Errorf("save assessment failed: %w", err)
		}
		return nil
	})
}

func (r *AssessmentRepository) ListRecords(assessmentID uint, limit, offset int) ([]model.RiskRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var records []model.RiskRecord
	if err := r.db.Where("assessment_id = ?", assessmentID).Order("row_index ASC").Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list risk records failed: %w", err)
	}
	return records, nil
}

// SampleRecords returns the first limit records in row order. Unlike
// ListRecords it applies no page-size cap.
func (r *AssessmentRepository) SampleRecords(assessmentID uint, limit int) ([]model.RiskRecord, error) {
	var records []model.RiskRecord
	if limit <= 0 {
		return records, nil
	}
	if err := r.db.Where("assessment_id = ?", assessmentID).Order("row_index ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("sample risk records failed: %w", err)
	}
	return records, nil
}

// CreateWithRecords inserts a finished assessment and its records in one transaction.
func (r *AssessmentRepository) CreateWithRecords(a *model.RiskAssessment, records []model.RiskRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("create assessment failed: %w", err)
		}
		for i := range records {
			records[i].AssessmentID = a.ID
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(&records, recordBatchSize).Error; err != nil {
				return fmt.Errorf("create risk records failed: %w", err)
			}
		}
		return nil
	})
}

func (r *AssessmentRepository) GetRecordByIDAndUserID(id, userID uint) (*model.RiskRecord, error) {
	var rec model.RiskRecord
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get risk record failed: %w", err)
	}
	return &rec, nil
}

func (r *AssessmentRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.RiskAssessment{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count assessments failed: %w", err)
	}
	return n, nil
}

func (r *AssessmentRepository) CountRecords() (int64, error) {
	var n int64
	if err := r.db.Model(&model.RiskRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count risk records failed: %w", err)
	}
	return n, nil
}

// LabelCounts returns the number of records per label across all users.
func (r *AssessmentRepository) LabelCounts() (map[string]int64, error) {
	var rows []struct {
		Label string
		Total int64
	}
	if err := r.db.Model(&model.RiskRecord{}).Select("label, COUNT(*) AS total").Group("label").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count labels failed: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Label] = row.Total
	}
	return out, nil
}
