package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"phyrisk/internal/model"
)

type ExplanationRepository struct {
	db *gorm.DB
}

func NewExplanationRepository(db *gorm.DB) *ExplanationRepository {
	return &ExplanationRepository{db: db}
}

func (r *ExplanationRepository) GetByRecordID(recordID uint) (*model.XAIExplanation, error) {
	var e model.XAIExplanation
	if err := r.db.Where("record_id = ?", recordID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get explanation failed: %w", err)
	}
	return &e, nil
}

// Create ignores a duplicate for the same record; the first stored explanation wins.
func (r *ExplanationRepository) Create(e *model.XAIExplanation) error {
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(e).Error; err != nil {
		return fmt.Errorf("create explanation failed: %w", err)
	}
	return nil
}

func (r *ExplanationRepository) ListByRecordIDs(recordIDs []uint) ([]model.XAIExplanation, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	var list []model.XAIExplanation
	if err := r.db.Where("record_id IN ?", recordIDs).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list explanations failed: %w", err)
	}
	return list, nil
}
