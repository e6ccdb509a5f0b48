package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	AssessmentPending   = "pending"
	AssessmentRunning   = "running"
	AssessmentCompleted = "completed"
	AssessmentFailed    = "failed"
)

// RiskAssessment summarizes one model run over a dataset version, or a single ad-hoc prediction
// when DatasetID is nil.
type RiskAssessment struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	DatasetID        *uint      `gorm:"index" json:"dataset_id,omitempty"`
	DatasetVersionID *uint      `gorm:"index" json:"dataset_version_id,omitempty"`
	ModelName        string     `gorm:"size:128;not null" json:"model_name"`
	Status           string     `gorm:"size:16;not null;index" json:"status"`
	Error            string     `gorm:"type:text" json:"error,omitempty"`
	RecordCount      int        `gorm:"not null" json:"record_count"`
	LowCount         int        `gorm:"not null" json:"low_count"`
	MediumCount      int        `gorm:"not null" json:"medium_count"`
	HighCount        int        `gorm:"not null" json:"high_count"`
	MeanScore        float64    `gorm:"not null" json:"mean_score"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type RiskRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AssessmentID uint           `gorm:"not null;index" json:"assessment_id"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	RowIndex     int            `gorm:"not null" json:"row_index"`
	Features     datatypes.JSON `json:"features"`
	Score        float64        `gorm:"not null" json:"score"`
	Label        string         `gorm:"size:16;not null;index" json:"label"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FeatureValue is one model input as stored on a RiskRecord, in model feature order.
type FeatureValue struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Imputed bool    `json:"imputed,omitempty"`
}

func (r *RiskRecord) FeatureValues() []FeatureValue {
	if len(r.Features) == 0 {
		return nil
	}
	var v []FeatureValue
	_ = json.Unmarshal(r.Features, &v)
	return v
}

func (r *RiskRecord) SetFeatureValues(values []FeatureValue) {
	if values == nil {
		values = []FeatureValue{}
	}
	b, _ := json.Marshal(values)
	r.Features = datatypes.JSON(b)
}

// Vector returns the stored feature values in order.
func (r *RiskRecord) Vector() []float64 {
	values := r.FeatureValues()
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.Value
	}
	return out
}
