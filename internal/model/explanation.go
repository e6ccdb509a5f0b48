package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type XAIExplanation struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RecordID   uint           `gorm:"not null;uniqueIndex" json:"record_id"`
	UserID     uint           `gorm:"not null;index" json:"user_id"`
	Method     string         `gorm:"size:16;not null" json:"method"`
	Space      string         `gorm:"size:16;not null" json:"space"`
	BaseValue  float64        `gorm:"not null" json:"base_value"`
	Prediction float64        `gorm:"not null" json:"prediction"`
	Values     datatypes.JSON `json:"values"`
	CreatedAt  time.Time      `json:"created_at"`
}

type SHAPValue struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	SHAP    float64 `json:"shap"`
}

func (e *XAIExplanation) SHAPValues() []SHAPValue {
	if len(e.Values) == 0 {
		return nil
	}
	var v []SHAPValue
	_ = json.Unmarshal(e.Values, &v)
	return v
}

func (e *XAIExplanation) SetSHAPValues(values []SHAPValue) {
	if values == nil {
		values = []SHAPValue{}
	}
	b, _ := json.Marshal(values)
	e.Values = datatypes.JSON(b)
}
