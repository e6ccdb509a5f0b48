package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Dataset struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Name          string    `gorm:"size:128;not null" json:"name"`
	Slug          string    `gorm:"size:160;not null" json:"slug"`
	Description   string    `gorm:"type:text" json:"description"`
	LatestVersion int       `gorm:"not null;default:0" json:"latest_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DatasetVersion is an immutable snapshot of one uploaded file.
type DatasetVersion struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	DatasetID    uint           `gorm:"not null;uniqueIndex:idx_dataset_version" json:"dataset_id"`
	Version      int            `gorm:"not null;uniqueIndex:idx_dataset_version" json:"version"`
	Filename     string         `gorm:"size:255;not null" json:"filename"`
	StoragePath  string         `gorm:"size:512;not null" json:"-"`
	Format       string         `gorm:"size:16;not null" json:"format"`
	SizeBytes    int64          `gorm:"not null" json:"size_bytes"`
	RowCount     int            `gorm:"not null" json:"row_count"`
	ColumnCount  int            `gorm:"not null" json:"column_count"`
	Schema       datatypes.JSON `json:"schema"`
	MissingCells int            `gorm:"not null" json:"missing_cells"`
	TotalCells   int            `gorm:"not null" json:"total_cells"`
	MissingRatio float64        `gorm:"not null" json:"missing_ratio"`
	QualityScore float64        `gorm:"not null" json:"quality_score"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ColumnSchema is one entry of DatasetVersion.Schema.
type ColumnSchema struct {
	Name    string `json:"name"`
	DType   string `json:"dtype"`
	Missing int    `json:"missing"`
}

func (v *DatasetVersion) Columns() []ColumnSchema {
	if len(v.Schema) == 0 {
		return nil
	}
	var cols []ColumnSchema
	_ = json.Unmarshal(v.Schema, &cols)
	return cols
}

func (v *DatasetVersion) SetColumns(cols []ColumnSchema) {
	if cols == nil {
		cols = []ColumnSchema{}
	}
	b, _ := json.Marshal(cols)
	v.Schema = datatypes.JSON(b)
}
