package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"phyrisk/internal/model"
)

// ErrVersionConflict is returned when another upload bumped the dataset version concurrently.
var ErrVersionConflict = errors.New("dataset version conflict")

const versionRetries = 3

type DatasetRepository struct {
	db *gorm.DB
}

func NewDatasetRepository(db *gorm.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

func (r *DatasetRepository) Create(dataset *model.Dataset) error {
	if err := r.db.Create(dataset).Error; err != nil {
		return fmt.Errorf("create dataset failed: %w", err)
	}
	return nil
}

func (r *DatasetRepository) ListByUserID(userID uint) ([]model.Dataset, error) {
	var datasets []model.Dataset
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("list datasets failed: %w", err)
	}
	return datasets, nil
}

func (r *DatasetRepository) GetByIDAndUserID(id, userID uint) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get dataset failed: %w", err)
	}
	return &dataset, nil
}

// Delete removes the dataset and all of its versions.
func (r *DatasetRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", id).Delete(&model.DatasetVersion{}).Error; err != nil {
			return fmt.Errorf("delete dataset versions failed: %w", err)
		}
		if err := tx.Delete(&model.Dataset{}, id).Error; err != nil {
			return fmt.Errorf("delete dataset failed: %w", err)
		}
		return nil
	})
}

// CreateVersion assigns the next version number and inserts v in one transaction.
// The bump is a compare-and-set on latest_version, retried on conflict.
func (r *DatasetRepository) CreateVersion(datasetID uint, v *model.DatasetVersion) error {
	var err error
	for attempt := 0; attempt < versionRetries; attempt++ {
		err = r.db.Transaction(func(tx *gorm.DB) error {
			var dataset model.Dataset
			if err := tx.First(&dataset, datasetID).Error; err != nil {
				return fmt.Errorf("load dataset failed: %w", err)
			}

			next := dataset.LatestVersion + 1
			res := tx.Model(&model.Dataset{}).
				Where("id = ? AND latest_version = ?", datasetID, dataset.LatestVersion).
				Update("latest_version", next)
			if res.Error != nil {
				return fmt.Errorf("bump dataset version failed: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}

			v.ID = 0
			v.DatasetID = datasetID
			v.Version = next
			if err := tx.Create(v).Error; err != nil {
				return fmt.Errorf("create dataset version failed: %w", err)
			}
			return nil
		})
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}

func (r *DatasetRepository) ListVersions(datasetID uint) ([]model.DatasetVersion, error) {
	var versions []model.DatasetVersion
	if err := r.db.Where("dataset_id = ?", datasetID).Order("version ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("list dataset versions failed: %w", err)
	}
	return versions, nil
}

func (r *DatasetRepository) GetVersion(datasetID uint, version int) (*model.DatasetVersion, error) {
	var v model.DatasetVersion
	if err := r.db.Where("dataset_id = ? AND version = ?", datasetID, version).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get dataset version failed: %w", err)
	}
	return &v, nil
}

func (r *DatasetRepository) GetVersionByID(id uint) (*model.DatasetVersion, error) {
	var v model.DatasetVersion
	if err := r.db.First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get dataset version by id failed: %w", err)
	}
	return &v, nil
}

func (r *DatasetRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.Dataset{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count datasets failed: %w", err)
	}
	return n, nil
}

func (r *DatasetRepository) CountVersions() (int64, error) {
	var n int64
	if err := r.db.Model(&model.DatasetVersion{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count dataset versions failed: %w", err)
	}
	return n, nil
}

func (r *DatasetRepository) AverageQuality() (float64, error) {
	var avg sql.NullFloat64
	if err := r.db.Model(&model.DatasetVersion{}).Select("AVG(quality_score)").Row().Scan(&avg); err != nil {
		return 0, fmt.Errorf("average quality failed: %w", err)
	}
	return avg.Float64, nil
}
