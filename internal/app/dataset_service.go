package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"phyrisk/internal/dataset"
	"phyrisk/internal/model"
	"phyrisk/internal/repository"
)

// FileStore is where uploaded dataset files live; paths are store-relative.
type FileStore interface {
	Save(userID uint, dataset, ext string, r io.Reader) (string, int64, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

type DatasetService struct {
	datasetRepo    *repository.DatasetRepository
	store          FileStore
	maxUploadBytes int64
	logger         *zap.Logger
}

type CreateDatasetInput struct {
	UserID      uint
	Name        string
	Description string
}

type UploadInput struct {
	UserID    uint
	DatasetID uint
	Filename  string
	// Size is the declared size; zero when unknown.
	Size int64
	Body io.Reader
}

func NewDatasetService(datasetRepo *repository.DatasetRepository, store FileStore, maxUploadBytes int64, logger *zap.Logger) *DatasetService {
	return &DatasetService{
		datasetRepo:    datasetRepo,
		store:          store,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (s *DatasetService) Create(input CreateDatasetInput) (*model.Dataset, error) {
	name := strings.TrimSpace(input.Name)
	if input.UserID == 0 || name == "" || len(name) > 128 {
		return nil, ErrInvalidInput
	}
	ds := &model.Dataset{
		UserID:      input.UserID,
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(input.Description),
	}
	if ds.Slug == "" {
		ds.Slug = "dataset"
	}
	if err := s.datasetRepo.Create(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *DatasetService) List(userID uint) ([]model.Dataset, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.datasetRepo.ListByUserID(userID)
}

func (s *DatasetService) Get(userID, datasetID uint) (*model.Dataset, error) {
	if userID == 0 || datasetID == 0 {
		return nil, ErrInvalidInput
	}
	ds, err := s.datasetRepo.GetByIDAndUserID(datasetID, userID)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, ErrDatasetNotFound
	}
	return ds, nil
}

// Delete removes the dataset, its versions and their stored files.
func (s *DatasetService) Delete(userID, datasetID uint) error {
	ds, err := s.Get(userID, datasetID)
	if err != nil {
		return err
	}
	versions, err := s.datasetRepo.ListVersions(ds.ID)
	if err != nil {
		return err
	}
	if err := s.datasetRepo.Delete(ds.ID); err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.store.Remove(v.StoragePath); err != nil {
			s.logger.Warn("remove dataset file failed", zap.Uint("dataset_id", ds.ID), zap.String("path", v.StoragePath), zap.Error(err))
		}
	}
	return nil
}

// Upload parses and summarizes the file, stores it and records it as the next version.
func (s *DatasetService) Upload(input UploadInput) (*model.DatasetVersion, error) {
	ds, err := s.Get(input.UserID, input.DatasetID)
	if err != nil {
		return nil, err
	}
	if input.Body == nil {
		return nil, ErrInvalidInput
	}
	filename := filepath.Base(strings.TrimSpace(input.Filename))
	format, err := dataset.FormatFromFilename(filename)
	if err != nil {
		return nil, err
	}
	if s.maxUploadBytes > 0 && input.Size > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	body := input.Body
	if s.maxUploadBytes > 0 {
		body = io.LimitReader(body, s.maxUploadBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if s.maxUploadBytes > 0 && int64(len(raw)) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	table, err := dataset.Parse(bytes.NewReader(raw), format)
	if err != nil {
		if errors.Is(err, dataset.ErrEmptyFile) || errors.Is(err, dataset.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	summary := dataset.Summarize(table)

	path, size, err := s.store.Save(ds.UserID, ds.Slug, filepath.Ext(filename), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	v := &model.DatasetVersion{
		Filename:     filename,
		StoragePath:  path,
		Format:       string(format),
		SizeBytes:    size,
		RowCount:     summary.RowCount,
		ColumnCount:  summary.ColumnCount,
		MissingCells: summary.MissingCells,
		TotalCells:   summary.TotalCells,
		MissingRatio: summary.MissingRatio,
		QualityScore: summary.QualityScore,
	}
	cols := make([]model.ColumnSchema, len(summary.Columns))
	for i, c := range summary.Columns {
		cols[i] = model.ColumnSchema{Name: c.Name, DType: c.DType, Missing: c.Missing}
	}
	v.SetColumns(cols)

	if err := s.datasetRepo.CreateVersion(ds.ID, v); err != nil {
		if rmErr := s.store.Remove(path); rmErr != nil {
			s.logger.Warn("remove orphaned upload failed", zap.String("path", path), zap.Error(rmErr))
		}
		return nil, err
	}
	s.logger.Info("dataset version created",
		zap.Uint("dataset_id", ds.ID),
		zap.Int("version", v.Version),
		zap.Int("rows", v.RowCount),
		zap.Float64("missing_ratio", v.MissingRatio),
	)
	return v, nil
}

func (s *DatasetService) ListVersions(userID, datasetID uint) ([]model.DatasetVersion, error) {
	ds, err := s.Get(userID, datasetID)
	if err != nil {
		return nil, err
	}
	return s.datasetRepo.ListVersions(ds.ID)
}

// GetVersion resolves version 0 to the latest one.
func (s *DatasetService) GetVersion(userID, datasetID uint, version int) (*model.DatasetVersion, error) {
	if version < 0 {
		return nil, ErrInvalidInput
	}
	ds, err := s.Get(userID, datasetID)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		version = ds.LatestVersion
	}
	if version == 0 {
		return nil, ErrVersionNotFound
	}
	v, err := s.datasetRepo.GetVersion(ds.ID, version)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVersionNotFound
	}
	return v, nil
}

// LoadTable re-reads a stored version.
func (s *DatasetService) LoadTable(v *model.DatasetVersion) (*dataset.Table, error) {
	f, err := s.store.Open(v.StoragePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.Parse(f, dataset.Format(v.Format))
}
