package app

import (
	"phyrisk/internal/model"
	"phyrisk/internal/repository"
	"phyrisk/internal/riskmodel"
)

type AdminService struct {
	userRepo       *repository.UserRepository
	datasetRepo    *repository.DatasetRepository
	assessmentRepo *repository.AssessmentRepository
}

type Metrics struct {
	Users              int64            `json:"users"`
	Datasets           int64            `json:"datasets"`
	DatasetVersions    int64            `json:"dataset_versions"`
	Assessments        int64            `json:"assessments"`
	Records            int64            `json:"records"`
	LabelDistribution  map[string]int64 `json:"label_distribution"`
	MeanDatasetQuality float64          `json:"mean_dataset_quality"`
}

type UpdateUserInput struct {
	IsActive *bool
	Role     *string
}

func NewAdminService(
	userRepo *repository.UserRepository,
	datasetRepo *repository.DatasetRepository,
	assessmentRepo *repository.AssessmentRepository,
) *AdminService {
	return &AdminService{
		userRepo:       userRepo,
		datasetRepo:    datasetRepo,
		assessmentRepo: assessmentRepo,
	}
}

func (s *AdminService) Metrics() (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.Users, err = s.userRepo.Count(); err != nil {
		return nil, err
	}
	if m.Datasets, err = s.datasetRepo.Count(); err != nil {
		return nil, err
	}
	if m.DatasetVersions, err = s.datasetRepo.CountVersions(); err != nil {
		return nil, err
	}
	if m.Assessments, err = s.assessmentRepo.Count(); err != nil {
		return nil, err
	}
	if m.Records, err = s.assessmentRepo.CountRecords(); err != nil {
		return nil, err
	}
	if m.MeanDatasetQuality, err = s.datasetRepo.AverageQuality(); err != nil {
		return nil, err
	}
	counts, err := s.assessmentRepo.LabelCounts()
	if err != nil {
		return nil, err
	}
	// every label is reported, even at zero
	m.LabelDistribution = map[string]int64{
		riskmodel.LabelLow:    counts[riskmodel.LabelLow],
		riskmodel.LabelMedium: counts[riskmodel.LabelMedium],
		riskmodel.LabelHigh:   counts[riskmodel.LabelHigh],
	}
	return &m, nil
}

func (s *AdminService) ListUsers(limit, offset int) ([]model.User, error) {
	return s.userRepo.List(limit, offset)
}

// UpdateUser changes activation or role. Admins cannot demote or deactivate themselves.
func (s *AdminService) UpdateUser(actorID, userID uint, input UpdateUserInput) (*model.User, error) {
	if userID == 0 || (input.IsActive == nil && input.Role == nil) {
		return nil, ErrInvalidInput
	}
	fields := map[string]any{}
	if input.IsActive != nil {
		if actorID == userID && !*input.IsActive {
			return nil, ErrForbidden
		}
		fields["is_active"] = *input.IsActive
	}
	if input.Role != nil {
		role := *input.Role
		if role != model.RoleUser && role != model.RoleAdmin {
			return nil, ErrInvalidInput
		}
		if actorID == userID && role != model.RoleAdmin {
			return nil, ErrForbidden
		}
		fields["role"] = role
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := s.userRepo.UpdateFields(userID, fields); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(userID)
}
