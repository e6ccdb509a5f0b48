package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"phyrisk/internal/model"
)

// ErrDuplicateEmail is returned by Create when the email is already taken.
// It relies on gorm.Config.TranslateError.
var ErrDuplicateEmail = errors.New("duplicate user email")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) List(limit, offset int) ([]model.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var users []model.User
	if err := r.db.Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users failed: %w", err)
	}
	return users, nil
}

// UpdateFields applies a partial update; map keys are column names.
func (r *UserRepository) UpdateFields(id uint, fields map[string]any) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("update user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users failed: %w", err)
	}
	return n, nil
}
