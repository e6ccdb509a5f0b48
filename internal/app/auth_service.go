package app

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"phyrisk/internal/model"
	"phyrisk/internal/pkg/jwtutil"
	"phyrisk/internal/repository"
)

const minPasswordLength = 8

type AuthService struct {
	userRepo        *repository.UserRepository
	jwtSecret       string
	jwtExpireMinute int
	adminEmails     map[string]struct{}
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	Token     string      `json:"access_token"`
	TokenType string      `json:"token_type"`
	User      *model.User `json:"user"`
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpireMinute int, adminEmails []string) *AuthService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		admins[normalizeEmail(e)] = struct{}{}
	}
	return &AuthService{
		userRepo:        userRepo,
		jwtSecret:       jwtSecret,
		jwtExpireMinute: jwtExpireMinute,
		adminEmails:     admins,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	// passwords are used byte for byte
	password := input.Password
	if _, err := mail.ParseAddress(email); err != nil || len(password) < minPasswordLength {
		return nil, ErrInvalidInput
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	role := model.RoleUser
	if _, ok := s.adminEmails[email]; ok {
		role = model.RoleAdmin
	}
	user := &model.User{
		Email:        email,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if err := s.userRepo.Create(user); err != nil {
		// a concurrent registration won the unique index
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	password := input.Password
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpireMinute, user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, TokenType: "bearer", User: user}, nil
}

// GetActiveUser loads the caller behind a token; deactivated users are rejected.
func (s *AuthService) GetActiveUser(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}
