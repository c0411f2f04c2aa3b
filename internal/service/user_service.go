package service

import (
	"context"
	"errors"
	"fmt"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpsertUser(ctx context.Context, user *models.User) error
	ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

type RegisterUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	TelegramID int64  `json:"telegram_id" validate:"gte=0"`
}

type UserService struct {
	repo     UserStore
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewUserService(repo UserStore, logger *zerolog.Logger) *UserService {
	return &UserService{repo: repo, validate: validator.New(), logger: logger}
}

// Register creates a customer account. A guest with the same email is promoted
// to customer and keeps their rent history.
func (s *UserService) Register(ctx context.Context, req RegisterUserRequest) (*models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	existing, err := s.repo.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil && existing.Role != models.RoleGuest:
		return nil, fmt.Errorf("%w: email %s is already registered", domain.ErrConflict, req.Email)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	user := &models.User{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		TelegramID: req.TelegramID,
		Role:       models.RoleCustomer,
	}
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", user.ID).Bool("promoted_guest", existing != nil).Msg("User registered")
	return user, nil
}

// SaveStaff creates or refreshes a staff or admin account, keyed by email.
func (s *UserService) SaveStaff(ctx context.Context, user *models.User) error {
	if user.Role != models.RoleStaff && user.Role != models.RoleAdmin {
		return domain.Validationf("role %q is not a staff role", user.Role)
	}
	if user.Email == "" {
		return domain.Validationf("staff email is required")
	}
	return s.repo.UpsertUser(ctx, user)
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetStaff lists staff and admin accounts.
func (s *UserService) GetStaff(ctx context.Context) ([]*models.User, error) {
	staff, err := s.repo.ListUsersByRole(ctx, models.RoleStaff)
	if err != nil {
		return nil, err
	}
	admins, err := s.repo.ListUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return append(staff, admins...), nil
}
