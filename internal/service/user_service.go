package service

import (
	"context"
	"errors"
	"strings"

	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
)

type CreateUserInput struct {
	UserID    string           `json:"user_id" validate:"required,max=64"`
	Name      string           `json:"name" validate:"required,max=255"`
	Email     string           `json:"email" validate:"required,email,max=320"`
	AvatarURL string           `json:"avatar_url" validate:"omitempty,url,max=1024"`
	Role      model.UserRole   `json:"role" validate:"omitempty,oneof=user admin"`
	Status    model.UserStatus `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// UpdateUserInput is a partial update; nil fields keep their stored value.
type UpdateUserInput struct {
	Name      *string
	Email     *string
	AvatarURL *string
	Role      *model.UserRole
	Status    *model.UserStatus
}

type UserService interface {
	// Create inserts an active record. ErrConflict means the UserID or the
	// email already belongs to another active user; soft-deleted records
	// hold neither.
	Create(ctx context.Context, input CreateUserInput) (*model.UserRecord, error)
	List(ctx context.Context) ([]model.UserRecord, error)
	// ListAll includes soft-deleted records. Maintenance use only.
	ListAll(ctx context.Context) ([]model.UserRecord, error)
	// GetByID reports a missing or soft-deleted user as found == false, not
	// as an error.
	GetByID(ctx context.Context, userID string) (user *model.UserRecord, found bool, err error)
	Update(ctx context.Context, userID string, input UpdateUserInput) (*model.UserRecord, error)
	SoftDelete(ctx context.Context, userID string) error
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) Create(ctx context.Context, input CreateUserInput) (*model.UserRecord, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.AvatarURL = strings.TrimSpace(input.AvatarURL)
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if input.Role == "" {
		input.Role = model.UserRoleUser
	}
	if input.Status == "" {
		input.Status = model.UserStatusActive
	}

	// Pre-check for friendlier conflict error; the unique index still decides.
	_, err := s.userRepo.FindOne(ctx, repository.UserFilter{UserID: input.UserID})
	switch {
	case err == nil:
		return nil, ErrConflict
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeError("check user id", err)
	}

	user := &model.UserRecord{
		UserID:    input.UserID,
		Name:      input.Name,
		Email:     input.Email,
		AvatarURL: input.AvatarURL,
		Role:      input.Role,
		Status:    input.Status,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, storeError("create user", err)
	}
	return user, nil
}

func (s *userService) List(ctx context.Context) ([]model.UserRecord, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

func (s *userService) ListAll(ctx context.Context) ([]model.UserRecord, error) {
	users, err := s.userRepo.List(ctx, repository.IncludeDeleted())
	if err != nil {
		return nil, storeError("list all users", err)
	}
	return users, nil
}

func (s *userService) GetByID(ctx context.Context, userID string) (*model.UserRecord, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, nil
	}
	user, err := s.userRepo.FindOne(ctx, repository.UserFilter{UserID: userID})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, storeError("get user", err)
	}
	return user, true, nil
}

func (s *userService) Update(ctx context.Context, userID string, input UpdateUserInput) (*model.UserRecord, error) {
	patch, err := input.toPatch()
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpdateByUserID(ctx, strings.TrimSpace(userID), patch)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrConflict
	}
	return nil, storeError("update user", err)
}

func (s *userService) SoftDelete(ctx context.Context, userID string) error {
	err := s.userRepo.SoftDelete(ctx, strings.TrimSpace(userID))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	}
	return storeError("delete user", err)
}

func (in UpdateUserInput) toPatch() (repository.UserPatch, error) {
	var patch repository.UserPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateVar("name", name, "required,max=255"); err != nil {
			return patch, err
		}
		patch.Name = &name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := validateVar("email", email, "required,email,max=320"); err != nil {
			return patch, err
		}
		patch.Email = &email
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if err := validateVar("avatar_url", avatar, "omitempty,url,max=1024"); err != nil {
			return patch, err
		}
		patch.AvatarURL = &avatar
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return patch, &ValidationError{Field: "role", Message: "must be one of user, admin"}
		}
		patch.Role = in.Role
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return patch, &ValidationError{Field: "status", Message: "must be one of active, inactive, suspended"}
		}
		patch.Status = in.Status
	}
	return patch, nil
}

var _ UserService = (*userService)(nil)
