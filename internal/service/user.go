package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arlev/storefront-api/internal/dto"
	"github.com/arlev/storefront-api/internal/model"
	"github.com/arlev/storefront-api/internal/repository"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSelfRoleChange = errors.New("cannot change own role")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRole    = errors.New("invalid role")
)

type UserService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.RefreshTokenRepository
}

func NewUserService(userRepo repository.UserRepository, tokenRepo repository.RefreshTokenRepository) *UserService {
	return &UserService{userRepo: userRepo, tokenRepo: tokenRepo}
}

func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.PictureURL != nil {
		user.PictureURL = *req.PictureURL
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ChangeRole is restricted to SUPERADMIN callers and always rejected on the
// caller's own account, whatever role is requested.
func (s *UserService) ChangeRole(ctx context.Context, callerID uuid.UUID, callerRole model.Role, targetID uuid.UUID, role model.Role) (*dto.UserResponse, error) {
	if !callerRole.AtLeast(model.RoleSuperAdmin) {
		return nil, ErrForbidden
	}
	if callerID == targetID {
		return nil, ErrSelfRoleChange
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if target == nil {
		return nil, ErrUserNotFound
	}

	if err := s.userRepo.UpdateRole(ctx, targetID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	target.Role = role
	resp := toUserResponse(target)
	return &resp, nil
}

// DeleteAccount allows self-deletion by anyone and deletion of others by
// ADMIN and above, except that an ADMIN may not delete a SUPERADMIN. All
// refresh tokens are revoked first so no session survives the account.
func (s *UserService) DeleteAccount(ctx context.Context, callerID uuid.UUID, callerRole model.Role, targetID uuid.UUID) error {
	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if target == nil {
		return ErrUserNotFound
	}

	if callerID != targetID {
		if !callerRole.AtLeast(model.RoleAdmin) {
			return ErrForbidden
		}
		if target.Role == model.RoleSuperAdmin && callerRole != model.RoleSuperAdmin {
			return ErrForbidden
		}
	}

	if err := s.tokenRepo.RevokeAllForUser(ctx, targetID); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if err := s.userRepo.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
