package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/repositories"
)

const (
	DefaultUserPageSize = 20
	MaxUserPageSize     = 100
)

type AdminUserService interface {
	ListUsers(ctx context.Context, filter models.UserFilter) (models.UserListResponse, error)
}

type adminUserService struct {
	userRepo repositories.UserRepository
}

func NewAdminUserService(userRepo repositories.UserRepository) AdminUserService {
	return &adminUserService{userRepo: userRepo}
}

func (s *adminUserService) ListUsers(ctx context.Context, filter models.UserFilter) (models.UserListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultUserPageSize
	case filter.Limit > MaxUserPageSize:
		filter.Limit = MaxUserPageSize
	}
	if filter.Role != nil && *filter.Role != models.RoleAdmin && *filter.Role != models.RoleUser {
		return models.UserListResponse{}, &ValidationError{Fields: map[string]string{"role": "must be admin or user"}}
	}

	users, total, err := s.userRepo.List(ctx, filter)
	if err != nil {
		return models.UserListResponse{}, fmt.Errorf("failed to list users: %w", err)
	}

	for _, u := range users {
		u.PasswordHash = ""
	}
	return models.UserListResponse{
		Users:      users,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}
