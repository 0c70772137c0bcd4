package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/pkg/logger"
)

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]model.Entity, error) {
	users, err := s.store.ListUsers(ctx)
	if users == nil && err == nil {
		users = []model.Entity{}
	}
	return users, err
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, id int64) (model.Entity, error) {
	return s.store.UserByID(ctx, id)
}

// CreateUser adds an account. A taken username or email is ErrConflict.
func (s *Service) CreateUser(ctx context.Context, req types.CreateUserRequest) (model.Entity, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return model.Entity{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return model.Entity{}, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return model.Entity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return model.Entity{}, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return model.Entity{}, err
	}

	user, err := s.store.CreateUser(ctx, model.Entity{
		Username: username,
		Email:    email,
		Role:     role,
		Position: model.DefaultPosition,
	}, hash)
	if err != nil {
		return model.Entity{}, err
	}
	s.logger.Info(ctx, "user created", logger.String("username", user.Username), logger.String("role", string(user.Role)))
	return user, nil
}

// UpdateUser changes the fields set in req.
func (s *Service) UpdateUser(ctx context.Context, id int64, req types.UpdateUserRequest) (model.Entity, error) {
	user, err := s.store.UserByID(ctx, id)
	if err != nil {
		return model.Entity{}, err
	}
	if req.Email != nil {
		if user.Email, err = normalizeEmail(*req.Email); err != nil {
			return model.Entity{}, err
		}
	}
	if req.Role != nil {
		role, err := model.ParseRole(*req.Role)
		if err != nil {
			return model.Entity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if user.IsAdmin() && role != model.RoleAdmin {
			if err := s.keepOneAdmin(ctx); err != nil {
				return model.Entity{}, err
			}
		}
		user.Role = role
	}
	if req.Position != nil {
		if *req.Position < 0 {
			return model.Entity{}, fmt.Errorf("%w: position must not be negative", ErrInvalidInput)
		}
		user.Position = *req.Position
	}
	return s.store.UpdateUser(ctx, user)
}

// DeleteUser removes an account with its cells. Callers cannot delete
// themselves and the last admin is kept.
func (s *Service) DeleteUser(ctx context.Context, caller model.Principal, id int64) error {
	user, err := s.store.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Username == caller.Username {
		return fmt.Errorf("%w: cannot delete yourself", ErrConflict)
	}
	if user.IsAdmin() {
		if err := s.keepOneAdmin(ctx); err != nil {
			return err
		}
	}
	if _, err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "user deleted", logger.String("username", user.Username))
	return nil
}

// ChangePassword sets a new password. Non-admins may change only their own.
func (s *Service) ChangePassword(ctx context.Context, caller model.Principal, id int64, password string) error {
	user, err := s.store.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if !caller.Admin && caller.Username != user.Username {
		return ErrForbidden
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, id, hash)
}

func (s *Service) keepOneAdmin(ctx context.Context) error {
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return fmt.Errorf("%w: at least one admin is required", ErrConflict)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, raw)
	}
	return strings.ToLower(email), nil
}
