package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// Login checks the credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (model.Session, model.Entity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		metrics.RecordLogin("invalid")
		return model.Session{}, model.Entity{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	user, hash, err := s.store.Credentials(ctx, username)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordLogin("unauthorized")
		return model.Session{}, model.Entity{}, ErrUnauthorized
	}
	if err != nil {
		metrics.RecordLogin("error")
		return model.Session{}, model.Entity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		metrics.RecordLogin("unauthorized")
		return model.Session{}, model.Entity{}, ErrUnauthorized
	}

	now := s.now()
	sess := model.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		metrics.RecordLogin("error")
		return model.Session{}, model.Entity{}, err
	}
	metrics.RecordLogin("ok")
	s.logger.Info(ctx, "login", logger.String("username", user.Username), logger.Bool("admin", user.IsAdmin()))
	return sess, user, nil
}

// Authenticate resolves a session token to its account.
func (s *Service) Authenticate(ctx context.Context, token string) (model.Entity, error) {
	if token == "" {
		return model.Entity{}, ErrUnauthorized
	}
	_, user, err := s.store.SessionUser(ctx, token, s.now())
	if errors.Is(err, ErrNotFound) {
		return model.Entity{}, ErrUnauthorized
	}
	return user, err
}

// Logout ends a session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
