package syncclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/internal/syncclient/notice"
	"github.com/okian/salesgrid/pkg/metrics"
)

// AddEntity creates an account. A seller account becomes the last row of
// every loaded table, starting at zero, even if it was removed earlier.
func (s *Session) AddEntity(ctx context.Context, ne NewEntity) (model.Entity, error) {
	e, err := s.addEntity(ctx, ne)
	if err != nil {
		metrics.RecordMembershipEvent("add", metrics.OutcomeFailed)
		s.postError("Erro ao criar usuário", err)
		return model.Entity{}, err
	}
	metrics.RecordMembershipEvent("add", metrics.OutcomeOK)
	s.notices.Post(notice.Info, fmt.Sprintf("Usuário %s criado", e.Username))
	s.changed(s.Current())
	return e, nil
}

func (s *Session) addEntity(ctx context.Context, ne NewEntity) (model.Entity, error) {
	if err := s.requireManage(); err != nil {
		return model.Entity{}, err
	}
	ne.Username = strings.TrimSpace(ne.Username)
	if ne.Username == "" {
		return model.Entity{}, &ValidationError{Field: "username", Reason: "required"}
	}
	if ne.Password == "" {
		return model.Entity{}, &ValidationError{Field: "password", Reason: "required"}
	}
	role := ne.Role
	if role == "" {
		role = model.RoleUser
	}

	e, err := s.client.CreateUser(ctx, types.CreateUserRequest{
		Username: ne.Username,
		Password: ne.Password,
		Email:    strings.TrimSpace(ne.Email),
		Role:     string(role),
	})
	if err != nil {
		return model.Entity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Role == model.RoleUser {
		for _, t := range s.tables {
			t.AddEntity(e)
		}
	}
	return e, nil
}

// RemoveEntity deletes the account shown under key. Once the server
// confirms, the row leaves every table for good: later refreshes that still
// list it do not bring it back.
func (s *Session) RemoveEntity(ctx context.Context, key string) error {
	if err := s.removeEntity(ctx, key); err != nil {
		metrics.RecordMembershipEvent("remove", metrics.OutcomeFailed)
		s.postError("Erro ao remover usuário", err)
		return err
	}
	metrics.RecordMembershipEvent("remove", metrics.OutcomeOK)
	s.notices.Post(notice.Info, fmt.Sprintf("Usuário %s removido", key))
	s.changed(s.Current())
	return nil
}

func (s *Session) removeEntity(ctx context.Context, key string) error {
	if err := s.requireManage(); err != nil {
		return err
	}
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if err := s.client.DeleteUser(ctx, e.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		t.RemoveEntity(key)
	}
	s.updatePendingLocked()
	return nil
}

// ChangePassword resets the password of the account shown under key.
func (s *Session) ChangePassword(ctx context.Context, key, newPassword string) error {
	err := s.changePassword(ctx, key, newPassword)
	if err != nil {
		metrics.RecordMembershipEvent("password", metrics.OutcomeFailed)
		s.postError("Erro ao alterar senha", err)
		return err
	}
	metrics.RecordMembershipEvent("password", metrics.OutcomeOK)
	s.notices.Post(notice.Info, fmt.Sprintf("Senha de %s alterada", key))
	return nil
}

func (s *Session) changePassword(ctx context.Context, key, newPassword string) error {
	if err := s.requireManage(); err != nil {
		return err
	}
	if newPassword == "" {
		return &ValidationError{Field: "password", Reason: "required"}
	}
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	return s.client.ChangePassword(ctx, e.ID, newPassword)
}

func (s *Session) requireManage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if !s.policy.CanManageMembers(s.principal) {
		return &ValidationError{Field: "user", Reason: "admin only", Err: ErrForbidden}
	}
	return nil
}

// lookup resolves a displayed key to its entity in any loaded table.
func (s *Session) lookup(key string) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		if e, ok := t.Entity(key); ok {
			return e, nil
		}
	}
	return model.Entity{}, &ValidationError{
		Field:  "entity",
		Reason: fmt.Sprintf("%q is not displayed", key),
		Err:    grid.ErrUnknownEntity,
	}
}
