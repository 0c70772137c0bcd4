package syncclient

import (
	"context"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
)

// SessionBackend authenticates the client.
type SessionBackend interface {
	Login(ctx context.Context, username, password string) (types.LoginResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (types.MeResponse, error)
}

// TableService reads and writes sheet data.
type TableService interface {
	FetchTable(ctx context.Context, table sheet.TableID) (types.TableResponse, error)
	// SaveCell writes one cell. requestID is stable across retries of one edit.
	SaveCell(ctx context.Context, table sheet.TableID, c sheet.Cell, requestID string) (types.CellResponse, error)
}

// UserService manages accounts.
type UserService interface {
	CreateUser(ctx context.Context, req types.CreateUserRequest) (model.Entity, error)
	DeleteUser(ctx context.Context, id int64) error
	ChangePassword(ctx context.Context, id int64, newPassword string) error
}

// Client is everything a Session talks to.
type Client interface {
	SessionBackend
	TableService
	UserService
}

// NewEntity describes an account to create.
type NewEntity struct {
	Username string
	Password string
	Email    string
	Role     model.Role
}
