// Package repository persists accounts, sessions, sheet cells and sales
// history.
package repository

import (
	"context"
	"time"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
)

// Store is the persistence contract used by the application service.
type Store interface {
	CreateUser(ctx context.Context, e model.Entity, passwordHash string) (model.Entity, error)
	UserByID(ctx context.Context, id int64) (model.Entity, error)
	// Credentials returns the account and its password hash.
	Credentials(ctx context.Context, username string) (model.Entity, string, error)
	ListUsers(ctx context.Context) ([]model.Entity, error)
	// ListSellers returns role=user accounts ordered by position, then id.
	ListSellers(ctx context.Context) ([]model.Entity, error)
	UpdateUser(ctx context.Context, e model.Entity) (model.Entity, error)
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	// DeleteUser removes the account with its cells and sessions.
	DeleteUser(ctx context.Context, id int64) (model.Entity, error)
	CountAdmins(ctx context.Context) (int, error)

	CreateSession(ctx context.Context, s model.Session) error
	// SessionUser resolves a token that has not expired at now.
	SessionUser(ctx context.Context, token string, now time.Time) (model.Session, model.Entity, error)
	DeleteSession(ctx context.Context, token string) error
	PurgeSessions(ctx context.Context, now time.Time) (int, error)
	CountSessions(ctx context.Context, now time.Time) (int, error)

	LoadCells(ctx context.Context, table sheet.TableID) (sheet.Snapshot, error)
	// SaveCell returns ErrNotFound when c.Entity is not a seller.
	SaveCell(ctx context.Context, table sheet.TableID, c sheet.Cell, now time.Time) error
	// SaveCells skips rows of unknown sellers and returns the cells written.
	SaveCells(ctx context.Context, table sheet.TableID, snap sheet.Snapshot, now time.Time) (int, error)

	// ArchiveWeek stores every seller's weekly total and zeroes the table, atomically.
	ArchiveWeek(ctx context.Context, table sheet.TableID, weekStart, weekEnd, now time.Time) ([]model.WeeklyArchive, error)
	// WeeklyHistory lists archives newest first; an empty table lists all.
	WeeklyHistory(ctx context.Context, table sheet.TableID) ([]model.WeeklyArchive, error)

	// RecordDailySales copies field f of every seller into the daily history for day.
	RecordDailySales(ctx context.Context, day time.Time, table sheet.TableID, f sheet.Field) (int, error)
	DailySales(ctx context.Context, from, to time.Time) ([]model.DailySales, error)

	Close() error
}
