package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

const defaultPoolSize = 4

// SQLiteStore implements Store on a pooled sqlite database.
type SQLiteStore struct {
	pool     *sqlitex.Pool
	path     string
	poolSize int
	logger   logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating when needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("repository: path is required")
	}
	s := &SQLiteStore{
		path:     path,
		poolSize: defaultPoolSize,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    s.poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", path, err)
	}
	s.pool = pool

	if err := s.withConn(ctx, "migrate", func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, schema, nil)
	}); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("repository: apply schema: %w", err)
	}

	s.logger.Info(ctx, "sqlite store opened", logger.String("path", path), logger.Int("pool_size", s.poolSize))
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Close releases every pooled connection.
func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("repository: close %s: %w", s.path, err)
	}
	return nil
}

func (s *SQLiteStore) withConn(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQuery(op, float64(time.Since(start).Microseconds())/1000)
	}()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("%s: take connection: %w", op, err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) error {
	return s.withConn(ctx, op, func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("%s: begin: %w", op, err)
		}
		defer endFn(&err)
		return fn(conn)
	})
}

func isUnique(err error) bool {
	return sqlite.ErrCode(err) == sqlite.ResultConstraintUnique
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const userColumns = "id, username, COALESCE(email, ''), role, position"

func scanUser(stmt *sqlite.Stmt) model.Entity {
	return model.Entity{
		ID:       stmt.ColumnInt64(0),
		Username: stmt.ColumnText(1),
		Email:    stmt.ColumnText(2),
		Role:     model.Role(stmt.ColumnText(3)),
		Position: stmt.ColumnInt(4),
	}
}

// CreateUser inserts an account. Username and email must be unique.
func (s *SQLiteStore) CreateUser(ctx context.Context, e model.Entity, passwordHash string) (model.Entity, error) {
	if e.Position == 0 {
		e.Position = model.DefaultPosition
	}
	err := s.withConn(ctx, "create_user", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT INTO users (username, email, password_hash, role, position, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{e.Username, nullable(e.Email), passwordHash, string(e.Role), e.Position, time.Now().Unix()}})
		if err != nil {
			if isUnique(err) {
				return fmt.Errorf("%w: user %q", ErrConflict, e.Username)
			}
			return err
		}
		e.ID = conn.LastInsertRowID()
		return nil
	})
	if err != nil {
		return model.Entity{}, err
	}
	return e, nil
}

// UserByID loads one account.
func (s *SQLiteStore) UserByID(ctx context.Context, id int64) (model.Entity, error) {
	var (
		out   model.Entity
		found bool
	)
	err := s.withConn(ctx, "user_by_id", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+userColumns+` FROM users WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out, found = scanUser(stmt), true
				return nil
			},
		})
	})
	if err != nil {
		return model.Entity{}, err
	}
	if !found {
		return model.Entity{}, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return out, nil
}

// Credentials returns the account named username and its password hash.
func (s *SQLiteStore) Credentials(ctx context.Context, username string) (model.Entity, string, error) {
	var (
		out   model.Entity
		hash  string
		found bool
	)
	err := s.withConn(ctx, "credentials", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+userColumns+`, password_hash FROM users WHERE username = ?`, &sqlitex.ExecOptions{
			Args: []any{username},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out, hash, found = scanUser(stmt), stmt.ColumnText(5), true
				return nil
			},
		})
	})
	if err != nil {
		return model.Entity{}, "", err
	}
	if !found {
		return model.Entity{}, "", fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	return out, hash, nil
}

func (s *SQLiteStore) listUsers(ctx context.Context, op, where string, args ...any) ([]model.Entity, error) {
	out := []model.Entity{}
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+userColumns+` FROM users `+where+` ORDER BY position, id`, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanUser(stmt))
				return nil
			},
		})
	})
	return out, err
}

// ListUsers returns every account.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.Entity, error) {
	return s.listUsers(ctx, "list_users", "")
}

// ListSellers returns the accounts that are rows of the grid.
func (s *SQLiteStore) ListSellers(ctx context.Context) ([]model.Entity, error) {
	return s.listUsers(ctx, "list_sellers", "WHERE role = ?", string(model.RoleUser))
}

// UpdateUser writes email, role and position of an existing account.
func (s *SQLiteStore) UpdateUser(ctx context.Context, e model.Entity) (model.Entity, error) {
	err := s.withConn(ctx, "update_user", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `UPDATE users SET email = ?, role = ?, position = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{nullable(e.Email), string(e.Role), e.Position, e.ID}})
		if err != nil {
			if isUnique(err) {
				return fmt.Errorf("%w: email %q", ErrConflict, e.Email)
			}
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: user %d", ErrNotFound, e.ID)
		}
		return nil
	})
	if err != nil {
		return model.Entity{}, err
	}
	return s.UserByID(ctx, e.ID)
}

// SetPasswordHash replaces the stored hash of an account.
func (s *SQLiteStore) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return s.withConn(ctx, "set_password", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `UPDATE users SET password_hash = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{hash, id}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil
	})
}

// DeleteUser removes an account together with its cells and sessions.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) (model.Entity, error) {
	var (
		out   model.Entity
		found bool
	)
	err := s.withTx(ctx, "delete_user", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `SELECT `+userColumns+` FROM users WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out, found = scanUser(stmt), true
				return nil
			},
		}); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		if err := sqlitex.Execute(conn, `DELETE FROM cells WHERE username = ?`,
			&sqlitex.ExecOptions{Args: []any{out.Username}}); err != nil {
			return err
		}
		return sqlitex.Execute(conn, `DELETE FROM users WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}})
	})
	if err != nil {
		return model.Entity{}, err
	}
	return out, nil
}

// CountAdmins returns the number of admin accounts.
func (s *SQLiteStore) CountAdmins(ctx context.Context) (int, error) {
	n := 0
	err := s.withConn(ctx, "count_admins", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT COUNT(*) FROM users WHERE role = ?`, &sqlitex.ExecOptions{
			Args: []any{string(model.RoleAdmin)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				n = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	return n, err
}

// CreateSession stores a login.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess model.Session) error {
	return s.withConn(ctx, "create_session", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{sess.Token, sess.UserID, sess.CreatedAt.Unix(), sess.ExpiresAt.Unix()}})
	})
}

// SessionUser resolves a live session and its account.
func (s *SQLiteStore) SessionUser(ctx context.Context, token string, now time.Time) (model.Session, model.Entity, error) {
	var (
		sess  model.Session
		user  model.Entity
		found bool
	)
	err := s.withConn(ctx, "session_user", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT u.id, u.username, COALESCE(u.email, ''), u.role, u.position, s.token, s.created_at, s.expires_at
			FROM sessions s JOIN users u ON u.id = s.user_id
			WHERE s.token = ? AND s.expires_at > ?`, &sqlitex.ExecOptions{
			Args: []any{token, now.Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = scanUser(stmt)
				sess = model.Session{
					Token:     stmt.ColumnText(5),
					UserID:    user.ID,
					CreatedAt: time.Unix(stmt.ColumnInt64(6), 0),
					ExpiresAt: time.Unix(stmt.ColumnInt64(7), 0),
				}
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return model.Session{}, model.Entity{}, err
	}
	if !found {
		return model.Session{}, model.Entity{}, fmt.Errorf("%w: session", ErrNotFound)
	}
	return sess, user, nil
}

// DeleteSession removes a login. Unknown tokens are ignored.
func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	return s.withConn(ctx, "delete_session", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `DELETE FROM sessions WHERE token = ?`, &sqlitex.ExecOptions{Args: []any{token}})
	})
}

// PurgeSessions deletes sessions expired at now and returns how many.
func (s *SQLiteStore) PurgeSessions(ctx context.Context, now time.Time) (int, error) {
	n := 0
	err := s.withConn(ctx, "purge_sessions", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM sessions WHERE expires_at <= ?`,
			&sqlitex.ExecOptions{Args: []any{now.Unix()}}); err != nil {
			return err
		}
		n = conn.Changes()
		return nil
	})
	return n, err
}

// CountSessions returns the number of sessions alive at now.
func (s *SQLiteStore) CountSessions(ctx context.Context, now time.Time) (int, error) {
	n := 0
	err := s.withConn(ctx, "count_sessions", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT COUNT(*) FROM sessions WHERE expires_at > ?`, &sqlitex.ExecOptions{
			Args: []any{now.Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				n = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	return n, err
}

// LoadCells returns every stored cell of table.
func (s *SQLiteStore) LoadCells(ctx context.Context, table sheet.TableID) (sheet.Snapshot, error) {
	snap := sheet.Snapshot{}
	err := s.withConn(ctx, "load_cells", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT username, field, value FROM cells WHERE sheet = ?`, &sqlitex.ExecOptions{
			Args: []any{string(table)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				snap.Set(stmt.ColumnText(0), sheet.Field(stmt.ColumnText(1)), stmt.ColumnFloat(2))
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// upsertCell writes a cell only for an existing seller, so a save that
// arrives after the seller was deleted cannot recreate their row.
const upsertCell = `
	INSERT INTO cells (sheet, username, field, value, updated_at)
	SELECT ?, ?, ?, ?, ?
	WHERE EXISTS (SELECT 1 FROM users WHERE username = ? AND role = ?)
	ON CONFLICT (sheet, username, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func upsertArgs(table sheet.TableID, entity string, f sheet.Field, v float64, now time.Time) []any {
	return []any{string(table), entity, string(f), v, now.Unix(), entity, string(model.RoleUser)}
}

// SaveCell writes a single cell, last write wins. It returns ErrNotFound
// when entity is not a seller.
func (s *SQLiteStore) SaveCell(ctx context.Context, table sheet.TableID, c sheet.Cell, now time.Time) error {
	return s.withConn(ctx, "save_cell", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, upsertCell, &sqlitex.ExecOptions{
			Args: upsertArgs(table, c.Entity, c.Field, c.Value, now),
		}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: seller %q", ErrNotFound, c.Entity)
		}
		return nil
	})
}

// SaveCells writes every known field of every row in snap in one
// transaction. Rows of unknown sellers are skipped and not counted.
func (s *SQLiteStore) SaveCells(ctx context.Context, table sheet.TableID, snap sheet.Snapshot, now time.Time) (int, error) {
	n := 0
	err := s.withTx(ctx, "save_cells", func(conn *sqlite.Conn) error {
		for entity, row := range snap {
			for _, f := range sheet.Fields() {
				v, ok := row[f]
				if !ok {
					continue
				}
				if err := sqlitex.Execute(conn, upsertCell, &sqlitex.ExecOptions{
					Args: upsertArgs(table, entity, f, v, now),
				}); err != nil {
					return err
				}
				n += conn.Changes()
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ArchiveWeek stores per-seller totals of table and resets its cells to zero.
func (s *SQLiteStore) ArchiveWeek(ctx context.Context, table sheet.TableID, weekStart, weekEnd, now time.Time) ([]model.WeeklyArchive, error) {
	var out []model.WeeklyArchive
	err := s.withTx(ctx, "archive_week", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			SELECT u.username, COALESCE(SUM(c.value), 0)
			FROM users u LEFT JOIN cells c ON c.username = u.username AND c.sheet = ?
			WHERE u.role = ?
			GROUP BY u.id
			ORDER BY u.position, u.id`, &sqlitex.ExecOptions{
			Args: []any{string(table), string(model.RoleUser)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, model.WeeklyArchive{
					Username:  stmt.ColumnText(0),
					Table:     table,
					WeekStart: weekStart,
					WeekEnd:   weekEnd,
					Total:     stmt.ColumnFloat(1),
					CreatedAt: now,
				})
				return nil
			},
		})
		if err != nil {
			return err
		}

		for i := range out {
			a := &out[i]
			if err := sqlitex.Execute(conn, `
				INSERT INTO weekly_archive (username, sheet, week_start, week_end, total, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
				Args: []any{a.Username, string(table), weekStart.Format(dayLayout), weekEnd.Format(dayLayout), a.Total, now.Unix()},
			}); err != nil {
				return err
			}
			a.ID = conn.LastInsertRowID()
		}

		return sqlitex.Execute(conn, `UPDATE cells SET value = 0, updated_at = ? WHERE sheet = ?`,
			&sqlitex.ExecOptions{Args: []any{now.Unix(), string(table)}})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WeeklyHistory lists archived weeks, newest first.
func (s *SQLiteStore) WeeklyHistory(ctx context.Context, table sheet.TableID) ([]model.WeeklyArchive, error) {
	query := `SELECT id, username, sheet, week_start, week_end, total, created_at FROM weekly_archive`
	var args []any
	if table != "" {
		query += ` WHERE sheet = ?`
		args = append(args, string(table))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	out := []model.WeeklyArchive{}
	err := s.withConn(ctx, "weekly_history", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				start, err := time.ParseInLocation(dayLayout, stmt.ColumnText(3), time.Local)
				if err != nil {
					return err
				}
				end, err := time.ParseInLocation(dayLayout, stmt.ColumnText(4), time.Local)
				if err != nil {
					return err
				}
				out = append(out, model.WeeklyArchive{
					ID:        stmt.ColumnInt64(0),
					Username:  stmt.ColumnText(1),
					Table:     sheet.TableID(stmt.ColumnText(2)),
					WeekStart: start,
					WeekEnd:   end,
					Total:     stmt.ColumnFloat(5),
					CreatedAt: time.Unix(stmt.ColumnInt64(6), 0),
				})
				return nil
			},
		})
	})
	return out, err
}

// RecordDailySales snapshots field f of table for every seller. Running it
// again for the same day overwrites the earlier values.
func (s *SQLiteStore) RecordDailySales(ctx context.Context, day time.Time, table sheet.TableID, f sheet.Field) (int, error) {
	n := 0
	err := s.withConn(ctx, "record_daily_sales", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `
			INSERT INTO daily_sales (day, sheet, username, value)
			SELECT ?, ?, u.username, COALESCE(c.value, 0)
			FROM users u LEFT JOIN cells c ON c.username = u.username AND c.sheet = ? AND c.field = ?
			WHERE u.role = ?
			ON CONFLICT (day, sheet, username) DO UPDATE SET value = excluded.value`, &sqlitex.ExecOptions{
			Args: []any{day.Format(dayLayout), string(table), string(table), string(f), string(model.RoleUser)},
		}); err != nil {
			return err
		}
		n = conn.Changes()
		return nil
	})
	return n, err
}

// DailySales lists captured days between from and to inclusive.
func (s *SQLiteStore) DailySales(ctx context.Context, from, to time.Time) ([]model.DailySales, error) {
	out := []model.DailySales{}
	err := s.withConn(ctx, "daily_sales", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT day, sheet, username, value FROM daily_sales
			WHERE day BETWEEN ? AND ?
			ORDER BY day, sheet, username`, &sqlitex.ExecOptions{
			Args: []any{from.Format(dayLayout), to.Format(dayLayout)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				day, err := time.ParseInLocation(dayLayout, stmt.ColumnText(0), time.Local)
				if err != nil {
					return err
				}
				out = append(out, model.DailySales{
					Day:      day,
					Table:    sheet.TableID(stmt.ColumnText(1)),
					Username: strings.TrimSpace(stmt.ColumnText(2)),
					Value:    stmt.ColumnFloat(3),
				})
				return nil
			},
		})
	})
	return out, err
}
