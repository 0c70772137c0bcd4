// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/salesgrid/internal/domain/sheet"
)

// Role of an account.
type Role string

// Known roles. Only RoleUser accounts are rows of the sales grid.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// DefaultPosition is used for entities without an explicit TV position.
const DefaultPosition = 999

// ParseRole validates a role name. Empty defaults to RoleUser.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Entity is an account and, for role user, a row of the grid. ID is
// assigned by the server; Username is the key cells are stored under.
type Entity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
	Position int    `json:"position"`
}

// IsAdmin reports whether the entity has the admin role.
func (e Entity) IsAdmin() bool { return e.Role == RoleAdmin }

// Principal is the identity an access decision is made for.
func (e Entity) Principal() Principal {
	return Principal{Username: e.Username, Admin: e.IsAdmin()}
}

// Principal identifies the caller of an operation.
type Principal struct {
	Username string
	Admin    bool
}

// Session is a server-side login.
type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// WeeklyArchive is one seller's total for an archived week.
type WeeklyArchive struct {
	ID        int64         `json:"id"`
	Username  string        `json:"username"`
	Table     sheet.TableID `json:"sheet_type"`
	WeekStart time.Time     `json:"week_start"`
	WeekEnd   time.Time     `json:"week_end"`
	Total     float64       `json:"total"`
	CreatedAt time.Time     `json:"created_at"`
}

// DailySales is one seller's value for a day, captured by the scheduler.
type DailySales struct {
	Day      time.Time     `json:"day"`
	Table    sheet.TableID `json:"sheet_type"`
	Username string        `json:"username"`
	Value    float64       `json:"value"`
}

// WeekTotal aggregates daily sales for one ISO week.
type WeekTotal struct {
	Year  int       `json:"year"`
	Week  int       `json:"week"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Total float64   `json:"total"`
}

// WeekBounds returns the Monday and Friday (date only, in t's location) of t's week.
func WeekBounds(t time.Time) (start, end time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	start = day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 4)
}
