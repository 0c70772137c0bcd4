// Package types contains the JSON request and response shapes shared by the
// HTTP API and its client.
package types

import (
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
)

// RequestIDHeader carries the idempotency key of a cell save.
const RequestIDHeader = "X-Request-ID"

// ArchiveSecretHeader authorises unattended weekly archiving.
const ArchiveSecretHeader = "X-SECRET-KEY"

// MeResponse is returned by GET /api/me.
type MeResponse struct {
	LoggedIn bool   `json:"logged_in"`
	User     string `json:"user,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/login.
type LoginResponse struct {
	Success bool   `json:"success"`
	User    string `json:"user,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	Message string `json:"message,omitempty"`
}

// TableResponse is returned by GET /api/data.
type TableResponse struct {
	Employees []model.Entity `json:"employees"`
	Cells     sheet.Snapshot `json:"spreadsheetData"`
}

// BulkSaveRequest is the body of POST /api/data.
type BulkSaveRequest struct {
	Cells sheet.Snapshot `json:"spreadsheetData"`
}

// CellRequest is the body of POST /api/cell.
type CellRequest struct {
	SheetType string  `json:"sheet_type"`
	Employee  string  `json:"employee"`
	Day       string  `json:"day"`
	Value     float64 `json:"value"`
}

// CellResponse acknowledges a cell save.
type CellResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// UpdateUserRequest is the body of PUT /api/users/{id}; nil fields are left unchanged.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	Position *int    `json:"position,omitempty"`
}

// ChangePasswordRequest is the body of PUT /api/users/{id}/password.
type ChangePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// SuccessResponse is a generic acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ArchiveResponse is returned by POST /api/weekly-archive.
type ArchiveResponse struct {
	Success   bool          `json:"success"`
	Table     sheet.TableID `json:"sheet_type"`
	Archived  int           `json:"archived"`
	WeekStart string        `json:"week_start"`
	WeekEnd   string        `json:"week_end"`
}

// SummaryResponse is returned by GET /api/summary.
type SummaryResponse struct {
	Year  int               `json:"year"`
	Month int               `json:"month"`
	Weeks []model.WeekTotal `json:"weeks"`
	Total float64           `json:"total"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Users          int                `json:"users"`
	Sellers        int                `json:"sellers"`
	ActiveSessions int                `json:"active_sessions"`
	GrandTotals    map[string]float64 `json:"grand_totals"`
	DedupeSize     int64              `json:"dedupe_size"`
	UptimeSeconds  float64            `json:"uptime_seconds"`
}
