// Package access decides who may change what in the sales grid.
package access

import (
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
)

// Policy answers authorisation questions for the grid.
type Policy interface {
	// CanEdit reports whether p may write cell (entity, field) of table.
	CanEdit(p model.Principal, table sheet.TableID, entity string, field sheet.Field) bool
	// CanManageMembers reports whether p may add or remove entities and reset passwords.
	CanManageMembers(p model.Principal) bool
}

// RolePolicy lets admins edit any cell and everyone else only their own row.
type RolePolicy struct{}

// CanEdit implements Policy.
func (RolePolicy) CanEdit(p model.Principal, _ sheet.TableID, entity string, _ sheet.Field) bool {
	if p.Username == "" {
		return false
	}
	return p.Admin || p.Username == entity
}

// CanManageMembers implements Policy.
func (RolePolicy) CanManageMembers(p model.Principal) bool {
	return p.Admin && p.Username != ""
}
