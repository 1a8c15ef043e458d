package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a named permission bundle with an ordered menu list
type Role struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Menus        []string  `json:"menus"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// User represents a user with an ordered set of role assignments
type User struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	RoleIDs   []uuid.UUID `json:"role_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

// UserWithRoles is the read view of a user: role ids resolved to full roles,
// in assignment order. Rebuilt on every read, never stored.
type UserWithRoles struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Roles []Role    `json:"roles"`
}

// RoleCreate is the raw payload for creating a role
type RoleCreate struct {
	Name         string   `json:"name"`
	Menus        []string `json:"menus"`
	IsSuperAdmin bool     `json:"is_super_admin"`
}

// UserCreate is the raw payload for creating a user
type UserCreate struct {
	Name    string      `json:"name"`
	RoleIDs []uuid.UUID `json:"role_ids"`
}

// CreateRoleParams contains parameters for inserting a role
type CreateRoleParams struct {
	Name         string   `json:"name"`
	Menus        []string `json:"menus"`
	IsSuperAdmin bool     `json:"is_super_admin"`
}

// CreateUserParams contains parameters for inserting a user with its role
// associations. HasSuperAdminRole tells the repository that one of RoleIDs
// resolves to a super-admin role, so it must verify no super-admin user
// exists inside the same serialization point as the insert.
type CreateUserParams struct {
	Name              string      `json:"name"`
	RoleIDs           []uuid.UUID `json:"role_ids"`
	HasSuperAdminRole bool        `json:"has_super_admin_role"`
}
