package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors returned by repositories. The service translates these into
// the structured error taxonomy in pkg/errors.
var (
	ErrRoleNotFound         = errors.New("role not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrSuperAdminUserExists = errors.New("a super admin user already exists")
)

// RbacRepository defines the interface for role and user storage operations.
// Implementations enforce no domain invariants beyond referential existence
// and the serialization guarantee documented on CreateUser; all other
// invariant logic lives in RbacService.
type RbacRepository interface {
	// Role operations
	CreateRole(ctx context.Context, params CreateRoleParams) (Role, error)
	FindRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	RoleNameExists(ctx context.Context, name string) (bool, error)
	RoleIsSuperAdmin(ctx context.Context, id uuid.UUID) (bool, error)

	// User operations. CreateUser inserts the user and its ordered role
	// associations atomically: readers never observe a user with partial
	// associations. When params.HasSuperAdminRole is set, the repository
	// verifies that no super-admin user exists within the same write
	// serialization point as the insert, returning ErrSuperAdminUserExists
	// otherwise. Unknown role ids abort the whole insert with
	// ErrRoleNotFound.
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetUserWithRoles(ctx context.Context, id uuid.UUID) (UserWithRoles, error)
	FindUsersWithRoles(ctx context.Context) ([]UserWithRoles, error)
	UserHasSuperAdminRole(ctx context.Context, id uuid.UUID) (bool, error)
	AnySuperAdminUserExists(ctx context.Context) (bool, error)

	// MenusForUser returns the union of all menus across the user's roles,
	// in role order then menu order, first occurrence wins.
	MenusForUser(ctx context.Context, id uuid.UUID) ([]string, error)

	// Maintenance operations. LoadRoles is a trusted bulk load that bypasses
	// create-path validation; Reset clears all roles, users and associations.
	LoadRoles(ctx context.Context, roles []Role) error
	Reset(ctx context.Context) error
}

// dedupeMenus collapses duplicate menu entries keeping the first occurrence.
// Shared by both repository implementations so aggregation semantics cannot
// drift between backends.
func dedupeMenus(menus []string) []string {
	seen := make(map[string]struct{}, len(menus))
	ordered := make([]string, 0, len(menus))
	for _, menu := range menus {
		if _, ok := seen[menu]; ok {
			continue
		}
		seen[menu] = struct{}{}
		ordered = append(ordered, menu)
	}
	return ordered
}
