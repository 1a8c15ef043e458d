package rbac

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRbacRepository implements RbacRepository using in-memory storage.
// A single RWMutex serializes writes, so the super-admin existence check and
// the user insert happen under one critical section.
type InMemoryRbacRepository struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]Role
	users map[uuid.UUID]User
}

// NewInMemoryRbacRepository creates a new in-memory RBAC repository
func NewInMemoryRbacRepository() *InMemoryRbacRepository {
	return &InMemoryRbacRepository{
		roles: make(map[uuid.UUID]Role),
		users: make(map[uuid.UUID]User),
	}
}

// CreateRole creates a new role with a fresh id
func (r *InMemoryRbacRepository) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	if _, ok := r.roles[id]; ok {
		return Role{}, ErrDuplicateKey
	}

	role := Role{
		ID:           id,
		Name:         params.Name,
		Menus:        append([]string(nil), params.Menus...),
		IsSuperAdmin: params.IsSuperAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	r.roles[id] = role
	return copyRole(role), nil
}

// FindRoles returns all roles ordered by name, case-insensitive ascending
func (r *InMemoryRbacRepository) FindRoles(ctx context.Context) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, copyRole(role))
	}
	sort.Slice(roles, func(i, j int) bool {
		ni, nj := strings.ToLower(roles[i].Name), strings.ToLower(roles[j].Name)
		if ni != nj {
			return ni < nj
		}
		return roles[i].ID.String() < roles[j].ID.String()
	})
	return roles, nil
}

// GetRole retrieves a role by id
func (r *InMemoryRbacRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return copyRole(role), nil
}

// RoleNameExists reports whether any role has the given name, case-insensitive
func (r *InMemoryRbacRepository) RoleNameExists(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(name)
	for _, role := range r.roles {
		if strings.ToLower(role.Name) == lower {
			return true, nil
		}
	}
	return false, nil
}

// RoleIsSuperAdmin reports whether the role carries the super-admin flag
func (r *InMemoryRbacRepository) RoleIsSuperAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return false, ErrRoleNotFound
	}
	return role.IsSuperAdmin, nil
}

// CreateUser creates a new user with its ordered role associations. The
// write lock is held across the super-admin existence check and the insert,
// which is the serialization point that keeps two concurrent super-admin
// assignments from both succeeding.
func (r *InMemoryRbacRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, roleID := range params.RoleIDs {
		if _, ok := r.roles[roleID]; !ok {
			return User{}, ErrRoleNotFound
		}
	}

	if params.HasSuperAdminRole && r.anySuperAdminUserLocked() {
		return User{}, ErrSuperAdminUserExists
	}

	id := uuid.New()
	if _, ok := r.users[id]; ok {
		return User{}, ErrDuplicateKey
	}

	user := User{
		ID:        id,
		Name:      params.Name,
		RoleIDs:   append([]uuid.UUID(nil), params.RoleIDs...),
		CreatedAt: time.Now().UTC(),
	}
	r.users[id] = user
	return copyUser(user), nil
}

// GetUser retrieves a user by id
func (r *InMemoryRbacRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetUserWithRoles retrieves a user with roles resolved in assignment order
func (r *InMemoryRbacRepository) GetUserWithRoles(ctx context.Context, id uuid.UUID) (UserWithRoles, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return UserWithRoles{}, ErrUserNotFound
	}
	return r.buildUserWithRolesLocked(user), nil
}

// FindUsersWithRoles returns all users ordered by name, each with roles
// resolved in assignment order
func (r *InMemoryRbacRepository) FindUsersWithRoles(ctx context.Context) ([]UserWithRoles, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]UserWithRoles, 0, len(r.users))
	for _, user := range r.users {
		result = append(result, r.buildUserWithRolesLocked(user))
	}
	sort.Slice(result, func(i, j int) bool {
		ni, nj := strings.ToLower(result[i].Name), strings.ToLower(result[j].Name)
		if ni != nj {
			return ni < nj
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// UserHasSuperAdminRole reports whether any of the user's roles is flagged
// super-admin
func (r *InMemoryRbacRepository) UserHasSuperAdminRole(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return false, ErrUserNotFound
	}
	for _, roleID := range user.RoleIDs {
		if role, ok := r.roles[roleID]; ok && role.IsSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}

// AnySuperAdminUserExists reports whether some existing user holds a
// super-admin role, system-wide
func (r *InMemoryRbacRepository) AnySuperAdminUserExists(ctx context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.anySuperAdminUserLocked(), nil
}

// MenusForUser aggregates the user's menus in role order then menu order,
// first occurrence wins
func (r *InMemoryRbacRepository) MenusForUser(ctx context.Context, id uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	var menus []string
	for _, roleID := range user.RoleIDs {
		if role, ok := r.roles[roleID]; ok {
			menus = append(menus, role.Menus...)
		}
	}
	return dedupeMenus(menus), nil
}

// LoadRoles bulk-loads roles as given, ids included. Trusted maintenance
// path: no validation, no fresh ids.
func (r *InMemoryRbacRepository) LoadRoles(ctx context.Context, roles []Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, role := range roles {
		r.roles[role.ID] = copyRole(role)
	}
	return nil
}

// Reset clears all roles, users and associations
func (r *InMemoryRbacRepository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roles = make(map[uuid.UUID]Role)
	r.users = make(map[uuid.UUID]User)
	return nil
}

// anySuperAdminUserLocked must be called with at least a read lock held
func (r *InMemoryRbacRepository) anySuperAdminUserLocked() bool {
	for _, user := range r.users {
		for _, roleID := range user.RoleIDs {
			if role, ok := r.roles[roleID]; ok && role.IsSuperAdmin {
				return true
			}
		}
	}
	return false
}

// buildUserWithRolesLocked must be called with at least a read lock held
func (r *InMemoryRbacRepository) buildUserWithRolesLocked(user User) UserWithRoles {
	roles := make([]Role, 0, len(user.RoleIDs))
	for _, roleID := range user.RoleIDs {
		if role, ok := r.roles[roleID]; ok {
			roles = append(roles, copyRole(role))
		}
	}
	return UserWithRoles{
		ID:    user.ID,
		Name:  user.Name,
		Roles: roles,
	}
}

// copyRole returns a copy that does not alias the stored menu slice
func copyRole(role Role) Role {
	role.Menus = append([]string(nil), role.Menus...)
	return role
}

// copyUser returns a copy that does not alias the stored role id slice
func copyUser(user User) User {
	user.RoleIDs = append([]uuid.UUID(nil), user.RoleIDs...)
	return user
}
