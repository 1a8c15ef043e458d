package rbac

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-rbac/pkg/errors"
)

// Bootstrap role created when the service initializes against an empty
// repository. This is the only role ever flagged super-admin.
const (
	SuperAdminRoleName = "Super Administrador"
	SuperAdminMenu     = "admin"
)

// RbacService provides role and user management with permission-scoped reads.
// It holds no state of its own: every operation re-reads from the repository,
// which is the single source of truth.
type RbacService struct {
	repo RbacRepository
}

// NewRbacService creates a new RBAC service. If the repository has no roles
// yet, the super-admin role is created exactly once.
func NewRbacService(ctx context.Context, repo RbacRepository) (*RbacService, error) {
	s := &RbacService{repo: repo}

	roles, err := repo.FindRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect repository during bootstrap: %w", err)
	}
	if len(roles) == 0 {
		role, err := repo.CreateRole(ctx, CreateRoleParams{
			Name:         SuperAdminRoleName,
			Menus:        []string{SuperAdminMenu},
			IsSuperAdmin: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap super admin role: %w", err)
		}
		slog.Info("Bootstrapped super admin role", "roleID", role.ID, "name", role.Name)
	}
	return s, nil
}

// CreateRole validates and creates a role. The create path unconditionally
// forbids the super-admin flag; only the bootstrap path may set it.
func (s *RbacService) CreateRole(ctx context.Context, payload RoleCreate) (Role, error) {
	normalized, err := payload.Normalize()
	if err != nil {
		return Role{}, err
	}

	exists, err := s.repo.RoleNameExists(ctx, normalized.Name)
	if err != nil {
		return Role{}, errors.InternalWrap(err, "failed to check role name")
	}
	if exists {
		return Role{}, errors.New(errors.ErrCodeRoleNameTaken, "role name already exists")
	}

	if normalized.IsSuperAdmin {
		return Role{}, errors.New(errors.ErrCodeSuperAdminExists, "no additional super-admin roles allowed")
	}

	role, err := s.repo.CreateRole(ctx, CreateRoleParams{
		Name:  normalized.Name,
		Menus: normalized.Menus,
	})
	if err != nil {
		if stderrors.Is(err, ErrDuplicateKey) {
			return Role{}, errors.New(errors.ErrCodeRoleNameTaken, "role name already exists")
		}
		slog.Error("Failed creating role", "err", err, "name", normalized.Name)
		return Role{}, errors.InternalWrap(err, "failed to create role")
	}
	return role, nil
}

// FindRoles returns all roles ordered by name
func (s *RbacService) FindRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.FindRoles(ctx)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to find roles")
	}
	return roles, nil
}

// CreateUser validates and creates a user, enforcing the single
// super-admin-user invariant, and returns the resolved read view.
func (s *RbacService) CreateUser(ctx context.Context, payload UserCreate) (UserWithRoles, error) {
	normalized, err := payload.Normalize()
	if err != nil {
		return UserWithRoles{}, err
	}

	hasSuperAdminRole := false
	for _, roleID := range normalized.RoleIDs {
		isSuperAdmin, err := s.repo.RoleIsSuperAdmin(ctx, roleID)
		if err != nil {
			if stderrors.Is(err, ErrRoleNotFound) {
				return UserWithRoles{}, errors.New(errors.ErrCodeRoleNotFound, "role not found")
			}
			return UserWithRoles{}, errors.InternalWrap(err, "failed to resolve role")
		}
		if isSuperAdmin {
			hasSuperAdminRole = true
		}
	}

	// Friendly pre-check; the repository re-checks inside its write
	// serialization point, which is the authoritative one.
	if hasSuperAdminRole {
		exists, err := s.repo.AnySuperAdminUserExists(ctx)
		if err != nil {
			return UserWithRoles{}, errors.InternalWrap(err, "failed to check for super admin user")
		}
		if exists {
			return UserWithRoles{}, errors.New(errors.ErrCodeSuperAdminExists, "a super-admin user already exists")
		}
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Name:              normalized.Name,
		RoleIDs:           normalized.RoleIDs,
		HasSuperAdminRole: hasSuperAdminRole,
	})
	if err != nil {
		switch {
		case stderrors.Is(err, ErrSuperAdminUserExists):
			return UserWithRoles{}, errors.New(errors.ErrCodeSuperAdminExists, "a super-admin user already exists")
		case stderrors.Is(err, ErrRoleNotFound):
			return UserWithRoles{}, errors.New(errors.ErrCodeRoleNotFound, "role not found")
		default:
			slog.Error("Failed creating user", "err", err, "name", normalized.Name)
			return UserWithRoles{}, errors.InternalWrap(err, "failed to create user")
		}
	}

	view, err := s.repo.GetUserWithRoles(ctx, user.ID)
	if err != nil {
		return UserWithRoles{}, errors.InternalWrap(err, "failed to read created user")
	}
	return view, nil
}

// GetUser returns the read view of userID, permission-scoped: a requester may
// always view themselves; viewing anyone else requires the super-admin role.
func (s *RbacService) GetUser(ctx context.Context, requesterID, userID uuid.UUID) (UserWithRoles, error) {
	if requesterID != userID {
		isSuperAdmin, err := s.requesterIsSuperAdmin(ctx, requesterID)
		if err != nil {
			return UserWithRoles{}, err
		}
		if !isSuperAdmin {
			return UserWithRoles{}, errors.New(errors.ErrCodeInsufficientPermissions, "not authorized to view this user")
		}
	}

	view, err := s.repo.GetUserWithRoles(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrUserNotFound) {
			return UserWithRoles{}, errors.New(errors.ErrCodeUserNotFound, "user not found")
		}
		return UserWithRoles{}, errors.InternalWrap(err, "failed to get user")
	}
	return view, nil
}

// FindUsers returns every user for a super-admin requester, and only the
// requester's own read view otherwise.
func (s *RbacService) FindUsers(ctx context.Context, requesterID uuid.UUID) ([]UserWithRoles, error) {
	isSuperAdmin, err := s.requesterIsSuperAdmin(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	if isSuperAdmin {
		users, err := s.repo.FindUsersWithRoles(ctx)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to find users")
		}
		return users, nil
	}

	requester, err := s.repo.GetUserWithRoles(ctx, requesterID)
	if err != nil {
		if stderrors.Is(err, ErrUserNotFound) {
			return nil, errors.New(errors.ErrCodeUserNotFound, "user not found")
		}
		return nil, errors.InternalWrap(err, "failed to get requester")
	}
	return []UserWithRoles{requester}, nil
}

// ListMyMenus returns the requester's aggregated menu list, in role
// assignment order then menu declaration order, duplicates removed keeping
// the first occurrence.
func (s *RbacService) ListMyMenus(ctx context.Context, requesterID uuid.UUID) ([]string, error) {
	menus, err := s.repo.MenusForUser(ctx, requesterID)
	if err != nil {
		if stderrors.Is(err, ErrUserNotFound) {
			return nil, errors.New(errors.ErrCodeUserNotFound, "user not found")
		}
		return nil, errors.InternalWrap(err, "failed to list menus")
	}
	return menus, nil
}

// requesterIsSuperAdmin treats an unknown requester as not super-admin; the
// caller decides whether that ends in a permission or a not-found failure.
func (s *RbacService) requesterIsSuperAdmin(ctx context.Context, requesterID uuid.UUID) (bool, error) {
	isSuperAdmin, err := s.repo.UserHasSuperAdminRole(ctx, requesterID)
	if err != nil {
		if stderrors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, errors.InternalWrap(err, "failed to check requester permissions")
	}
	return isSuperAdmin, nil
}
