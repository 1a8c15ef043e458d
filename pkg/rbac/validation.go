package rbac

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-rbac/pkg/errors"
)

const (
	// MinRoleNameLength is the minimum length of a role name after trimming
	MinRoleNameLength = 3
	// MinUserNameLength is the minimum length of a user name after trimming
	MinUserNameLength = 1
)

// Normalize trims the role name and every menu entry and validates the
// result. Menus are kept as given, duplicates included. The receiver is not
// modified.
func (rc RoleCreate) Normalize() (RoleCreate, error) {
	name := strings.TrimSpace(rc.Name)
	// Length is measured in characters, not bytes.
	if utf8.RuneCountInString(name) < MinRoleNameLength {
		return RoleCreate{}, errors.Newf(errors.ErrCodeValueTooShort,
			"role name must have at least %d characters", MinRoleNameLength)
	}

	menus := make([]string, 0, len(rc.Menus))
	for _, rawMenu := range rc.Menus {
		menu := strings.TrimSpace(rawMenu)
		if menu == "" {
			return RoleCreate{}, errors.New(errors.ErrCodeValidationFailed,
				"menu entries cannot be empty")
		}
		menus = append(menus, menu)
	}

	return RoleCreate{
		Name:         name,
		Menus:        menus,
		IsSuperAdmin: rc.IsSuperAdmin,
	}, nil
}

// Normalize trims the user name, requires at least one role id and
// deduplicates role ids preserving first occurrence. The receiver is not
// modified.
func (uc UserCreate) Normalize() (UserCreate, error) {
	if len(uc.RoleIDs) == 0 {
		return UserCreate{}, errors.New(errors.ErrCodeMissingRequired,
			"user must have at least one role assigned")
	}

	name := strings.TrimSpace(uc.Name)
	if utf8.RuneCountInString(name) < MinUserNameLength {
		return UserCreate{}, errors.Newf(errors.ErrCodeValueTooShort,
			"user name must have at least %d characters", MinUserNameLength)
	}

	return UserCreate{
		Name:    name,
		RoleIDs: dedupeRoleIDs(uc.RoleIDs),
	}, nil
}

// dedupeRoleIDs removes duplicate ids keeping the first occurrence in order
func dedupeRoleIDs(roleIDs []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(roleIDs))
	unique := make([]uuid.UUID, 0, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
