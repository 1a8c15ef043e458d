package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// txBeginner is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// userCreateLockKey is the advisory lock key that serializes user creation.
// Holding it across the super-admin existence check and the insert keeps two
// concurrent super-admin assignments from both succeeding.
const userCreateLockKey = int64(0x7262616375737273) // "rbacusrs"

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// PostgresRbacRepository implements RbacRepository using PostgreSQL
type PostgresRbacRepository struct {
	db DBTX
}

// NewPostgresRbacRepository creates a new PostgreSQL RBAC repository
func NewPostgresRbacRepository(db DBTX) *PostgresRbacRepository {
	return &PostgresRbacRepository{db: db}
}

// CreateRole creates a new role with a fresh id
func (r *PostgresRbacRepository) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	query := `
		INSERT INTO roles (id, name, menus, is_super_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, menus, is_super_admin, created_at
	`

	menus := params.Menus
	if menus == nil {
		menus = []string{}
	}

	row := r.db.QueryRow(ctx, query, uuid.New(), params.Name, menus, params.IsSuperAdmin)

	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Menus, &role.IsSuperAdmin, &role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			slog.Debug("Role insert hit unique constraint", "name", params.Name)
			return Role{}, ErrDuplicateKey
		}
		slog.Error("Failed to create role", "err", err, "name", params.Name)
		return Role{}, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}

// FindRoles returns all roles ordered by name, case-insensitive ascending
func (r *PostgresRbacRepository) FindRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, menus, is_super_admin, created_at
		FROM roles
		ORDER BY lower(name), id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		slog.Error("Failed to find roles", "err", err)
		return nil, fmt.Errorf("failed to find roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Menus, &role.IsSuperAdmin, &role.CreatedAt); err != nil {
			slog.Error("Failed to scan role", "err", err)
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		slog.Error("Error iterating over roles", "err", err)
		return nil, fmt.Errorf("error iterating over roles: %w", err)
	}
	return roles, nil
}

// GetRole retrieves a role by id
func (r *PostgresRbacRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	query := `
		SELECT id, name, menus, is_super_admin, created_at
		FROM roles
		WHERE id = $1
	`

	var role Role
	err := r.db.QueryRow(ctx, query, id).Scan(&role.ID, &role.Name, &role.Menus, &role.IsSuperAdmin, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		slog.Error("Failed to get role", "err", err, "roleID", id)
		return Role{}, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// RoleNameExists reports whether any role has the given name, case-insensitive
func (r *PostgresRbacRepository) RoleNameExists(ctx context.Context, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM roles WHERE lower(name) = lower($1))`

	var exists bool
	if err := r.db.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		slog.Error("Failed to check role name", "err", err, "name", name)
		return false, fmt.Errorf("failed to check role name: %w", err)
	}
	return exists, nil
}

// RoleIsSuperAdmin reports whether the role carries the super-admin flag
func (r *PostgresRbacRepository) RoleIsSuperAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT is_super_admin FROM roles WHERE id = $1`

	var isSuperAdmin bool
	err := r.db.QueryRow(ctx, query, id).Scan(&isSuperAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrRoleNotFound
		}
		slog.Error("Failed to check role flag", "err", err, "roleID", id)
		return false, fmt.Errorf("failed to check role flag: %w", err)
	}
	return isSuperAdmin, nil
}

// CreateUser creates a new user and its ordered role associations in one
// transaction. An advisory transaction lock serializes user creation so the
// super-admin existence check and the insert act as one unit; concurrent
// reads are not blocked.
func (r *PostgresRbacRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		// Already inside a caller-provided transaction
		return r.createUserInTx(ctx, r.db, params)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		slog.Error("Failed to begin transaction", "err", err)
		return User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := r.createUserInTx(ctx, tx, params)
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("Failed to commit user creation", "err", err)
		return User{}, fmt.Errorf("failed to commit user creation: %w", err)
	}
	return user, nil
}

func (r *PostgresRbacRepository) createUserInTx(ctx context.Context, tx DBTX, params CreateUserParams) (User, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userCreateLockKey); err != nil {
		slog.Error("Failed to acquire user creation lock", "err", err)
		return User{}, fmt.Errorf("failed to acquire user creation lock: %w", err)
	}

	for _, roleID := range params.RoleIDs {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
		if err != nil {
			slog.Error("Failed to check role existence", "err", err, "roleID", roleID)
			return User{}, fmt.Errorf("failed to check role existence: %w", err)
		}
		if !exists {
			return User{}, ErrRoleNotFound
		}
	}

	if params.HasSuperAdminRole {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM user_roles ur
				JOIN roles r ON r.id = ur.role_id
				WHERE r.is_super_admin
			)
		`).Scan(&exists)
		if err != nil {
			slog.Error("Failed to check for existing super admin user", "err", err)
			return User{}, fmt.Errorf("failed to check for existing super admin user: %w", err)
		}
		if exists {
			return User{}, ErrSuperAdminUserExists
		}
	}

	var user User
	err := tx.QueryRow(ctx, `
		INSERT INTO users (id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at
	`, uuid.New(), params.Name).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateKey
		}
		slog.Error("Failed to create user", "err", err, "name", params.Name)
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	for position, roleID := range params.RoleIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, position)
			VALUES ($1, $2, $3)
		`, user.ID, roleID, position)
		if err != nil {
			slog.Error("Failed to assign role", "err", err, "userID", user.ID, "roleID", roleID)
			return User{}, fmt.Errorf("failed to assign role: %w", err)
		}
	}

	user.RoleIDs = append([]uuid.UUID(nil), params.RoleIDs...)
	slog.Debug("User created", "userID", user.ID, "roles", len(user.RoleIDs))
	return user, nil
}

// GetUser retrieves a user by id with its role ids in assignment order
func (r *PostgresRbacRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		slog.Error("Failed to get user", "err", err, "userID", id)
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT role_id
		FROM user_roles
		WHERE user_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		slog.Error("Failed to get user roles", "err", err, "userID", id)
		return User{}, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID uuid.UUID
		if err := rows.Scan(&roleID); err != nil {
			return User{}, fmt.Errorf("failed to scan user role: %w", err)
		}
		user.RoleIDs = append(user.RoleIDs, roleID)
	}
	if err := rows.Err(); err != nil {
		return User{}, fmt.Errorf("error iterating over user roles: %w", err)
	}
	return user, nil
}

// GetUserWithRoles retrieves a user with roles resolved in assignment order
func (r *PostgresRbacRepository) GetUserWithRoles(ctx context.Context, id uuid.UUID) (UserWithRoles, error) {
	var view UserWithRoles
	err := r.db.QueryRow(ctx, `SELECT id, name FROM users WHERE id = $1`, id).
		Scan(&view.ID, &view.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserWithRoles{}, ErrUserNotFound
		}
		slog.Error("Failed to get user", "err", err, "userID", id)
		return UserWithRoles{}, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := r.rolesForUser(ctx, id)
	if err != nil {
		return UserWithRoles{}, err
	}
	view.Roles = roles
	return view, nil
}

// FindUsersWithRoles returns all users ordered by name, each with roles
// resolved in assignment order
func (r *PostgresRbacRepository) FindUsersWithRoles(ctx context.Context) ([]UserWithRoles, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name
		FROM users
		ORDER BY lower(name), id
	`)
	if err != nil {
		slog.Error("Failed to find users", "err", err)
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer rows.Close()

	var result []UserWithRoles
	for rows.Next() {
		var view UserWithRoles
		if err := rows.Scan(&view.ID, &view.Name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over users: %w", err)
	}

	for i := range result {
		roles, err := r.rolesForUser(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Roles = roles
	}
	return result, nil
}

// UserHasSuperAdminRole reports whether any of the user's roles is flagged
// super-admin
func (r *PostgresRbacRepository) UserHasSuperAdminRole(ctx context.Context, id uuid.UUID) (bool, error) {
	var userExists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&userExists); err != nil {
		slog.Error("Failed to check user existence", "err", err, "userID", id)
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	if !userExists {
		return false, ErrUserNotFound
	}

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND r.is_super_admin
		)
	`
	var hasRole bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&hasRole); err != nil {
		slog.Error("Failed to check super admin role", "err", err, "userID", id)
		return false, fmt.Errorf("failed to check super admin role: %w", err)
	}
	return hasRole, nil
}

// AnySuperAdminUserExists reports whether some existing user holds a
// super-admin role, system-wide
func (r *PostgresRbacRepository) AnySuperAdminUserExists(ctx context.Context) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE r.is_super_admin
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query).Scan(&exists); err != nil {
		slog.Error("Failed to check for super admin user", "err", err)
		return false, fmt.Errorf("failed to check for super admin user: %w", err)
	}
	return exists, nil
}

// MenusForUser aggregates the user's menus in role order then menu order,
// first occurrence wins
func (r *PostgresRbacRepository) MenusForUser(ctx context.Context, id uuid.UUID) ([]string, error) {
	var userExists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&userExists); err != nil {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if !userExists {
		return nil, ErrUserNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT r.menus
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.position
	`, id)
	if err != nil {
		slog.Error("Failed to get menus", "err", err, "userID", id)
		return nil, fmt.Errorf("failed to get menus: %w", err)
	}
	defer rows.Close()

	var menus []string
	for rows.Next() {
		var roleMenus []string
		if err := rows.Scan(&roleMenus); err != nil {
			return nil, fmt.Errorf("failed to scan menus: %w", err)
		}
		menus = append(menus, roleMenus...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over menus: %w", err)
	}
	return dedupeMenus(menus), nil
}

// LoadRoles bulk-loads roles as given, ids included. Trusted maintenance
// path: no validation, upserts by id.
func (r *PostgresRbacRepository) LoadRoles(ctx context.Context, roles []Role) error {
	for _, role := range roles {
		menus := role.Menus
		if menus == nil {
			menus = []string{}
		}
		_, err := r.db.Exec(ctx, `
			INSERT INTO roles (id, name, menus, is_super_admin)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, menus = EXCLUDED.menus, is_super_admin = EXCLUDED.is_super_admin
		`, role.ID, role.Name, menus, role.IsSuperAdmin)
		if err != nil {
			slog.Error("Failed to load role", "err", err, "roleID", role.ID)
			return fmt.Errorf("failed to load role %s: %w", role.ID, err)
		}
	}
	return nil
}

// Reset clears all roles, users and associations
func (r *PostgresRbacRepository) Reset(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `TRUNCATE user_roles, users, roles`); err != nil {
		slog.Error("Failed to reset repository", "err", err)
		return fmt.Errorf("failed to reset repository: %w", err)
	}
	return nil
}

// rolesForUser returns the user's roles in assignment order
func (r *PostgresRbacRepository) rolesForUser(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.name, r.menus, r.is_super_admin, r.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.position
	`, userID)
	if err != nil {
		slog.Error("Failed to get roles for user", "err", err, "userID", userID)
		return nil, fmt.Errorf("failed to get roles for user: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0, 4)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Menus, &role.IsSuperAdmin, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over roles: %w", err)
	}
	return roles, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
