package rbac

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/simple-rbac/pkg/config"
)

// setupTestDatabase starts a disposable Postgres container. Set
// RBAC_TEST_EXTERNAL_DB to instead connect to an existing database described
// by the RBAC_PG_* variables; migrations/rbac_db.sql must already be applied
// there, and the tables are truncated on cleanup.
func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	if config.GetEnv("RBAC_TEST_EXTERNAL_DB") != "" {
		dbConfig := config.NewDatabaseConfigFromEnv()
		pool, err := pgxpool.New(ctx, dbConfig.ToDatabaseURL())
		require.NoError(t, err)

		cleanup := func() {
			if _, err := pool.Exec(ctx, `TRUNCATE user_roles, users, roles`); err != nil {
				t.Logf("failed to truncate tables: %v", err)
			}
			pool.Close()
		}
		return pool, cleanup
	}

	dbName := "rbac_db"
	dbUser := "rbac"
	dbPassword := "pwd"

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "rbac_db.sql")),
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func TestPostgresRbacRepository_Roles(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	role, err := repo.CreateRole(ctx, CreateRoleParams{
		Name:  "Editor",
		Menus: []string{"posts", "comments"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, role.ID)
	assert.Equal(t, "Editor", role.Name)
	assert.Equal(t, []string{"posts", "comments"}, role.Menus)
	assert.False(t, role.IsSuperAdmin)
	assert.False(t, role.CreatedAt.IsZero())

	got, err := repo.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
	assert.Equal(t, role.Menus, got.Menus)

	_, err = repo.GetRole(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRoleNotFound)

	// Unique index on lower(name) rejects case-insensitive duplicates.
	_, err = repo.CreateRole(ctx, CreateRoleParams{Name: "EDITOR"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	exists, err := repo.RoleNameExists(ctx, "eDiToR")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.RoleNameExists(ctx, "Viewer")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostgresRbacRepository_FindRolesOrdering(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	for _, name := range []string{"moderator", "Admin", "editor"} {
		_, err := repo.CreateRole(ctx, CreateRoleParams{Name: name})
		require.NoError(t, err)
	}

	roles, err := repo.FindRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, "Admin", roles[0].Name)
	assert.Equal(t, "editor", roles[1].Name)
	assert.Equal(t, "moderator", roles[2].Name)
}

func TestPostgresRbacRepository_CreateUser(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	editor, err := repo.CreateRole(ctx, CreateRoleParams{Name: "Editor", Menus: []string{"posts"}})
	require.NoError(t, err)
	moderator, err := repo.CreateRole(ctx, CreateRoleParams{Name: "Moderator", Menus: []string{"moderation"}})
	require.NoError(t, err)

	user, err := repo.CreateUser(ctx, CreateUserParams{
		Name:    "Alice",
		RoleIDs: []uuid.UUID{moderator.ID, editor.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, []uuid.UUID{moderator.ID, editor.ID}, user.RoleIDs)

	got, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleIDs, got.RoleIDs)

	view, err := repo.GetUserWithRoles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, view.Roles, 2)
	assert.Equal(t, moderator.ID, view.Roles[0].ID)
	assert.Equal(t, editor.ID, view.Roles[1].ID)
}

func TestPostgresRbacRepository_CreateUserUnknownRoleRollsBack(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	editor, err := repo.CreateRole(ctx, CreateRoleParams{Name: "Editor"})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, CreateUserParams{
		Name:    "Alice",
		RoleIDs: []uuid.UUID{editor.ID, uuid.New()},
	})
	assert.ErrorIs(t, err, ErrRoleNotFound)

	users, err := repo.FindUsersWithRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPostgresRbacRepository_SuperAdminInvariant(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	admin, err := repo.CreateRole(ctx, CreateRoleParams{
		Name:         "Super Administrador",
		Menus:        []string{"admin"},
		IsSuperAdmin: true,
	})
	require.NoError(t, err)

	exists, err := repo.AnySuperAdminUserExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	adminUser, err := repo.CreateUser(ctx, CreateUserParams{
		Name:              "Alice",
		RoleIDs:           []uuid.UUID{admin.ID},
		HasSuperAdminRole: true,
	})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, CreateUserParams{
		Name:              "Mallory",
		RoleIDs:           []uuid.UUID{admin.ID},
		HasSuperAdminRole: true,
	})
	assert.ErrorIs(t, err, ErrSuperAdminUserExists)

	// The rejected creation rolled back completely.
	users, err := repo.FindUsersWithRoles(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].Name)

	hasRole, err := repo.UserHasSuperAdminRole(ctx, adminUser.ID)
	require.NoError(t, err)
	assert.True(t, hasRole)

	_, err = repo.UserHasSuperAdminRole(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresRbacRepository_ConcurrentSuperAdminCreation(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	admin, err := repo.CreateRole(ctx, CreateRoleParams{
		Name:         "Super Administrador",
		Menus:        []string{"admin"},
		IsSuperAdmin: true,
	})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.CreateUser(ctx, CreateUserParams{
				Name:              "Contender",
				RoleIDs:           []uuid.UUID{admin.ID},
				HasSuperAdminRole: true,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrSuperAdminUserExists)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent super-admin creation must win")
}

func TestPostgresRbacRepository_MenusForUser(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	editor, err := repo.CreateRole(ctx, CreateRoleParams{Name: "Editor", Menus: []string{"posts", "comments"}})
	require.NoError(t, err)
	moderator, err := repo.CreateRole(ctx, CreateRoleParams{Name: "Moderator", Menus: []string{"comments", "moderation"}})
	require.NoError(t, err)

	user, err := repo.CreateUser(ctx, CreateUserParams{
		Name:    "Alice",
		RoleIDs: []uuid.UUID{editor.ID, moderator.ID},
	})
	require.NoError(t, err)

	menus, err := repo.MenusForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "comments", "moderation"}, menus)

	_, err = repo.MenusForUser(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresRbacRepository_FindUsersWithRolesOrdering(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	editor, err := repo.CreateRole(ctx, CreateRoleParams{Name: "Editor", Menus: []string{"posts"}})
	require.NoError(t, err)

	for _, name := range []string{"charlie", "Alice", "bob"} {
		_, err := repo.CreateUser(ctx, CreateUserParams{
			Name:    name,
			RoleIDs: []uuid.UUID{editor.ID},
		})
		require.NoError(t, err)
	}

	users, err := repo.FindUsersWithRoles(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, "charlie", users[2].Name)
	require.Len(t, users[0].Roles, 1)
	assert.Equal(t, editor.ID, users[0].Roles[0].ID)
}

func TestPostgresRbacRepository_LoadRolesAndReset(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRbacRepository(pool)
	ctx := context.Background()

	id := uuid.New()
	err := repo.LoadRoles(ctx, []Role{
		{ID: id, Name: "Imported", Menus: []string{"reports"}},
	})
	require.NoError(t, err)

	role, err := repo.GetRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Imported", role.Name)

	// Upsert by id.
	err = repo.LoadRoles(ctx, []Role{
		{ID: id, Name: "Renamed", Menus: []string{"reports", "exports"}},
	})
	require.NoError(t, err)

	role, err = repo.GetRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", role.Name)
	assert.Equal(t, []string{"reports", "exports"}, role.Menus)

	require.NoError(t, repo.Reset(ctx))

	roles, err := repo.FindRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestRbacServiceAgainstPostgres(t *testing.T) {
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	repo, err := NewRbacRepository("postgres", RepositoryConfig{DB: pool})
	require.NoError(t, err)

	service, err := NewRbacService(ctx, repo)
	require.NoError(t, err)

	roles, err := service.FindRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, SuperAdminRoleName, roles[0].Name)
	assert.True(t, roles[0].IsSuperAdmin)

	adminUser, err := service.CreateUser(ctx, UserCreate{
		Name:    "Alice",
		RoleIDs: []uuid.UUID{roles[0].ID},
	})
	require.NoError(t, err)

	menus, err := service.ListMyMenus(ctx, adminUser.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{SuperAdminMenu}, menus)
}
