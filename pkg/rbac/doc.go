// Package rbac provides role and user management with permission-scoped reads
// for simple-rbac.
//
// This package manages roles (named permission bundles with an ordered menu
// list and a super-admin flag) and users (named, with an ordered set of role
// assignments) behind a repository interface with PostgreSQL and in-memory
// backends.
//
// # Overview
//
// The rbac package enforces two system-wide invariants:
//   - Role names are unique, case-insensitive.
//   - At most one user may hold a super-admin-flagged role. The only such
//     role is created automatically when the service first runs against an
//     empty repository; the create-role path refuses the flag outright.
//
// Reads are permission-scoped: a regular user only sees themselves, a
// super admin sees everyone.
//
// # Basic Usage
//
//	import "github.com/tendant/simple-rbac/pkg/rbac"
//
//	// Create a repository and service
//	repo := rbac.NewInMemoryRbacRepository()
//	service, err := rbac.NewRbacService(ctx, repo)
//
//	// Create a role
//	role, err := service.CreateRole(ctx, rbac.RoleCreate{
//		Name:  "Editor",
//		Menus: []string{"posts", "comments"},
//	})
//
//	// Create a user with ordered role assignments
//	user, err := service.CreateUser(ctx, rbac.UserCreate{
//		Name:    "Alice",
//		RoleIDs: []uuid.UUID{role.ID},
//	})
//
//	// Aggregate the user's menus (role order, first occurrence wins)
//	menus, err := service.ListMyMenus(ctx, user.ID)
//
// # Storage Backends
//
// Both backends satisfy the same RbacRepository contract and are selected at
// construction time:
//
//	repo, err := rbac.NewRbacRepository("postgres", rbac.RepositoryConfig{DB: pool})
//	repo, err := rbac.NewRbacRepository("inmem", rbac.RepositoryConfig{})
//
// User creation (the user row plus its ordered role associations) is atomic
// in both backends, and both serialize the super-admin existence check with
// the insert so two concurrent requests cannot both claim the super-admin
// role.
package rbac
