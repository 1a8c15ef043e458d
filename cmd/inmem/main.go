// Package main demonstrates running the RBAC service without a database
// using the in-memory repository. This is useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Learning the API without database setup
//
// Note: All data is lost when the server stops. For production, use cmd/rbac with PostgreSQL.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-rbac/pkg/rbac"
	rbacapi "github.com/tendant/simple-rbac/pkg/rbac/api"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting In-Memory RBAC Service (no database required)")
	slog.Info(strings.Repeat("=", 60))

	ctx := context.Background()

	repo := rbac.NewInMemoryRbacRepository()

	rbacService, err := rbac.NewRbacService(ctx, repo)
	if err != nil {
		slog.Error("Failed initializing rbac service", "err", err)
		os.Exit(-1)
	}

	adminID := seedInitialData(ctx, rbacService)

	server := app.NewApp(app.WithPort(4000))

	app.RegisterHealthzRoutes(server.R)

	handle := rbacapi.NewHandle(rbacService)
	server.R.Route("/api/rbac", func(r chi.Router) {
		rbacapi.Routes(r, handle)
	})

	slog.Info(strings.Repeat("=", 60))
	slog.Info("In-Memory RBAC Service Ready")
	slog.Info("")
	slog.Info("Super-admin requester id: " + adminID)
	slog.Info("Pass it in the " + rbacapi.RequesterHeader + " header on scoped endpoints")
	slog.Info("")
	slog.Info("API Endpoints:")
	slog.Info("  GET  /api/rbac/roles      - List roles")
	slog.Info("  POST /api/rbac/roles      - Create role")
	slog.Info("  GET  /api/rbac/users      - List users (requester scoped)")
	slog.Info("  POST /api/rbac/users      - Create user")
	slog.Info("  GET  /api/rbac/users/{id} - Get user (requester scoped)")
	slog.Info("  GET  /api/rbac/me/menus   - Aggregated menus for requester")
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}

// seedInitialData creates a couple of roles and users so the demo server
// has something to list. Returns the super-admin user's id for use as a
// requester identity.
func seedInitialData(ctx context.Context, svc *rbac.RbacService) string {
	slog.Info("Seeding initial data...")

	editor, err := svc.CreateRole(ctx, rbac.RoleCreate{
		Name:  "Editor",
		Menus: []string{"posts", "comments"},
	})
	if err != nil {
		slog.Error("Failed seeding editor role", "err", err)
		os.Exit(-1)
	}

	moderator, err := svc.CreateRole(ctx, rbac.RoleCreate{
		Name:  "Moderator",
		Menus: []string{"comments", "moderation"},
	})
	if err != nil {
		slog.Error("Failed seeding moderator role", "err", err)
		os.Exit(-1)
	}

	roles, err := svc.FindRoles(ctx)
	if err != nil {
		slog.Error("Failed listing roles", "err", err)
		os.Exit(-1)
	}

	// The bootstrap super-admin role is created by the service itself.
	var superAdminRoleID = editor.ID
	for _, r := range roles {
		if r.IsSuperAdmin {
			superAdminRoleID = r.ID
			break
		}
	}

	admin, err := svc.CreateUser(ctx, rbac.UserCreate{
		Name:    "Alice Admin",
		RoleIDs: []uuid.UUID{superAdminRoleID},
	})
	if err != nil {
		slog.Error("Failed seeding admin user", "err", err)
		os.Exit(-1)
	}

	employee, err := svc.CreateUser(ctx, rbac.UserCreate{
		Name:    "Bob Editor",
		RoleIDs: []uuid.UUID{editor.ID, moderator.ID},
	})
	if err != nil {
		slog.Error("Failed seeding employee user", "err", err)
		os.Exit(-1)
	}

	slog.Info("Created roles", "editor", editor.ID, "moderator", moderator.ID)
	slog.Info("Created users", "admin", admin.ID, "employee", employee.ID)

	return admin.ID.String()
}
