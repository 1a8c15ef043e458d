package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-rbac/pkg/config"
	"github.com/tendant/simple-rbac/pkg/rbac"
	rbacapi "github.com/tendant/simple-rbac/pkg/rbac/api"
)

type Config struct {
	BaseUrl   string `env:"BASE_URL" env-default:"http://localhost:4000"`
	DbConfig  config.DatabaseConfig
	AppConfig app.AppConfig
}

// loadEnvFile loads environment variables from .env file if it exists
// Only sets variables that are not already set in the environment
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("Failed to get current working directory", "error", err)
		return
	}
	envFile := filepath.Join(cwd, ".env")

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Info("No .env file found", "path", envFile)
		return
	}

	err = godotenv.Load(envFile)
	if err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}

	slog.Info("Configuration loaded from .env file", "path", envFile)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	// Load .env file if it exists (before reading environment variables)
	loadEnvFile()

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()

	app.RegisterHealthzRoutes(server.R)

	dbURL := cfg.DbConfig.ToDatabaseURL()
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", cfg.DbConfig.Database, "host", cfg.DbConfig.Host, "port", cfg.DbConfig.Port, "user", cfg.DbConfig.User, "schema", cfg.DbConfig.Schema)
		os.Exit(-1)
	}

	repo, err := rbac.NewRbacRepository("postgres", rbac.RepositoryConfig{DB: pool})
	if err != nil {
		slog.Error("Failed creating rbac repository", "err", err)
		os.Exit(-1)
	}

	rbacService, err := rbac.NewRbacService(context.Background(), repo)
	if err != nil {
		slog.Error("Failed initializing rbac service", "err", err)
		os.Exit(-1)
	}

	handle := rbacapi.NewHandle(rbacService)
	server.R.Route("/api/rbac", func(r chi.Router) {
		rbacapi.Routes(r, handle)
	})

	slog.Info("RBAC service ready", "base_url", cfg.BaseUrl)

	server.Run()
}
