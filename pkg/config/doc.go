// Package config provides configuration loading for the rbac services.
//
// Configuration is read from environment variables, either through the
// cleanenv struct tags on DatabaseConfig or through the helper functions
// for one-off values:
//
//	// String values
//	host := config.GetEnvOrDefault("RBAC_PG_HOST", "localhost")
//	external := config.GetEnv("RBAC_TEST_EXTERNAL_DB")
//
//	// Numeric values
//	port := config.GetEnvUint16("RBAC_PG_PORT", 5432)
//
// DatabaseConfig carries the PostgreSQL connection settings and can be
// turned into a connection URL:
//
//	dbConfig := config.NewDatabaseConfigFromEnv()
//	pool, err := pgxpool.New(ctx, dbConfig.ToDatabaseURL())
package config
