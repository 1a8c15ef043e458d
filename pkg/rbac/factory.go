package rbac

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating an RBAC repository
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories (DBTX interface)
	DB DBTX
}

// NewRbacRepository creates a new RBAC repository based on the persistence type
func NewRbacRepository(persistenceType string, config RepositoryConfig) (RbacRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRbacRepository(config.DB), nil
	case "inmem", "memory":
		return NewInMemoryRbacRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, inmem)", persistenceType)
	}
}
