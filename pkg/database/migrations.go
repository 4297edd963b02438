package database

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

const createOpenAPISpecsTable = `
	CREATE TABLE IF NOT EXISTS openapi_specs (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		title VARCHAR(500),
		version VARCHAR(100),
		spec_content TEXT NOT NULL,
		file_format VARCHAR(10) DEFAULT 'yaml',
		file_size INTEGER,
		is_active BOOLEAN DEFAULT true,
		created_at TIMESTAMP(6) DEFAULT NOW(),
		updated_at TIMESTAMP(6) DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_openapi_specs_is_active ON openapi_specs(is_active);
	CREATE INDEX IF NOT EXISTS idx_openapi_specs_name ON openapi_specs(name);

	CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ language 'plpgsql';

	DROP TRIGGER IF EXISTS update_openapi_specs_updated_at ON openapi_specs;
	CREATE TRIGGER update_openapi_specs_updated_at
		BEFORE UPDATE ON openapi_specs
		FOR EACH ROW
		EXECUTE FUNCTION update_updated_at_column();
`

const dropOpenAPISpecsTable = `
	DROP TRIGGER IF EXISTS update_openapi_specs_updated_at ON openapi_specs;
	DROP FUNCTION IF EXISTS update_updated_at_column();
	DROP TABLE IF EXISTS openapi_specs CASCADE;
`

// CreateOpenAPISpecsTable creates the openapi_specs table with its indexes and
// updated_at trigger.
func CreateOpenAPISpecsTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createOpenAPISpecsTable); err != nil {
		return server.Wrap(err, server.ErrorTypeDatabase, "failed to create openapi_specs table")
	}
	return nil
}

// DropOpenAPISpecsTable drops the openapi_specs table
func DropOpenAPISpecsTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, dropOpenAPISpecsTable); err != nil {
		return server.Wrap(err, server.ErrorTypeDatabase, "failed to drop openapi_specs table")
	}
	return nil
}

// RunMigrations runs all database migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	logger.Debug("Running database migrations")
	if err := CreateOpenAPISpecsTable(ctx, db); err != nil {
		return err
	}
	logger.Info("Database migrations completed")
	return nil
}
