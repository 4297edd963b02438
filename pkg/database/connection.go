// Package database opens the PostgreSQL spec store and creates its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// Connect opens and pings the PostgreSQL database at databaseURL.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, server.NewError(server.ErrorTypeConfiguration, "database URL is not set", "pass --database-url or set OPENAPI_TO_MCP_DATABASE_URL")
	}

	if !strings.HasPrefix(databaseURL, "postgresql://") && !strings.HasPrefix(databaseURL, "postgres://") {
		return nil, server.NewError(server.ErrorTypeConfiguration,
			"database URL must be a PostgreSQL connection string", "expected postgresql://...")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to open database connection")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to ping database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	logger.Info("Database connected", zap.String("url", redactURL(databaseURL)))
	return db, nil
}

// Open connects and runs the migrations.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	db, err := Connect(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// redactURL drops the credentials of a connection string.
func redactURL(databaseURL string) string {
	at := strings.LastIndex(databaseURL, "@")
	if at < 0 {
		return databaseURL
	}
	scheme := ""
	if i := strings.Index(databaseURL, "://"); i >= 0 && i < at {
		scheme = databaseURL[:i+3]
	}
	return scheme + "[HIDDEN]" + databaseURL[at:]
}
