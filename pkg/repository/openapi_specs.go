// Package repository stores OpenAPI documents in the openapi_specs table.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fhoering/openapi-to-mcp/pkg/models"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// ErrNotFound is returned when no spec matches.
var ErrNotFound = errors.New("openapi spec not found")

const specColumns = `id, name, title, version, spec_content, file_format, file_size, is_active, created_at, updated_at`

// OpenAPISpecRepository handles database operations for OpenAPI specs
type OpenAPISpecRepository struct {
	db *sql.DB
}

// NewOpenAPISpecRepository creates a new repository instance
func NewOpenAPISpecRepository(db *sql.DB) *OpenAPISpecRepository {
	return &OpenAPISpecRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSpec(row scanner) (*models.OpenAPISpec, error) {
	spec := &models.OpenAPISpec{}
	err := row.Scan(
		&spec.ID,
		&spec.Name,
		&spec.Title,
		&spec.Version,
		&spec.SpecContent,
		&spec.FileFormat,
		&spec.FileSize,
		&spec.IsActive,
		&spec.CreatedAt,
		&spec.UpdatedAt,
	)
	return spec, err
}

// Create inserts a new OpenAPI spec into the database
func (r *OpenAPISpecRepository) Create(ctx context.Context, spec *models.OpenAPISpec) (*models.OpenAPISpec, error) {
	query := `
		INSERT INTO openapi_specs (name, title, version, spec_content, file_format, file_size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		spec.Name,
		spec.Title,
		spec.Version,
		spec.SpecContent,
		spec.FileFormat,
		spec.FileSize,
		spec.IsActive,
	).Scan(&spec.ID, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to create openapi spec")
	}
	return spec, nil
}

// Upsert inserts the spec, or replaces the content of the spec with the same
// name. The active flag of an existing spec is kept.
func (r *OpenAPISpecRepository) Upsert(ctx context.Context, spec *models.OpenAPISpec) (*models.OpenAPISpec, error) {
	query := `
		INSERT INTO openapi_specs (name, title, version, spec_content, file_format, file_size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE
		SET title = EXCLUDED.title, version = EXCLUDED.version, spec_content = EXCLUDED.spec_content,
		    file_format = EXCLUDED.file_format, file_size = EXCLUDED.file_size, updated_at = NOW()
		RETURNING id, is_active, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		spec.Name,
		spec.Title,
		spec.Version,
		spec.SpecContent,
		spec.FileFormat,
		spec.FileSize,
		spec.IsActive,
	).Scan(&spec.ID, &spec.IsActive, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to upsert openapi spec")
	}
	return spec, nil
}

// GetByName retrieves an OpenAPI spec by its name
func (r *OpenAPISpecRepository) GetByName(name string) (*models.OpenAPISpec, error) {
	return r.GetByNameContext(context.Background(), name)
}

// GetByNameContext is GetByName bound to ctx.
func (r *OpenAPISpecRepository) GetByNameContext(ctx context.Context, name string) (*models.OpenAPISpec, error) {
	query := `SELECT ` + specColumns + ` FROM openapi_specs WHERE name = $1`

	spec, err := scanSpec(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to get openapi spec")
	}
	return spec, nil
}

// GetAll retrieves all OpenAPI specs, newest first.
func (r *OpenAPISpecRepository) GetAll(ctx context.Context) ([]*models.OpenAPISpec, error) {
	return r.list(ctx, `SELECT `+specColumns+` FROM openapi_specs ORDER BY created_at DESC`)
}

// GetActive retrieves all active OpenAPI specs, newest first.
func (r *OpenAPISpecRepository) GetActive(ctx context.Context) ([]*models.OpenAPISpec, error) {
	return r.list(ctx, `SELECT `+specColumns+` FROM openapi_specs WHERE is_active = true ORDER BY created_at DESC`)
}

func (r *OpenAPISpecRepository) list(ctx context.Context, query string) ([]*models.OpenAPISpec, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to list openapi specs")
	}
	defer rows.Close()

	var specs []*models.OpenAPISpec
	for rows.Next() {
		spec, err := scanSpec(rows)
		if err != nil {
			return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to scan openapi spec")
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to list openapi specs")
	}
	return specs, nil
}

// SetActive sets the is_active status of the named spec.
func (r *OpenAPISpecRepository) SetActive(ctx context.Context, name string, active bool) error {
	query := `UPDATE openapi_specs SET is_active = $2, updated_at = NOW() WHERE name = $1`
	return r.execOne(ctx, name, "failed to set active status", query, name, active)
}

// Delete removes the named spec.
func (r *OpenAPISpecRepository) Delete(ctx context.Context, name string) error {
	return r.execOne(ctx, name, "failed to delete openapi spec", `DELETE FROM openapi_specs WHERE name = $1`, name)
}

func (r *OpenAPISpecRepository) execOne(ctx context.Context, name, message, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return server.Wrap(err, server.ErrorTypeDatabase, message)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return server.Wrap(err, server.ErrorTypeDatabase, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
