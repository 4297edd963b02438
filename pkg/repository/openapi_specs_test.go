package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhoering/openapi-to-mcp/pkg/models"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

var columns = []string{"id", "name", "title", "version", "spec_content", "file_format", "file_size", "is_active", "created_at", "updated_at"}

func newRepo(t *testing.T) (*OpenAPISpecRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewOpenAPISpecRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepo(t)
	spec := models.NewOpenAPISpec("petstore", "openapi: 3.0.3", "yaml")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO openapi_specs")).
		WithArgs("petstore", nil, nil, "openapi: 3.0.3", "yaml", 14, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	saved, err := repo.Create(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 7, saved.ID)
}

func TestUpsertKeepsActiveFlag(t *testing.T) {
	repo, mock := newRepo(t)
	spec := models.NewOpenAPISpec("petstore", "openapi: 3.0.3", "yaml")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (name) DO UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).AddRow(3, false, now, now))

	saved, err := repo.Upsert(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.ID)
	assert.False(t, saved.Active())
}

func TestGetByName(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM openapi_specs WHERE name = $1")).
		WithArgs("petstore").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "petstore", "Petstore", "1.0", "openapi: 3.0.3", "yaml", 14, true, now, now))

	spec, err := repo.GetByName("petstore")
	require.NoError(t, err)
	assert.Equal(t, "petstore", spec.Name)
	require.NotNil(t, spec.Title)
	assert.Equal(t, "Petstore", *spec.Title)
	assert.True(t, spec.Active())
}

func TestGetByNameNotFound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("FROM openapi_specs").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByName("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByNameDatabaseError(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("FROM openapi_specs").WithArgs("petstore").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByName("petstore")
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDatabase))
}

func TestGetActive(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = true")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, "inventory", nil, nil, "{}", "json", 2, true, now, now).
			AddRow(1, "petstore", "Petstore", "1.0", "openapi: 3.0.3", "yaml", 14, true, now, now))

	specs, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "inventory", specs[0].Name)
	assert.Nil(t, specs[0].Title)
}

func TestGetAll(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(columns))

	specs, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestSetActive(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE openapi_specs SET is_active = $2")).
		WithArgs("petstore", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE openapi_specs SET is_active = $2")).
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetActive(context.Background(), "petstore", false))
	assert.ErrorIs(t, repo.SetActive(context.Background(), "missing", true), ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM openapi_specs WHERE name = $1")).
		WithArgs("petstore").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM openapi_specs")).
		WithArgs("petstore").
		WillReturnError(errors.New("locked"))

	require.NoError(t, repo.Delete(context.Background(), "petstore"))
	err := repo.Delete(context.Background(), "petstore")
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDatabase))
}
