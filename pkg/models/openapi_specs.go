package models

import (
	"path/filepath"
	"strings"
	"time"
)

// OpenAPISpec represents the openapi_specs table structure
type OpenAPISpec struct {
	ID          int        `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Title       *string    `json:"title,omitempty" db:"title"`
	Version     *string    `json:"version,omitempty" db:"version"`
	SpecContent string     `json:"spec_content" db:"spec_content"`
	FileFormat  *string    `json:"file_format,omitempty" db:"file_format"`
	FileSize    *int       `json:"file_size,omitempty" db:"file_size"`
	IsActive    *bool      `json:"is_active,omitempty" db:"is_active"`
	CreatedAt   *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the OpenAPISpec model
func (OpenAPISpec) TableName() string {
	return "openapi_specs"
}

// Active reports whether the spec may be served. A missing flag counts as active.
func (s *OpenAPISpec) Active() bool {
	return s.IsActive == nil || *s.IsActive
}

// NewOpenAPISpec creates an active spec with its size and format filled in.
// format is "yaml" or "json"; empty means yaml.
func NewOpenAPISpec(name, specContent, format string) *OpenAPISpec {
	now := time.Now()
	active := true
	if format == "" {
		format = "yaml"
	}
	size := len(specContent)

	return &OpenAPISpec{
		Name:        name,
		SpecContent: specContent,
		FileFormat:  &format,
		FileSize:    &size,
		IsActive:    &active,
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}
}

// FormatFromPath maps a file extension to a stored file format.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}
