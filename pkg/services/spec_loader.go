// Package services manages the OpenAPI documents kept in the spec store.
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/models"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// SpecStore is the write side of the spec store.
type SpecStore interface {
	Upsert(ctx context.Context, spec *models.OpenAPISpec) (*models.OpenAPISpec, error)
	GetAll(ctx context.Context) ([]*models.OpenAPISpec, error)
	GetActive(ctx context.Context) ([]*models.OpenAPISpec, error)
	SetActive(ctx context.Context, name string, active bool) error
	Delete(ctx context.Context, name string) error
}

// SpecService imports and manages stored specs.
type SpecService struct {
	store  SpecStore
	parser *loader.SpecLoader
	logger *zap.Logger
}

// NewSpecService creates a new spec service
func NewSpecService(store SpecStore, logger *zap.Logger) *SpecService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpecService{
		store:  store,
		parser: loader.NewSpecLoader(loader.WithLogger(logger)),
		logger: logger,
	}
}

// ImportFile stores the document at path under name. An empty name is
// derived from the file name.
func (s *SpecService) ImportFile(ctx context.Context, name, path string) (*models.OpenAPISpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to read spec file")
	}
	if name == "" {
		name = loader.SpecName(path)
	}
	return s.ImportContent(ctx, name, content, models.FormatFromPath(path))
}

// ImportContent parses content for its title and version and stores it.
// Unparseable content is refused; validation problems are only logged.
func (s *SpecService) ImportContent(ctx context.Context, name string, content []byte, format string) (*models.OpenAPISpec, error) {
	doc, err := s.parser.Parse(ctx, content)
	if err != nil {
		return nil, err
	}
	for _, diag := range doc.Diagnostics {
		s.logger.Warn("Imported spec has problems", zap.String("name", name), zap.Stringer("diagnostic", diag))
	}

	spec := models.NewOpenAPISpec(name, string(content), format)
	if doc.Doc.Info.Title != "" {
		title := doc.Doc.Info.Title
		spec.Title = &title
	}
	if doc.Doc.Info.Version != "" {
		version := doc.Doc.Info.Version
		spec.Version = &version
	}

	saved, err := s.store.Upsert(ctx, spec)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Imported spec", zap.String("name", name), zap.Int("size", len(content)))
	return saved, nil
}

// ImportDir imports every .yaml, .yml and .json file of dir. Files that fail
// are logged and skipped.
func (s *SpecService) ImportDir(ctx context.Context, dir string) ([]*models.OpenAPISpec, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to read specs directory")
	}

	var names []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(file.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	var imported []*models.OpenAPISpec
	for _, fileName := range names {
		spec, err := s.ImportFile(ctx, "", filepath.Join(dir, fileName))
		if err != nil {
			s.logger.Warn("Failed to import spec", zap.String("file", fileName), zap.Error(err))
			continue
		}
		imported = append(imported, spec)
	}
	return imported, nil
}

// List returns the stored specs, only the active ones when activeOnly is set.
func (s *SpecService) List(ctx context.Context, activeOnly bool) ([]*models.OpenAPISpec, error) {
	if activeOnly {
		return s.store.GetActive(ctx)
	}
	return s.store.GetAll(ctx)
}

// Activate makes the named spec servable.
func (s *SpecService) Activate(ctx context.Context, name string) error {
	return s.store.SetActive(ctx, name, true)
}

// Deactivate makes db:<name> sources fail.
func (s *SpecService) Deactivate(ctx context.Context, name string) error {
	return s.store.SetActive(ctx, name, false)
}

// Delete removes the named spec.
func (s *SpecService) Delete(ctx context.Context, name string) error {
	return s.store.Delete(ctx, name)
}

// SeedEntry is one document of a seed manifest.
type SeedEntry struct {
	File   string `yaml:"file"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

// SeedManifest lists documents to import in one go.
type SeedManifest struct {
	Specs []SeedEntry `yaml:"specs"`
}

// ReadSeedManifest parses a YAML or JSON seed manifest. Relative entry files
// are resolved against the manifest's directory.
func ReadSeedManifest(path string) (*SeedManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeConfiguration, "failed to read seed manifest")
	}

	var manifest SeedManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, server.Wrap(err, server.ErrorTypeConfiguration, "failed to parse seed manifest")
	}

	base := filepath.Dir(path)
	for i, entry := range manifest.Specs {
		if entry.File == "" {
			return nil, server.NewError(server.ErrorTypeConfiguration, "invalid seed manifest", fmt.Sprintf("entry %d has no file", i))
		}
		if !filepath.IsAbs(entry.File) {
			manifest.Specs[i].File = filepath.Join(base, entry.File)
		}
	}
	return &manifest, nil
}

// Seed imports every entry of manifest and applies its active flag. Entries
// that fail are logged and skipped.
func (s *SpecService) Seed(ctx context.Context, manifest *SeedManifest) []*models.OpenAPISpec {
	var imported []*models.OpenAPISpec
	for _, entry := range manifest.Specs {
		spec, err := s.ImportFile(ctx, entry.Name, entry.File)
		if err != nil {
			s.logger.Warn("Failed to seed spec", zap.String("file", entry.File), zap.Error(err))
			continue
		}
		if entry.Active != nil && *entry.Active != spec.Active() {
			if err := s.store.SetActive(ctx, spec.Name, *entry.Active); err != nil {
				s.logger.Warn("Failed to set active status", zap.String("name", spec.Name), zap.Error(err))
				continue
			}
			active := *entry.Active
			spec.IsActive = &active
		}
		imported = append(imported, spec)
	}
	return imported
}
