// Package loader fetches OpenAPI documents from a URL, a local file or the
// spec store, and parses them with kin-openapi.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fhoering/openapi-to-mcp/pkg/memory"
	"github.com/fhoering/openapi-to-mcp/pkg/models"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// DefaultMaxDocumentSize caps the size of a fetched or read document.
const DefaultMaxDocumentSize = 64 << 20

// DatabaseScheme prefixes sources read from the spec store, e.g. "db:petstore".
const DatabaseScheme = "db:"

// SpecSource is the read side of the spec store.
type SpecSource interface {
	GetByName(name string) (*models.OpenAPISpec, error)
}

// Severity of a document diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a problem found in a document. Diagnostics never stop the
// server on their own.
type Diagnostic struct {
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s", d.Severity, d.Message)
}

// Document is a parsed OpenAPI document with the metadata the catalog needs.
type Document struct {
	Doc *openapi3.T
	// Order lists paths and their methods as declared in the source text.
	Order []PathOrder
	// SecuritySchemeOrder lists security scheme names as declared.
	SecuritySchemeOrder []string
	// Source is the URL, file path or db: name the document came from.
	Source string
	// SourceHost is scheme://authority when the document was fetched over
	// the network, empty otherwise.
	SourceHost  string
	Content     []byte
	LoadedAt    time.Time
	Diagnostics []Diagnostic
}

// Errors returns the error diagnostics.
func (d *Document) Errors() []Diagnostic {
	var out []Diagnostic
	for _, diag := range d.Diagnostics {
		if diag.Severity == SeverityError {
			out = append(out, diag)
		}
	}
	return out
}

// AddDiagnostic records a diagnostic on the document.
func (d *Document) AddDiagnostic(severity Severity, format string, args ...any) {
	d.Diagnostics = append(d.Diagnostics, Diagnostic{Severity: severity, Message: fmt.Sprintf(format, args...)})
}

// SpecLoader handles loading of OpenAPI specifications
type SpecLoader struct {
	client      *http.Client
	store       SpecSource
	bearerToken string
	maxSize     int64
	logger      *zap.Logger
}

// Option configures a SpecLoader.
type Option func(*SpecLoader)

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(client *http.Client) Option {
	return func(sl *SpecLoader) { sl.client = client }
}

// WithSpecSource enables db: sources.
func WithSpecSource(store SpecSource) Option {
	return func(sl *SpecLoader) { sl.store = store }
}

// WithBearerToken sends the token when fetching URL sources.
func WithBearerToken(token string) Option {
	return func(sl *SpecLoader) { sl.bearerToken = token }
}

// WithMaxDocumentSize caps document size in bytes; 0 disables the cap.
func WithMaxDocumentSize(n int64) Option {
	return func(sl *SpecLoader) { sl.maxSize = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(sl *SpecLoader) { sl.logger = logger }
}

// NewSpecLoader creates a new specification loader
func NewSpecLoader(opts ...Option) *SpecLoader {
	sl := &SpecLoader{
		client:  &http.Client{Timeout: 30 * time.Second},
		maxSize: DefaultMaxDocumentSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(sl)
	}
	return sl
}

// Load reads and parses the document behind source.
func (sl *SpecLoader) Load(ctx context.Context, source string) (*Document, error) {
	var (
		content  []byte
		location *url.URL
		host     string
		err      error
	)

	switch {
	case IsURL(source):
		location, err = url.Parse(source)
		if err != nil {
			return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "invalid spec URL")
		}
		host = location.Scheme + "://" + location.Host
		content, err = sl.loadFromURL(ctx, source)
	case strings.HasPrefix(source, DatabaseScheme):
		content, err = sl.loadFromStore(strings.TrimPrefix(source, DatabaseScheme))
	default:
		content, err = sl.loadFromLocalFile(ctx, source)
		if abs, absErr := filepath.Abs(source); absErr == nil {
			location = &url.URL{Path: filepath.ToSlash(abs)}
		}
	}
	if err != nil {
		return nil, err
	}

	doc, err := sl.processSpec(ctx, content, location)
	if err != nil {
		return nil, err
	}
	doc.Source = source
	doc.SourceHost = host

	sl.logger.Info("Loaded OpenAPI document",
		zap.String("source", source),
		zap.String("title", doc.Doc.Info.Title),
		zap.Int("paths", len(doc.Order)),
		zap.Int("diagnostics", len(doc.Diagnostics)))
	return doc, nil
}

// loadFromURL loads specification from a URL
func (sl *SpecLoader) loadFromURL(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to create request")
	}
	if sl.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+sl.bearerToken)
	}

	resp, err := sl.client.Do(req)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to fetch spec from URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, server.NewError(server.ErrorTypeDocumentLoad,
			fmt.Sprintf("HTTP %d when fetching spec", resp.StatusCode), source)
	}

	body, err := memory.ReadLimited(ctx, resp.Body, sl.maxSize)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to read spec from URL")
	}
	return body, nil
}

// loadFromLocalFile loads specification from a local file
func (sl *SpecLoader) loadFromLocalFile(ctx context.Context, filePath string) ([]byte, error) {
	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, server.NewError(server.ErrorTypeDocumentLoad, "Openapi file does not exist", filePath)
	}
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to open spec file")
	}
	defer f.Close()

	content, err := memory.ReadLimited(ctx, f, sl.maxSize)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to read spec file")
	}
	return content, nil
}

func (sl *SpecLoader) loadFromStore(name string) ([]byte, error) {
	if sl.store == nil {
		return nil, server.NewError(server.ErrorTypeDocumentLoad, "spec store not configured", "set --database-url to read "+DatabaseScheme+name)
	}
	spec, err := sl.store.GetByName(name)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentLoad, "failed to read spec from store")
	}
	if !spec.Active() {
		return nil, server.NewError(server.ErrorTypeDocumentLoad, "spec is not active", name)
	}
	return []byte(spec.SpecContent), nil
}

// Parse parses document content that has no source location.
func (sl *SpecLoader) Parse(ctx context.Context, content []byte) (*Document, error) {
	return sl.processSpec(ctx, content, nil)
}

// processSpec parses raw content. Structural validation problems become
// diagnostics; only unparseable content is an error.
func (sl *SpecLoader) processSpec(ctx context.Context, content []byte, location *url.URL) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentValidation, "failed to parse OpenAPI spec")
	}

	var (
		doc *openapi3.T
		err error
	)
	if isSwagger2(&root) {
		doc, err = convertSwagger2(&root)
	} else {
		loader := openapi3.NewLoader()
		loader.IsExternalRefsAllowed = true
		loader.Context = ctx
		if location != nil {
			doc, err = loader.LoadFromDataWithPath(content, location)
		} else {
			doc, err = loader.LoadFromData(content)
		}
	}
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDocumentValidation, "failed to parse OpenAPI spec")
	}
	if doc.Info == nil {
		doc.Info = &openapi3.Info{}
	}

	d := &Document{
		Doc:                 doc,
		Order:               documentOrder(&root, doc),
		SecuritySchemeOrder: securitySchemeOrder(&root),
		Content:             content,
		LoadedAt:            time.Now(),
	}

	if err := doc.Validate(ctx); err != nil {
		d.AddDiagnostic(SeverityError, "%s", err.Error())
	}
	return d, nil
}

func isSwagger2(root *yaml.Node) bool {
	v := mappingValue(documentNode(root), "swagger")
	return v != nil && strings.HasPrefix(v.Value, "2")
}

func convertSwagger2(root *yaml.Node) (*openapi3.T, error) {
	var raw any
	if err := root.Decode(&raw); err != nil {
		return nil, err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc2 openapi2.T
	if err := json.Unmarshal(data, &doc2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&doc2)
}

// IsURL reports whether source is fetched over the network.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// SpecName derives a store name from a file path or URL.
func SpecName(path string) string {
	if IsURL(path) {
		parts := strings.Split(path, "/")
		filename := parts[len(parts)-1]
		if idx := strings.Index(filename, "?"); idx != -1 {
			filename = filename[:idx]
		}
		return strings.ToLower(trimExtensions(filename))
	}

	return strings.ToLower(trimExtensions(filepath.Base(path)))
}

// trimExtensions drops every extension so "petstore3.oas.yaml" becomes "petstore3".
func trimExtensions(name string) string {
	if idx := strings.Index(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}
