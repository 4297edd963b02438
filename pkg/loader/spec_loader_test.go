package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhoering/openapi-to-mcp/pkg/models"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

const petstore = "../openapi2mcp/testdata/petstore3.yaml"

type fakeSpecSource map[string]*models.OpenAPISpec

func (f fakeSpecSource) GetByName(name string) (*models.OpenAPISpec, error) {
	spec, ok := f[name]
	if !ok {
		return nil, errors.New("openapi spec with name " + name + " not found")
	}
	return spec, nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	doc, err := NewSpecLoader().Load(context.Background(), petstore)
	require.NoError(t, err)

	assert.Equal(t, "Swagger Petstore - OpenAPI 3.0", doc.Doc.Info.Title)
	assert.Equal(t, petstore, doc.Source)
	assert.Empty(t, doc.SourceHost)
	assert.Empty(t, doc.Errors())
	require.NotEmpty(t, doc.Order)
	assert.Equal(t, PathOrder{Path: "/pet", Methods: []string{http.MethodPut, http.MethodPost}}, doc.Order[0])
}

func TestLoadOrder(t *testing.T) {
	doc, err := NewSpecLoader().Load(context.Background(), "testdata/ordered.json")
	require.NoError(t, err)

	assert.Equal(t, []PathOrder{
		{Path: "/zebra", Methods: []string{http.MethodPost, http.MethodGet}},
		{Path: "/antelope", Methods: []string{http.MethodGet}},
	}, doc.Order)
	assert.Equal(t, []string{"zeta", "alpha"}, doc.SecuritySchemeOrder)

	var ids []string
	for _, ref := range doc.Operations() {
		ids = append(ids, ref.Operation.OperationID)
	}
	assert.Equal(t, []string{"createZebra", "listZebras", "listAntelopes"}, ids)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewSpecLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDocumentLoad))
	assert.Contains(t, err.Error(), "Openapi file does not exist")
}

func TestLoadUnparseable(t *testing.T) {
	path := writeTemp(t, "broken.yaml", "openapi: [3.0.0\ninfo: {")
	_, err := NewSpecLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDocumentValidation))
}

func TestLoadInvalidDocumentIsDiagnostic(t *testing.T) {
	path := writeTemp(t, "invalid.yaml", `openapi: 3.0.3
info:
  title: Invalid
  version: "1"
paths:
  /things:
    get:
      operationId: listThings
`)
	doc, err := NewSpecLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Errors(), 1)
	assert.Equal(t, SeverityError, doc.Errors()[0].Severity)
	assert.Len(t, doc.Operations(), 1)
}

func TestLoadURL(t *testing.T) {
	content, err := os.ReadFile(petstore)
	require.NoError(t, err)

	auths := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		if r.URL.Path != "/openapi.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	sl := NewSpecLoader(WithHTTPClient(srv.Client()), WithBearerToken("spec-token"))
	doc, err := sl.Load(context.Background(), srv.URL+"/openapi.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Bearer spec-token", <-auths)
	assert.Equal(t, srv.URL, doc.SourceHost)
	assert.Equal(t, "/api/v3", doc.Doc.Servers[0].URL)

	_, err = sl.Load(context.Background(), srv.URL+"/missing.yaml")
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDocumentLoad))
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestLoadFromStore(t *testing.T) {
	content, err := os.ReadFile(petstore)
	require.NoError(t, err)

	inactive := models.NewOpenAPISpec("retired", string(content), "yaml")
	off := false
	inactive.IsActive = &off

	store := fakeSpecSource{
		"petstore": models.NewOpenAPISpec("petstore", string(content), "yaml"),
		"retired":  inactive,
	}
	sl := NewSpecLoader(WithSpecSource(store))

	doc, err := sl.Load(context.Background(), "db:petstore")
	require.NoError(t, err)
	assert.Equal(t, "db:petstore", doc.Source)
	assert.Empty(t, doc.SourceHost)
	assert.NotEmpty(t, doc.Operations())

	_, err = sl.Load(context.Background(), "db:retired")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec is not active")

	_, err = sl.Load(context.Background(), "db:unknown")
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDocumentLoad))

	_, err = NewSpecLoader().Load(context.Background(), "db:petstore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec store not configured")
}

func TestLoadSwagger2(t *testing.T) {
	doc, err := NewSpecLoader().Load(context.Background(), "testdata/swagger2.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Legacy Inventory", doc.Doc.Info.Title)
	require.Len(t, doc.Doc.Servers, 1)
	assert.Equal(t, "https://api.example.com/v1", doc.Doc.Servers[0].URL)

	assert.Equal(t, []PathOrder{
		{Path: "/items/{itemId}", Methods: []string{http.MethodGet, http.MethodDelete}},
		{Path: "/items", Methods: []string{http.MethodPost}},
	}, doc.Order)

	create := doc.Doc.Paths.Value("/items").Post
	require.NotNil(t, create.RequestBody)
	require.NotNil(t, create.RequestBody.Value.Content.Get("application/json"))
}

func TestSpecName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"petstore3.yaml", "petstore3"},
		{"/specs/Petstore.oas.json", "petstore"},
		{"https://example.com/specs/Inventory.yaml?v=2", "inventory"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SpecName(tt.in), tt.in)
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/openapi.yaml"))
	assert.True(t, IsURL("http://localhost:8080/spec"))
	assert.False(t, IsURL("db:petstore"))
	assert.False(t, IsURL("./openapi.yaml"))
}

func TestDiagnosticString(t *testing.T) {
	d := &Document{}
	d.AddDiagnostic(SeverityWarning, "server %s unused", "x")
	assert.Equal(t, "[warning] server x unused", d.Diagnostics[0].String())
	assert.Empty(t, d.Errors())
}

func TestLoadTooLarge(t *testing.T) {
	_, err := NewSpecLoader(WithMaxDocumentSize(64)).Load(context.Background(), petstore)
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeDocumentLoad))
	assert.Contains(t, err.Error(), "64 bytes")
}
