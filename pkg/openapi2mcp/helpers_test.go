package openapi2mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fhoering/openapi-to-mcp/pkg/loader"
)

// loadFixture loads testdata/<name> and normalizes it with hostOverride.
func loadFixture(t *testing.T, name, hostOverride string) *loader.Document {
	t.Helper()
	doc, err := loader.NewSpecLoader().Load(context.Background(), filepath.Join("testdata", name))
	require.NoError(t, err)
	Normalize(doc, hostOverride)
	return doc
}

func toolNames(c *Catalog) []string {
	var names []string
	for _, tool := range c.Tools() {
		names = append(names, tool.Name)
	}
	return names
}
