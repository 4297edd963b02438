package openapi2mcp

import (
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseNamingStrategy(t *testing.T) {
	for _, s := range NamingStrategies {
		got, err := ParseNamingStrategy(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseNamingStrategy("")
	require.NoError(t, err)
	assert.Equal(t, NamingDefault, got)

	got, err = ParseNamingStrategy("OperationId")
	require.NoError(t, err)
	assert.Equal(t, NamingOperationID, got)

	_, err = ParseNamingStrategy("summary")
	assert.Error(t, err)
}

func TestCatalog_NamingStrategies(t *testing.T) {
	tests := []struct {
		strategy NamingStrategy
		want     []string
	}{
		{NamingDefault, []string{"GreetOld_FromExtension", "GreetNew_FromOperationId"}},
		{NamingOperationID, []string{"GreetOld_FromOperationId", "GreetNew_FromOperationId"}},
		{NamingVerbAndPath, []string{"Get_greet_old", "Get_greet_new"}},
		{NamingExtension, []string{"GreetOld_FromExtension"}},
	}

	doc := loadFixture(t, "extensions.yaml", "")
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			catalog := BuildCatalog(doc, &ToolGenOptions{NamingStrategy: tt.strategy})
			assert.Equal(t, tt.want, toolNames(catalog))
		})
	}
}

func TestCatalog_Descriptions(t *testing.T) {
	doc := loadFixture(t, "extensions.yaml", "")
	catalog := BuildCatalog(doc, nil)

	old, ok := catalog.Lookup("GreetOld_FromExtension")
	require.True(t, ok)
	assert.Equal(t, "From get /greet/old operation description", old.Description)

	recent, ok := catalog.Lookup("GreetNew_FromOperationId")
	require.True(t, ok)
	assert.Equal(t, "From get /greet/new extension description", recent.Description)

	_, ok = catalog.Lookup("GreetDisabled_FromExtension")
	assert.False(t, ok, "disabled operations are not tools")
	assert.Empty(t, catalog.Omitted(), "disabled operations are not reported as omitted")
}

func TestToolDescription_PathItemFallback(t *testing.T) {
	op := &openapi3.Operation{}
	item := &openapi3.PathItem{Description: "From the path"}
	assert.Equal(t, "From the path", ToolDescription(op, item))
	assert.Equal(t, "", ToolDescription(op, &openapi3.PathItem{}))
}

func TestToolEnabled(t *testing.T) {
	assert.True(t, ToolEnabled(&openapi3.Operation{}))
	assert.False(t, ToolEnabled(&openapi3.Operation{Extensions: map[string]any{ExtToolEnabled: false}}))
	assert.True(t, ToolEnabled(&openapi3.Operation{Extensions: map[string]any{ExtToolEnabled: "false"}}))
}

func TestInstructions(t *testing.T) {
	doc := loadFixture(t, "extensions.yaml", "")
	assert.Equal(t, "echo echo echo...", Instructions(doc.Doc))
	assert.Equal(t, "", Instructions(nil))
}

func TestVerbAndPathName(t *testing.T) {
	assert.Equal(t, "Get_greet_old", VerbAndPathName("GET", "/greet/{old}"))
	assert.Equal(t, "Post_valid-tool-name_test", VerbAndPathName("POST", "/valid-tool-name/{test}"))
	assert.Equal(t, "Delete_pet_petId", VerbAndPathName("delete", "/pet/{petId}"))
}

func TestVerbAndPathName_Property(t *testing.T) {
	segment := rapid.StringMatching(`\{?[a-zA-Z0-9_-]{1,8}\}?`)
	method := rapid.SampledFrom([]string{"GET", "PUT", "POST", "DELETE", "PATCH", "HEAD", "OPTIONS", "TRACE"})

	rapid.Check(t, func(t *rapid.T) {
		m := method.Draw(t, "method")
		segments := rapid.SliceOfN(segment, 1, 4).Draw(t, "segments")
		path := "/" + strings.Join(segments, "/")

		name := VerbAndPathName(m, path)
		if strings.ContainsAny(name, "{}/") {
			t.Fatalf("name %q keeps template characters", name)
		}
		if !strings.HasPrefix(name, m[:1]+strings.ToLower(m[1:])+"_") {
			t.Fatalf("name %q does not start with the verb", name)
		}
		if len(name) <= 64 && !ValidToolName.MatchString(name) {
			t.Fatalf("short name %q should be valid", name)
		}
	})
}
