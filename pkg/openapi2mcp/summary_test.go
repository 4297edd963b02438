package openapi2mcp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintToolSummary(t *testing.T) {
	doc := loadFixture(t, "invalid_tool_names.yaml", "https://api.example.com")
	var buf bytes.Buffer
	PrintToolSummary(&buf, BuildCatalog(doc, nil))

	out := buf.String()
	assert.Contains(t, out, "Total tools: 2\n")
	assert.Contains(t, out, "validOperationId")
	assert.Contains(t, out, "POST /valid-tool-name/{test}")
	assert.Contains(t, out, "Omitted operations: 3\n")
	assert.Contains(t, out, "GET /invalid-tool-name: invalid tool name: SuperSuperSuperSuperLongOperationIdSoTheToolNameIsLongerThan64Chars")
}
