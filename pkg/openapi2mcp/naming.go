package openapi2mcp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Vendor extensions read from the document.
const (
	ExtToolName        = "x-mcp-tool-name"
	ExtToolDescription = "x-mcp-tool-description"
	ExtToolEnabled     = "x-mcp-tool-enabled"
	ExtInstructions    = "x-mcp-instructions"
)

// ValidToolName is the name format MCP clients accept.
var ValidToolName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// NamingStrategy selects where a tool name comes from.
type NamingStrategy string

const (
	// NamingDefault tries the extension, then the operationId, then verb and path.
	NamingDefault     NamingStrategy = "extension_or_operationid_or_verbandpath"
	NamingExtension   NamingStrategy = "extension"
	NamingOperationID NamingStrategy = "operationid"
	NamingVerbAndPath NamingStrategy = "verbandpath"
)

// NamingStrategies lists the accepted strategy values.
var NamingStrategies = []NamingStrategy{NamingDefault, NamingExtension, NamingOperationID, NamingVerbAndPath}

// ParseNamingStrategy validates a strategy name. Empty means NamingDefault.
func ParseNamingStrategy(s string) (NamingStrategy, error) {
	if s == "" {
		return NamingDefault, nil
	}
	for _, ns := range NamingStrategies {
		if strings.EqualFold(s, string(ns)) {
			return ns, nil
		}
	}
	return "", fmt.Errorf("invalid tool naming strategy: %s (valid: %s, %s, %s, %s)",
		s, NamingDefault, NamingExtension, NamingOperationID, NamingVerbAndPath)
}

// ToolName resolves the tool name of an operation. It returns "" when the
// strategy's source is absent.
func ToolName(op *openapi3.Operation, method, path string, strategy NamingStrategy) string {
	switch strategy {
	case NamingExtension:
		name, _ := stringExtension(op.Extensions, ExtToolName)
		return name
	case NamingOperationID:
		return op.OperationID
	case NamingVerbAndPath:
		return VerbAndPathName(method, path)
	default:
		if name, ok := stringExtension(op.Extensions, ExtToolName); ok {
			return name
		}
		if op.OperationID != "" {
			return op.OperationID
		}
		return VerbAndPathName(method, path)
	}
}

// VerbAndPathName derives a name from the verb and path template:
// GET /greet/{old} gives Get_greet_old.
func VerbAndPathName(method, path string) string {
	return verbTitle(method) + strings.NewReplacer("{", "", "}", "", "/", "_").Replace(path)
}

func verbTitle(method string) string {
	if method == "" {
		return ""
	}
	lower := strings.ToLower(method)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// ToolDescription resolves the description: extension, then operation, then
// path item. Empty means none.
func ToolDescription(op *openapi3.Operation, item *openapi3.PathItem) string {
	if desc, ok := stringExtension(op.Extensions, ExtToolDescription); ok {
		return desc
	}
	if op.Description != "" {
		return op.Description
	}
	if item != nil {
		return item.Description
	}
	return ""
}

// ToolEnabled reads the enabled extension, true when absent or not a boolean.
func ToolEnabled(op *openapi3.Operation) bool {
	if v, ok := op.Extensions[ExtToolEnabled].(bool); ok {
		return v
	}
	return true
}

// Instructions reads the server instructions extension from the info object.
func Instructions(doc *openapi3.T) string {
	if doc == nil || doc.Info == nil {
		return ""
	}
	s, _ := stringExtension(doc.Info.Extensions, ExtInstructions)
	return s
}

func stringExtension(ext map[string]any, key string) (string, bool) {
	v, ok := ext[key].(string)
	return v, ok
}
