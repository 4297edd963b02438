package openapi2mcp

import (
	"fmt"

	"github.com/fhoering/openapi-to-mcp/pkg/loader"
)

// Lint checks the document for problems the catalog builder would skip over
// silently, and records them as error diagnostics on the document:
//   - operations whose default-strategy name is not a valid tool name
//   - x-mcp-* extensions holding a value of the wrong type
//
// The naming strategy configured for the server plays no part here.
func Lint(d *loader.Document) []loader.Diagnostic {
	var found []loader.Diagnostic
	report := func(format string, args ...any) {
		found = append(found, loader.Diagnostic{Severity: loader.SeverityError, Message: fmt.Sprintf(format, args...)})
	}

	if d.Doc.Info != nil {
		if msg := extensionTypeError(d.Doc.Info.Extensions, ExtInstructions, "string"); msg != "" {
			report("%s", msg)
		}
	}

	for _, ref := range d.Operations() {
		name := ToolName(ref.Operation, ref.Method, ref.Path, NamingDefault)
		if !ValidToolName.MatchString(name) {
			report("Operation %s %s translate to an invalid tool name: %s", verbTitle(ref.Method), ref.Path, name)
		}
		for _, check := range []struct{ key, kind string }{
			{ExtToolName, "string"},
			{ExtToolDescription, "string"},
			{ExtToolEnabled, "boolean"},
		} {
			if msg := extensionTypeError(ref.Operation.Extensions, check.key, check.kind); msg != "" {
				report("%s (%s %s)", msg, ref.Method, ref.Path)
			}
		}
	}

	d.Diagnostics = append(d.Diagnostics, found...)
	return found
}

func extensionTypeError(ext map[string]any, key, kind string) string {
	v, ok := ext[key]
	if !ok {
		return ""
	}
	switch kind {
	case "string":
		if _, ok := v.(string); ok {
			return ""
		}
	case "boolean":
		if _, ok := v.(bool); ok {
			return ""
		}
	}
	return fmt.Sprintf("Extension %s must have a %s value", key, kind)
}
