package openapi2mcp

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// ToolDescriptor is one callable tool and the endpoint it is bound to.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema *InputSchema
	// Schema is InputSchema rendered once at build time.
	Schema json.RawMessage
	Method string
	// Path is the path template, AbsolutePath the server URL plus Path.
	Path         string
	AbsolutePath string
}

// Title is the human label "<VERB> <path-template>".
func (t ToolDescriptor) Title() string {
	return t.Method + " " + t.Path
}

// OmittedOperation records an operation left out of the catalog.
type OmittedOperation struct {
	Method string
	Path   string
	Name   string
	Reason string
}

// Catalog is the immutable list of tools built from one document.
type Catalog struct {
	tools   []ToolDescriptor
	byName  map[string]int
	omitted []OmittedOperation
}

// Tools returns the tools in discovery order.
func (c *Catalog) Tools() []ToolDescriptor {
	return append([]ToolDescriptor(nil), c.tools...)
}

// Lookup finds a tool by exact name.
func (c *Catalog) Lookup(name string) (ToolDescriptor, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.tools[i], true
}

// Len is the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}

// Omitted lists the operations that did not make it into the catalog,
// disabled ones excluded.
func (c *Catalog) Omitted() []OmittedOperation {
	return append([]OmittedOperation(nil), c.omitted...)
}

// BuildCatalog builds the tool catalog of a normalized document. Operations
// that are disabled, resolve to no or an invalid name, repeat an earlier name,
// or produce an unusable input schema are omitted.
//
// Example usage:
//
//	doc, _ := loader.NewSpecLoader().Load(ctx, "petstore3.yaml")
//	openapi2mcp.Normalize(doc, "https://petstore3.swagger.io")
//	catalog := openapi2mcp.BuildCatalog(doc, &openapi2mcp.ToolGenOptions{})
//	for _, tool := range catalog.Tools() {
//		fmt.Println(tool.Name, tool.Title())
//	}
func BuildCatalog(d *loader.Document, opts *ToolGenOptions) *Catalog {
	opts = opts.withDefaults()
	serverURL := PrimaryServerURL(d)

	c := &Catalog{byName: map[string]int{}}
	omit := func(ref loader.OperationRef, name, reason string) {
		c.omitted = append(c.omitted, OmittedOperation{Method: ref.Method, Path: ref.Path, Name: name, Reason: reason})
		server.NewError(server.ErrorTypeCatalogBuild,
			fmt.Sprintf("Operation %s %s omitted", ref.Method, ref.Path), reason).LogError(opts.Logger)
	}

	for _, ref := range d.Operations() {
		if !ToolEnabled(ref.Operation) {
			opts.Logger.Debug("Operation disabled", zap.String("method", ref.Method), zap.String("path", ref.Path))
			continue
		}

		name := ToolName(ref.Operation, ref.Method, ref.Path, opts.NamingStrategy)
		if name == "" {
			omit(ref, name, fmt.Sprintf("no tool name with strategy %s", opts.NamingStrategy))
			continue
		}
		if !ValidToolName.MatchString(name) {
			omit(ref, name, "invalid tool name: "+name)
			continue
		}
		if _, dup := c.byName[name]; dup {
			omit(ref, name, "duplicate tool name: "+name)
			continue
		}

		input, err := BuildInputSchema(ref.Operation, ref.PathItem)
		if err != nil {
			omit(ref, name, err.Error())
			continue
		}
		raw, err := json.Marshal(input)
		if err != nil {
			omit(ref, name, err.Error())
			continue
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
			omit(ref, name, "unusable input schema: "+err.Error())
			continue
		}

		c.byName[name] = len(c.tools)
		c.tools = append(c.tools, ToolDescriptor{
			Name:         name,
			Description:  ToolDescription(ref.Operation, ref.PathItem),
			InputSchema:  input,
			Schema:       raw,
			Method:       ref.Method,
			Path:         ref.Path,
			AbsolutePath: serverURL + ref.Path,
		})
	}

	opts.Metrics.SetCatalogTools(len(c.tools))
	opts.Logger.Info("Tool catalog built",
		zap.Int("tools", len(c.tools)),
		zap.Int("omitted", len(c.omitted)),
		zap.String("naming_strategy", string(opts.NamingStrategy)))
	return c
}
