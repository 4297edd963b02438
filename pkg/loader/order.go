package loader

import (
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// PathOrder is one path template and its methods in declaration order.
type PathOrder struct {
	Path    string
	Methods []string
}

// OperationRef points at one operation of a Document.
type OperationRef struct {
	Path      string
	Method    string
	PathItem  *openapi3.PathItem
	Operation *openapi3.Operation
}

var operationKeys = map[string]string{
	"get":     http.MethodGet,
	"put":     http.MethodPut,
	"post":    http.MethodPost,
	"delete":  http.MethodDelete,
	"options": http.MethodOptions,
	"head":    http.MethodHead,
	"patch":   http.MethodPatch,
	"trace":   http.MethodTrace,
}

// methodRank orders methods when the source text cannot be walked.
var methodRank = []string{
	http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete,
	http.MethodOptions, http.MethodHead, http.MethodPatch, http.MethodTrace,
}

// Operations returns every operation in discovery order: paths as declared,
// then methods as declared within each path.
func (d *Document) Operations() []OperationRef {
	if d.Doc == nil || d.Doc.Paths == nil {
		return nil
	}

	var ops []OperationRef
	for _, p := range d.Order {
		item := d.Doc.Paths.Value(p.Path)
		if item == nil {
			continue
		}
		for _, method := range p.Methods {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			ops = append(ops, OperationRef{Path: p.Path, Method: method, PathItem: item, Operation: op})
		}
	}
	return ops
}

// securitySchemeOrder lists components.securitySchemes keys as declared.
func securitySchemeOrder(root *yaml.Node) []string {
	schemes := mappingValue(mappingValue(documentNode(root), "components"), "securitySchemes")
	if schemes == nil || schemes.Kind != yaml.MappingNode {
		return nil
	}
	names := make([]string, 0, len(schemes.Content)/2)
	for i := 0; i+1 < len(schemes.Content); i += 2 {
		names = append(names, schemes.Content[i].Value)
	}
	return names
}

// documentOrder walks the raw document for the order of paths and methods,
// which kin-openapi does not keep. Paths the walk misses are appended sorted.
func documentOrder(root *yaml.Node, doc *openapi3.T) []PathOrder {
	var order []PathOrder
	seen := map[string]bool{}

	if paths := mappingValue(documentNode(root), "paths"); paths != nil && paths.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(paths.Content); i += 2 {
			key, item := paths.Content[i], paths.Content[i+1]
			if seen[key.Value] || item.Kind != yaml.MappingNode {
				continue
			}
			po := PathOrder{Path: key.Value}
			for j := 0; j+1 < len(item.Content); j += 2 {
				if method, ok := operationKeys[strings.ToLower(item.Content[j].Value)]; ok {
					po.Methods = append(po.Methods, method)
				}
			}
			seen[key.Value] = true
			order = append(order, po)
		}
	}

	if doc == nil || doc.Paths == nil {
		return order
	}

	var missing []string
	for path := range doc.Paths.Map() {
		if !seen[path] {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	for _, path := range missing {
		item := doc.Paths.Value(path)
		po := PathOrder{Path: path}
		for _, method := range methodRank {
			if item.GetOperation(method) != nil {
				po.Methods = append(po.Methods, method)
			}
		}
		order = append(order, po)
	}
	return order
}

func documentNode(root *yaml.Node) *yaml.Node {
	if root != nil && root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		return root.Content[0]
	}
	return root
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
