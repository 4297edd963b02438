// schema.go
package openapi2mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// BodyProperty is the reserved input property carrying the JSON request body.
const BodyProperty = "body"

// InputSchema is a tool input schema whose properties keep insertion order.
type InputSchema struct {
	order    []string
	props    map[string]json.RawMessage
	required []string
}

// NewInputSchema returns an empty object schema.
func NewInputSchema() *InputSchema {
	return &InputSchema{props: map[string]json.RawMessage{}}
}

// Set adds or replaces a property. A replaced property keeps its position.
func (s *InputSchema) Set(name string, schema json.RawMessage, required bool) {
	if _, exists := s.props[name]; !exists {
		s.order = append(s.order, name)
	}
	s.props[name] = schema
	if required && !containsString(s.required, name) {
		s.required = append(s.required, name)
	}
}

// Properties returns property names in insertion order.
func (s *InputSchema) Properties() []string {
	return append([]string(nil), s.order...)
}

// Property returns the JSON schema of one property.
func (s *InputSchema) Property(name string) (json.RawMessage, bool) {
	p, ok := s.props[name]
	return p, ok
}

// Required returns the required property names in encounter order.
func (s *InputSchema) Required() []string {
	return append([]string(nil), s.required...)
}

// MarshalJSON emits {"type":"object","properties":{...},"required":[...]}.
func (s *InputSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	for i, name := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(s.props[name])
	}
	buf.WriteString(`},"required":`)
	required := s.required
	if required == nil {
		required = []string{}
	}
	req, err := json.Marshal(required)
	if err != nil {
		return nil, err
	}
	buf.Write(req)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BuildInputSchema merges the operation inputs into one object schema, in
// this order: the application/json request body under "body", then path item
// parameters, then operation parameters. Header and cookie parameters are not
// tool inputs. A later property with an existing name replaces the earlier one.
//
// Example usage:
//
//	item := doc.Paths.Value("/pet/{petId}")
//	schema, err := openapi2mcp.BuildInputSchema(item.Get, item)
//	raw, _ := json.Marshal(schema)
//	// {"type":"object","properties":{"petId":{...}},"required":["petId"]}
func BuildInputSchema(op *openapi3.Operation, item *openapi3.PathItem) (*InputSchema, error) {
	schema := NewInputSchema()

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body := op.RequestBody.Value
		if mt := getContentByType(body.Content, "application/json"); mt != nil && mt.Schema != nil {
			raw, err := schemaJSON(mt.Schema, body.Description)
			if err != nil {
				return nil, fmt.Errorf("request body: %w", err)
			}
			schema.Set(BodyProperty, raw, body.Required)
		}
	}

	var params []*openapi3.ParameterRef
	if item != nil {
		params = append(params, item.Parameters...)
	}
	params = append(params, op.Parameters...)

	for _, paramRef := range params {
		if paramRef == nil || paramRef.Value == nil {
			continue
		}
		p := paramRef.Value
		if p.In == openapi3.ParameterInHeader || p.In == openapi3.ParameterInCookie {
			continue
		}
		raw, err := schemaJSON(parameterSchema(p), p.Description)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		schema.Set(p.Name, raw, p.Required)
	}

	return schema, nil
}

// parameterSchema returns the schema of a parameter, looking into its
// content map when it has no schema of its own.
func parameterSchema(p *openapi3.Parameter) *openapi3.SchemaRef {
	if p.Schema != nil {
		return p.Schema
	}
	if mt := getContentByType(p.Content, "application/json"); mt != nil {
		return mt.Schema
	}
	for _, mt := range p.Content {
		if mt != nil && mt.Schema != nil {
			return mt.Schema
		}
	}
	return nil
}

// getContentByType finds a media type by its base type, ignoring parameters
// such as charset.
func getContentByType(content openapi3.Content, mediaType string) *openapi3.MediaType {
	if mt, ok := content[mediaType]; ok {
		return mt
	}
	for name, mt := range content {
		base := name
		if idx := strings.IndexByte(name, ';'); idx > 0 {
			base = strings.TrimSpace(name[:idx])
		}
		if strings.EqualFold(base, mediaType) {
			return mt
		}
	}
	return nil
}

// schemaJSON renders a schema with every reference inlined. An empty
// description is filled from fallback.
func schemaJSON(ref *openapi3.SchemaRef, fallback string) (json.RawMessage, error) {
	if ref == nil || ref.Value == nil {
		return json.RawMessage("{}"), nil
	}
	s := inlineSchema(ref, map[*openapi3.Schema]bool{})
	if s.Description == "" {
		s.Description = fallback
	}
	return json.Marshal(s)
}

// inlineSchema deep-copies a schema, dropping $ref so the value is emitted in
// place. A schema that contains itself is cut to {} at the point of recursion.
func inlineSchema(ref *openapi3.SchemaRef, visiting map[*openapi3.Schema]bool) *openapi3.Schema {
	if ref == nil || ref.Value == nil {
		return &openapi3.Schema{}
	}
	if visiting[ref.Value] {
		return &openapi3.Schema{}
	}
	visiting[ref.Value] = true
	defer delete(visiting, ref.Value)

	cp := *ref.Value
	cp.OneOf = inlineRefs(ref.Value.OneOf, visiting)
	cp.AnyOf = inlineRefs(ref.Value.AnyOf, visiting)
	cp.AllOf = inlineRefs(ref.Value.AllOf, visiting)
	cp.Not = inlineRef(ref.Value.Not, visiting)
	cp.Items = inlineRef(ref.Value.Items, visiting)
	cp.AdditionalProperties.Schema = inlineRef(ref.Value.AdditionalProperties.Schema, visiting)

	if ref.Value.Properties != nil {
		cp.Properties = make(openapi3.Schemas, len(ref.Value.Properties))
		for name, sub := range ref.Value.Properties {
			cp.Properties[name] = inlineRef(sub, visiting)
		}
	}
	return &cp
}

func inlineRef(ref *openapi3.SchemaRef, visiting map[*openapi3.Schema]bool) *openapi3.SchemaRef {
	if ref == nil {
		return nil
	}
	return &openapi3.SchemaRef{Value: inlineSchema(ref, visiting)}
}

func inlineRefs(refs openapi3.SchemaRefs, visiting map[*openapi3.Schema]bool) openapi3.SchemaRefs {
	if refs == nil {
		return nil
	}
	out := make(openapi3.SchemaRefs, len(refs))
	for i, sub := range refs {
		out[i] = inlineRef(sub, visiting)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
