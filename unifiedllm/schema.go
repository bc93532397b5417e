package unifiedllm

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SchemaType is a JSON schema primitive type name.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
)

// Schema is the canonical parameter schema stored by the tool registry.
// Each adapter translates it into its provider's native shape.
//
// Objects are closed: properties not listed are rejected by Validate. An
// object whose Properties map is nil is free-form and accepts any fields.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Object builds an object schema. required lists the mandatory property names.
func Object(props map[string]*Schema, required ...string) *Schema {
	if props == nil {
		props = map[string]*Schema{}
	}
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

func Array(description string, items *Schema) *Schema {
	return &Schema{Type: TypeArray, Description: description, Items: items}
}

// Enum builds a string schema restricted to values.
func Enum(description string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: description, Enum: values}
}

// PropertyNames returns the object's property names sorted for stable output.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToMap renders the schema as a JSON-schema dictionary.
func (s *Schema) ToMap() map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	m := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Type == TypeObject {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.ToMap()
		}
		m["properties"] = props
		if len(s.Required) > 0 {
			m["required"] = append([]string(nil), s.Required...)
		}
	}
	if s.Items != nil {
		m["items"] = s.Items.ToMap()
	}
	if len(s.Enum) > 0 {
		m["enum"] = append([]string(nil), s.Enum...)
	}
	return m
}

// SchemaValidationError identifies the argument that failed validation.
type SchemaValidationError struct {
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	if e.Field == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// Validate checks args against the object schema. The first problem found is
// returned; required fields are checked before types, unexpected fields last.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil {
		return nil
	}
	return s.validateObject("", args)
}

func (s *Schema) validateObject(path string, args map[string]any) error {
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return &SchemaValidationError{Field: joinPath(path, name), Reason: "missing required field"}
		}
	}
	if s.Properties == nil {
		return nil
	}
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, ok := s.Properties[name]
		if !ok {
			return &SchemaValidationError{Field: joinPath(path, name), Reason: "unexpected field"}
		}
		if err := prop.validateValue(joinPath(path, name), args[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateValue(path string, v any) error {
	if s == nil || s.Type == "" {
		return nil
	}
	mismatch := func() error {
		return &SchemaValidationError{Field: path, Reason: fmt.Sprintf("expected %s, got %s", s.Type, describeJSONType(v))}
	}
	switch s.Type {
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return mismatch()
		}
		if len(s.Enum) > 0 && !inEnum(s.Enum, str) {
			return &SchemaValidationError{Field: path, Reason: fmt.Sprintf("must be one of %s", strings.Join(s.Enum, ", "))}
		}
	case TypeInteger:
		if !isInteger(v) {
			return mismatch()
		}
	case TypeNumber:
		if !isNumber(v) {
			return mismatch()
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch()
		}
	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		for i, item := range items {
			if err := s.Items.validateValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch()
		}
		return s.validateObject(path, obj)
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func inEnum(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

func describeJSONType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if isInteger(v) {
		return "integer"
	}
	if isNumber(v) {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// SchemaFor reflects a Go struct into a canonical object schema. Field names
// and requiredness follow the struct's json and jsonschema tags.
func SchemaFor[T any]() *Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	var v T
	return SchemaFromJSONSchema(r.Reflect(v))
}

// SchemaFromJSONSchema converts a reflected JSON schema into the canonical
// shape. Keywords without a canonical equivalent are dropped.
func SchemaFromJSONSchema(js *jsonschema.Schema) *Schema {
	if js == nil {
		return nil
	}
	s := &Schema{
		Type:        SchemaType(js.Type),
		Description: js.Description,
		Required:    append([]string(nil), js.Required...),
	}
	if js.Properties != nil {
		s.Type = TypeObject
		s.Properties = convertProperties(js.Properties)
	}
	if js.Items != nil {
		s.Items = SchemaFromJSONSchema(js.Items)
	}
	for _, e := range js.Enum {
		if str, ok := e.(string); ok {
			s.Enum = append(s.Enum, str)
		}
	}
	if s.Type == TypeObject && s.Properties == nil {
		s.Properties = map[string]*Schema{}
	}
	return s
}

func convertProperties(props *orderedmap.OrderedMap[string, *jsonschema.Schema]) map[string]*Schema {
	out := make(map[string]*Schema, props.Len())
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = SchemaFromJSONSchema(pair.Value)
	}
	return out
}
