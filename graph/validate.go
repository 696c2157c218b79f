package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ValidationSchema is a minimal JSON-Schema subset: an object schema
// with typed properties, a required list, and recursive nesting via
// Properties/Items. It intentionally covers only what the illustrative
// workflow and its tests exercise — this package does not aim to be a
// general JSON-Schema implementation, since nothing in the retrieval
// pack imports one for a dynamic map[string]any state.
type ValidationSchema struct {
	Type       string                       // "object", "array", "string", "number", "boolean", "" (any)
	Properties map[string]*ValidationSchema // when Type == "object"
	Required   []string                     // required property names, when Type == "object"
	Items      *ValidationSchema            // when Type == "array"
}

// validationIssue is one path/message pair accumulated while walking a
// value against a schema.
type validationIssue struct {
	path    string
	message string
}

// Validate checks value against s, returning a joined message in the
// format "<path>: <message>; <path>: <message>" (callers prefix it per
// §4.6) or nil if value conforms. value is marshaled to JSON once and
// walked with gjson, so schema paths use gjson's own dot/index syntax
// (the same addressing a caller would use to query the failing field
// back out of the raw state).
func (s *ValidationSchema) Validate(value any) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for validation: %w", err)
	}
	root := gjson.ParseBytes(raw)

	var issues []validationIssue
	walkValidate(s, root, "(root)", &issues)
	if len(issues) == 0 {
		return nil
	}
	parts := make([]string, len(issues))
	for i, iss := range issues {
		parts[i] = fmt.Sprintf("%s: %s", iss.path, iss.message)
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

func walkValidate(s *ValidationSchema, value gjson.Result, path string, issues *[]validationIssue) {
	if s.Type == "" {
		return
	}
	switch s.Type {
	case "object":
		if !value.IsObject() {
			*issues = append(*issues, validationIssue{path, "expected object"})
			return
		}
		for _, req := range s.Required {
			if !value.Get(gjsonEscape(req)).Exists() {
				*issues = append(*issues, validationIssue{joinPath(path, req), "required field missing"})
			}
		}
		for name, propSchema := range s.Properties {
			v := value.Get(gjsonEscape(name))
			if !v.Exists() {
				continue
			}
			walkValidate(propSchema, v, joinPath(path, name), issues)
		}
	case "array":
		if !value.IsArray() {
			*issues = append(*issues, validationIssue{path, "expected array"})
			return
		}
		if s.Items != nil {
			for i, v := range value.Array() {
				walkValidate(s.Items, v, fmt.Sprintf("%s.%d", path, i), issues)
			}
		}
	case "string":
		if value.Type != gjson.String {
			*issues = append(*issues, validationIssue{path, "expected string"})
		}
	case "number":
		if value.Type != gjson.Number {
			*issues = append(*issues, validationIssue{path, "expected number"})
		}
	case "boolean":
		if value.Type != gjson.True && value.Type != gjson.False {
			*issues = append(*issues, validationIssue{path, "expected boolean"})
		}
	}
}

// gjsonEscape escapes field names so keys containing '.' or '*' don't
// get mistaken for gjson path syntax.
func gjsonEscape(field string) string {
	if !strings.ContainsAny(field, ".*?") {
		return field
	}
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(field)
}

func joinPath(base, field string) string {
	if base == "(root)" {
		return field
	}
	return base + "." + field
}

// StateValidator implements C2's three operations. It is a no-op when
// the relevant schema argument is nil, matching §4.6's "no-op when no
// schema is configured" contract.
type StateValidator struct{}

// ValidateNodeInput checks state against a node's input schema. On
// failure the error message is formatted
// `Node "<id>" input validation failed: <path>: <message>; …`.
func (StateValidator) ValidateNodeInput(nodeID string, state State, schema *ValidationSchema) (State, error) {
	if schema == nil {
		return state, nil
	}
	if err := schema.Validate(map[string]any(state)); err != nil {
		return state, fmt.Errorf("Node %q input validation failed: %w", nodeID, err)
	}
	return state, nil
}

// ValidateNodeOutput checks state against a node's output schema. On
// failure the error message is formatted
// `Node "<id>" output validation failed: <path>: <message>; …`.
func (StateValidator) ValidateNodeOutput(nodeID string, state State, schema *ValidationSchema) (State, error) {
	if schema == nil {
		return state, nil
	}
	if err := schema.Validate(map[string]any(state)); err != nil {
		return state, fmt.Errorf("Node %q output validation failed: %w", nodeID, err)
	}
	return state, nil
}

// Validate checks state against the graph-level output schema. On
// failure the error message is formatted
// `State validation failed: <path>: <message>; …`.
func (StateValidator) Validate(state State, schema *ValidationSchema) (State, error) {
	if schema == nil {
		return state, nil
	}
	if err := schema.Validate(map[string]any(state)); err != nil {
		return state, fmt.Errorf("State validation failed: %w", err)
	}
	return state, nil
}
