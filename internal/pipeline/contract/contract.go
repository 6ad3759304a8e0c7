// Package contract checks decoded payloads against a declared shape.
//
// Validation is a soft gate: a Validator reports issues and callers log
// them, but the decoded value is still used. Check never panics.
package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Issue is a single contract violation.
type Issue struct {
	Path    string
	Message string
}

// String renders the issue as "path: message". The root path renders as "$".
func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "$"
	}
	return path + ": " + i.Message
}

// Validator validates a value and returns its issues, empty when valid.
type Validator interface {
	Validate(value any) []Issue
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(value any) []Issue

func (f ValidatorFunc) Validate(value any) []Issue { return f(value) }

// Result is the outcome of Check.
type Result struct {
	OK     bool
	Issues []string
}

// Check runs v against value. A nil validator accepts everything; a
// panicking validator is reported as an issue.
func Check(v Validator, value any) (res Result) {
	if v == nil {
		return Result{OK: true}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{OK: false, Issues: []string{Issue{Message: fmt.Sprintf("validator panicked: %v", r)}.String()}}
		}
	}()

	issues := v.Validate(value)
	if len(issues) == 0 {
		return Result{OK: true}
	}

	rendered := make([]string, len(issues))
	for i, issue := range issues {
		rendered[i] = issue.String()
	}
	return Result{OK: false, Issues: rendered}
}

// toGeneric converts value into the shape json.Unmarshal produces into an any.
func toGeneric(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, float64, string, map[string]any, []any:
		return v, nil
	case json.RawMessage:
		return unmarshalGeneric(v)
	case []byte:
		return unmarshalGeneric(v)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return unmarshalGeneric(data)
}

func unmarshalGeneric(data []byte) (any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

func indexPath(base string, i int) string {
	return joinPath(base, strconv.Itoa(i))
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
