package contract

import "fmt"

// Rule is a composable structural check. Every Rule is also a Validator
// rooted at "$".
type Rule interface {
	Validator
	check(path string, value any) []Issue
}

type baseRule struct {
	fn func(path string, value any) []Issue
}

func (r baseRule) check(path string, value any) []Issue { return r.fn(path, value) }

func (r baseRule) Validate(value any) []Issue {
	generic, err := toGeneric(value)
	if err != nil {
		return []Issue{{Message: fmt.Sprintf("cannot inspect value: %v", err)}}
	}
	return r.fn("", generic)
}

func newRule(fn func(path string, value any) []Issue) Rule {
	return baseRule{fn: fn}
}

func kindRule(kind string) Rule {
	return newRule(func(path string, value any) []Issue {
		if got := kindOf(value); got != kind {
			return []Issue{{Path: path, Message: fmt.Sprintf("expected %s, got %s", kind, got)}}
		}
		return nil
	})
}

// String accepts JSON strings.
func String() Rule { return kindRule("string") }

// Number accepts JSON numbers.
func Number() Rule { return kindRule("number") }

// Bool accepts JSON booleans.
func Bool() Rule { return kindRule("boolean") }

// Any accepts every value, including null.
func Any() Rule {
	return newRule(func(string, any) []Issue { return nil })
}

// OneOf accepts strings from a fixed set.
func OneOf(values ...string) Rule {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return newRule(func(path string, value any) []Issue {
		s, ok := value.(string)
		if !ok {
			return []Issue{{Path: path, Message: fmt.Sprintf("expected string, got %s", kindOf(value))}}
		}
		if _, ok := allowed[s]; !ok {
			return []Issue{{Path: path, Message: fmt.Sprintf("unexpected value %q", s)}}
		}
		return nil
	})
}

type optionalRule struct {
	Rule
}

// Optional lets a field be absent or null.
func Optional(r Rule) Rule { return optionalRule{Rule: r} }

func (o optionalRule) check(path string, value any) []Issue {
	if value == nil {
		return nil
	}
	return o.Rule.check(path, value)
}

func (o optionalRule) Validate(value any) []Issue {
	if value == nil {
		return nil
	}
	return o.Rule.Validate(value)
}

// FieldRule binds a rule to an object key.
type FieldRule struct {
	Name string
	Rule Rule
}

// Field declares one object key.
func Field(name string, r Rule) FieldRule {
	return FieldRule{Name: name, Rule: r}
}

// Object accepts JSON objects whose declared keys satisfy their rules.
// Undeclared keys are allowed.
func Object(fields ...FieldRule) Rule {
	return newRule(func(path string, value any) []Issue {
		obj, ok := value.(map[string]any)
		if !ok {
			return []Issue{{Path: path, Message: fmt.Sprintf("expected object, got %s", kindOf(value))}}
		}

		var issues []Issue
		for _, f := range fields {
			fieldPath := joinPath(path, f.Name)
			v, present := obj[f.Name]
			if !present {
				if _, optional := f.Rule.(optionalRule); !optional {
					issues = append(issues, Issue{Path: fieldPath, Message: "required"})
				}
				continue
			}
			issues = append(issues, f.Rule.check(fieldPath, v)...)
		}
		return issues
	})
}

// ArrayOf accepts JSON arrays whose elements all satisfy elem.
func ArrayOf(elem Rule) Rule {
	return newRule(func(path string, value any) []Issue {
		arr, ok := value.([]any)
		if !ok {
			return []Issue{{Path: path, Message: fmt.Sprintf("expected array, got %s", kindOf(value))}}
		}
		var issues []Issue
		for i, v := range arr {
			issues = append(issues, elem.check(indexPath(path, i), v)...)
		}
		return issues
	})
}
