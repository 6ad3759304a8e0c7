package compat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeLegacy rewrites the object keys of a legacy payload into the
// versioned shape, recursively. Keys listed in renames are translated
// explicitly; other snake_case keys become camelCase. Numbers are copied
// verbatim.
//
// When several keys of one object map to the same name, an explicit rename
// wins over a key already in camelCase, which wins over a converted key.
// Ties go to the lexically first key.
func NormalizeLegacy(raw json.RawMessage, renames map[string]string) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode legacy payload: %w", err)
	}

	out, err := json.Marshal(renameKeys(v, renames))
	if err != nil {
		return nil, fmt.Errorf("encode normalized payload: %w", err)
	}
	return out, nil
}

func renameKeys(v any, renames map[string]string) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(t))
		rank := make(map[string]int, len(t))
		for _, k := range keys {
			to, r := targetKey(k, renames)
			if prev, taken := rank[to]; taken && prev >= r {
				continue
			}
			out[to] = renameKeys(t[k], renames)
			rank[to] = r
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = renameKeys(val, renames)
		}
		return out
	default:
		return v
	}
}

// Precedence of a source key for its target name.
const (
	rankConverted = iota
	rankAsIs
	rankExplicit
)

func targetKey(k string, renames map[string]string) (string, int) {
	if to, ok := renames[k]; ok {
		return to, rankExplicit
	}
	if to := SnakeToCamel(k); to != k {
		return to, rankConverted
	}
	return k, rankAsIs
}

// SnakeToCamel converts "last_seen" to "lastSeen". Keys without an
// underscore are returned unchanged.
func SnakeToCamel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(key, "_")
	var b strings.Builder
	b.Grow(len(key))
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if first {
			b.WriteString(p)
			first = false
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(p[size:])
	}
	if b.Len() == 0 {
		return key
	}
	return b.String()
}
