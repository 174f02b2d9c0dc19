// Package qs encodes nested Go values into URL query strings and
// application/x-www-form-urlencoded payloads.
//
// It supports a choice of array layout (comma, repeat, brackets) and nested
// object layout (dots, brackets), which is what the multipart and query-param
// paths of the SDK need when a request carries structured fields.
package qs

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ArrayFormat controls how slice values are laid out.
type ArrayFormat string

const (
	// ArrayComma joins elements with commas under a single key: a=1,2,3
	ArrayComma ArrayFormat = "comma"
	// ArrayRepeat repeats the key per element: a=1&a=2&a=3
	ArrayRepeat ArrayFormat = "repeat"
	// ArrayBrackets repeats the key with a [] suffix: a[]=1&a[]=2
	ArrayBrackets ArrayFormat = "brackets"
)

// NestedFormat controls how nested map keys are laid out.
type NestedFormat string

const (
	// NestedBrackets uses bracket paths: a[b][c]=1
	NestedBrackets NestedFormat = "brackets"
	// NestedDots uses dotted paths: a.b.c=1
	NestedDots NestedFormat = "dots"
)

type Encoder struct {
	Array  ArrayFormat
	Nested NestedFormat
}

// DefaultEncoder matches the wire conventions of the Anthropic API:
// comma-joined arrays and bracket-nested objects.
func DefaultEncoder() Encoder {
	return Encoder{Array: ArrayComma, Nested: NestedBrackets}
}

// Values flattens v (maps, slices, primitives) into url.Values.
// Nil values are dropped. Booleans encode as "true"/"false".
func (e Encoder) Values(v map[string]any) (url.Values, error) {
	out := make(url.Values)
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.encode(out, k, v[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Encode flattens v and renders it as a query string (without leading "?").
func (e Encoder) Encode(v map[string]any) (string, error) {
	vals, err := e.Values(v)
	if err != nil {
		return "", err
	}
	return vals.Encode(), nil
}

func (e Encoder) encode(out url.Values, key string, v any) error {
	switch val := v.(type) {
	case nil:
		// Null serializes as empty and is dropped.
		return nil
	case map[string]any:
		subKeys := make([]string, 0, len(val))
		for k := range val {
			subKeys = append(subKeys, k)
		}
		sort.Strings(subKeys)
		for _, k := range subKeys {
			if err := e.encode(out, e.nestedKey(key, k), val[k]); err != nil {
				return err
			}
		}
		return nil
	case []any:
		return e.encodeArray(out, key, val)
	case []string:
		anys := make([]any, len(val))
		for i, s := range val {
			anys[i] = s
		}
		return e.encodeArray(out, key, anys)
	default:
		s, err := primitive(v)
		if err != nil {
			return err
		}
		out.Add(key, s)
		return nil
	}
}

func (e Encoder) encodeArray(out url.Values, key string, vals []any) error {
	switch e.Array {
	case ArrayComma, "":
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			if v == nil {
				continue
			}
			if _, ok := v.(map[string]any); ok {
				return fmt.Errorf("qs: cannot comma-join object array element under %q", key)
			}
			s, err := primitive(v)
			if err != nil {
				return err
			}
			parts = append(parts, s)
		}
		out.Add(key, strings.Join(parts, ","))
		return nil
	case ArrayRepeat:
		for _, v := range vals {
			if err := e.encode(out, key, v); err != nil {
				return err
			}
		}
		return nil
	case ArrayBrackets:
		for _, v := range vals {
			if err := e.encode(out, key+"[]", v); err != nil {
				return err
			}
		}
		return nil
	default:
		// "indices" and anything else are deliberately unsupported.
		return fmt.Errorf("qs: unsupported array format %q", e.Array)
	}
}

func (e Encoder) nestedKey(parent, child string) string {
	if parent == "" {
		return child
	}
	if e.Nested == NestedDots {
		return parent + "." + child
	}
	return parent + "[" + child + "]"
}

func primitive(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return "", fmt.Errorf("qs: unsupported value type %T", v)
	}
}
