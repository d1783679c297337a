// Package codec implements the schema-driven body codecs selected by content type.
//
// Every codec first brings the value into a generic tree (maps, lists and scalars) and
// then walks it along the schema, so that field order, wire names, repetition and the
// lenient/strict rules are shared between formats.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// New returns one codec per content type.
func New() map[domain.ContentType]usecase.Codec {
	return map[domain.ContentType]usecase.Codec{
		domain.ContentTypeJSON: JSON{},
		domain.ContentTypeXML:  XML{},
		domain.ContentTypeForm: Form{},
	}
}

// UnknownFieldError is returned in strict mode for a key the schema does not declare.
type UnknownFieldError struct {
	Path string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Path)
}

// toTree converts any encodable value into maps, lists, strings, json.Number and bools.
func toTree(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool, json.Number:
		return value, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to convert value: %w", err)
	}
	return tree, nil
}

// hasChildren reports whether a schema node constrains its members.
func hasChildren(f *domain.Field) bool {
	return f != nil && len(f.Fields) > 0
}

// wireKey is the name a field is written under.
func wireKey(f *domain.Field, opts usecase.CodecOptions) string {
	if f.Alias != "" {
		return f.Alias
	}
	if opts.CamelCaseDashes {
		return domain.Dashed(f.Name)
	}
	return f.Name
}

// lookup finds the member of m a field binds to. The dashed form of the field name
// always matches, whatever the encode setting.
func lookup(m map[string]any, f *domain.Field) (string, any, bool) {
	for _, key := range []string{f.Name, f.WireName(), domain.Dashed(f.Name)} {
		if v, ok := m[key]; ok {
			return key, v, true
		}
	}
	return "", nil, false
}

// singleRepeated returns the only child of f when it is repeated.
func singleRepeated(f *domain.Field) *domain.Field {
	if f == nil || len(f.Fields) != 1 || !f.Fields[0].Repeated {
		return nil
	}
	return f.Fields[0]
}

// member is one schema-ordered entry of an object.
type member struct {
	key   string
	field *domain.Field
	value any
}

// members orders the entries of m by schema, unknown keys last in sorted order.
func members(m map[string]any, f *domain.Field, opts usecase.CodecOptions, path string) ([]member, error) {
	out := make([]member, 0, len(m))
	used := make(map[string]bool, len(m))
	if f != nil {
		for _, child := range f.Fields {
			key, v, ok := lookup(m, child)
			if !ok || v == nil {
				used[key] = ok
				continue
			}
			used[key] = true
			out = append(out, member{key: wireKey(child, opts), field: child, value: v})
		}
	}
	var unknown []string
	for k := range m {
		if !used[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		if hasChildren(f) && !opts.Lenient {
			return nil, &UnknownFieldError{Path: joinPath(path, k)}
		}
		if m[k] == nil {
			continue
		}
		out = append(out, member{key: k, value: m[k]})
	}
	return out, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// bindObject shapes a decoded map along the schema. Declared fields are stored under
// their field name; unknown keys are kept as-is when lenient.
func bindObject(m map[string]any, f *domain.Field, opts usecase.CodecOptions, path string) (map[string]any, error) {
	if !hasChildren(f) {
		return plainMap(m), nil
	}
	out := make(map[string]any, len(m))
	used := make(map[string]bool, len(m))
	for _, child := range f.Fields {
		key, v, ok := lookup(m, child)
		if !ok {
			continue
		}
		used[key] = true
		bound, err := bindValue(v, child, opts, joinPath(path, child.Name))
		if err != nil {
			return nil, err
		}
		out[child.Name] = bound
	}
	for k, v := range m {
		if used[k] {
			continue
		}
		if !opts.Lenient {
			return nil, &UnknownFieldError{Path: joinPath(path, k)}
		}
		out[k] = plain(v)
	}
	return out, nil
}

func bindValue(v any, f *domain.Field, opts usecase.CodecOptions, path string) (any, error) {
	if v == nil {
		return nil, nil
	}
	list, isList := v.([]any)
	if f.Repeated {
		if !isList {
			list = []any{v}
		}
		out := make([]any, 0, len(list))
		for i, item := range list {
			bound, err := bindSingle(item, f, opts, path+"."+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			out = append(out, bound)
		}
		return out, nil
	}
	if isList {
		if len(list) == 0 {
			return nil, nil
		}
		if len(list) > 1 && !opts.Lenient {
			return nil, fmt.Errorf("field %q does not repeat", path)
		}
		v = list[0]
	}
	return bindSingle(v, f, opts, path)
}

func bindSingle(v any, f *domain.Field, opts usecase.CodecOptions, path string) (any, error) {
	if v == nil {
		return nil, nil
	}
	kind := f.Kind()
	if kind == domain.KindAny {
		return plain(v), nil
	}
	if kind == domain.KindObject {
		switch t := v.(type) {
		case map[string]any:
			return bindObject(t, f, opts, path)
		case string:
			// An empty element or parameter is an empty object.
			if strings.TrimSpace(t) == "" {
				return map[string]any{}, nil
			}
		}
		return mismatch(v, f, opts, path)
	}
	if s, ok := scalar(v, kind); ok {
		return s, nil
	}
	return mismatch(v, f, opts, path)
}

func mismatch(v any, f *domain.Field, opts usecase.CodecOptions, path string) (any, error) {
	if opts.Lenient {
		return plain(v), nil
	}
	return nil, fmt.Errorf("field %q: cannot use %T as %s", path, v, f.Kind())
}

// scalar converts a decoded leaf to the Go type of kind.
func scalar(v any, kind domain.Kind) (any, bool) {
	switch kind {
	case domain.KindInteger:
		switch t := v.(type) {
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return n, true
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n, true
			}
		case float64:
			if t == float64(int64(t)) {
				return int64(t), true
			}
		}
	case domain.KindNumber:
		switch t := v.(type) {
		case json.Number:
			if n, err := t.Float64(); err == nil {
				return n, true
			}
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return n, true
			}
		case float64:
			return t, true
		}
	case domain.KindBoolean:
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b, true
			}
		}
	default:
		switch t := v.(type) {
		case string:
			return t, true
		case json.Number:
			return t.String(), true
		case bool:
			return strconv.FormatBool(t), true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		}
	}
	return nil, false
}

// plain converts a generic tree to plain Go values: numbers become int64 or float64.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		return plainMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}

// text renders a leaf for XML and form output.
func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

// coerceLeaf checks a leaf against kind before encoding.
func coerceLeaf(v any, f *domain.Field, opts usecase.CodecOptions, path string) (any, error) {
	if f == nil || f.Kind() == domain.KindAny || f.Kind() == domain.KindString || f.Kind() == domain.KindURI {
		return v, nil
	}
	if s, ok := scalar(v, f.Kind()); ok {
		return s, nil
	}
	if opts.Lenient {
		return v, nil
	}
	return nil, fmt.Errorf("field %q: cannot use %T as %s", path, v, f.Kind())
}
