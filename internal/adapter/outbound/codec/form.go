package codec

import (
	"fmt"
	"io"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/schema"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// Form encodes application/x-www-form-urlencoded bodies. Nested objects use dotted keys
// ("address.city"), repeated objects add the index ("items.0.name"), repeated scalars
// repeat the key.
type Form struct{}

// formTag is the struct tag typed values are encoded by.
const formTag = "form"

// Encode implements usecase.Codec. Typed structs go through gorilla/schema using the
// "form" tag, maps follow the schema order.
func (Form) Encode(w io.Writer, value any, fs *domain.Field, opts usecase.CodecOptions) error {
	enc, err := formCharset(opts.Charset)
	if err != nil {
		return err
	}
	var pairs []string
	add := func(key, val string) error {
		if enc != nil {
			if val, err = enc.NewEncoder().String(val); err != nil {
				return fmt.Errorf("failed to encode %q as %s: %w", key, opts.Charset, err)
			}
		}
		pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(val))
		return nil
	}

	if isStruct(value) {
		values := url.Values{}
		encoder := schema.NewEncoder()
		encoder.SetAliasTag(formTag)
		if err := encoder.Encode(value, values); err != nil {
			return fmt.Errorf("failed to encode form: %w", err)
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range values[k] {
				if err := add(k, v); err != nil {
					return err
				}
			}
		}
	} else {
		tree, err := toTree(value)
		if err != nil {
			return err
		}
		m, ok := tree.(map[string]any)
		if !ok && tree != nil {
			return fmt.Errorf("form content must be an object, got %T", tree)
		}
		if err := writeForm(add, "", m, fs, opts); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, strings.Join(pairs, "&"))
	return err
}

func writeForm(add func(key, val string) error, prefix string, m map[string]any, f *domain.Field, opts usecase.CodecOptions) error {
	ms, err := members(m, f, opts, prefix)
	if err != nil {
		return err
	}
	for _, mem := range ms {
		key := joinPath(prefix, mem.key)
		list, isList := mem.value.([]any)
		if !isList {
			if err := writeFormValue(add, key, mem.value, mem.field, opts); err != nil {
				return err
			}
			continue
		}
		for i, item := range list {
			itemKey := key
			if _, nested := item.(map[string]any); nested {
				itemKey = key + "." + strconv.Itoa(i)
			}
			if err := writeFormValue(add, itemKey, item, mem.field, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFormValue(add func(key, val string) error, key string, v any, f *domain.Field, opts usecase.CodecOptions) error {
	switch t := v.(type) {
	case map[string]any:
		return writeForm(add, key, t, f, opts)
	case nil:
		return nil
	}
	leaf, err := coerceLeaf(v, f, opts, key)
	if err != nil {
		return err
	}
	s, ok := text(leaf)
	if !ok {
		s = fmt.Sprint(leaf)
	}
	return add(key, s)
}

// Decode implements usecase.Codec.
func (Form) Decode(r io.Reader, fs *domain.Field, opts usecase.CodecOptions) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	tree := make(map[string]any)
	for key, vals := range values {
		var v any = vals[0]
		if len(vals) > 1 {
			list := make([]any, len(vals))
			for i, s := range vals {
				list[i] = s
			}
			v = list
		}
		insertPath(tree, strings.Split(key, "."), v)
	}
	root, ok := indexLists(tree).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("form keys at the top level must be names, not indexes")
	}
	return bindObject(root, fs, opts, "")
}

func insertPath(m map[string]any, segments []string, v any) {
	if len(segments) == 1 {
		m[segments[0]] = v
		return
	}
	child, ok := m[segments[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[segments[0]] = child
	}
	insertPath(child, segments[1:], v)
}

// indexLists turns maps keyed only by indexes ("0", "1", ...) into lists.
func indexLists(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	indexes := make([]int, 0, len(m))
	for k, child := range m {
		m[k] = indexLists(child)
		if n, err := strconv.Atoi(k); err == nil && n >= 0 {
			indexes = append(indexes, n)
		}
	}
	if len(m) == 0 || len(indexes) != len(m) {
		return m
	}
	sort.Ints(indexes)
	list := make([]any, 0, len(indexes))
	for _, n := range indexes {
		list = append(list, m[strconv.Itoa(n)])
	}
	return list
}

func formCharset(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc, nil
}

func isStruct(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}
