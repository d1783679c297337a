package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// JSON writes objects in schema order and binds decoded objects to the schema.
type JSON struct{}

// Encode implements usecase.Codec.
func (JSON) Encode(w io.Writer, value any, schema *domain.Field, opts usecase.CodecOptions) error {
	tree, err := toTree(value)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if child := singleRepeated(schema); child != nil && opts.IgnoreRootIfArrayWrapper {
		if m, ok := tree.(map[string]any); ok && len(m) == 1 {
			if _, v, found := lookup(m, child); found {
				if err := writeJSONField(&buf, v, child, opts, child.Name); err != nil {
					return err
				}
				_, err = w.Write(buf.Bytes())
				return err
			}
		}
	}
	if schema == nil {
		err = writeJSONValue(&buf, tree, nil, opts, "")
	} else {
		err = writeJSONField(&buf, tree, schema, opts, "")
	}
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func writeJSONField(buf *bytes.Buffer, v any, f *domain.Field, opts usecase.CodecOptions, path string) error {
	if !f.Repeated {
		return writeJSONValue(buf, v, f, opts, path)
	}
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	buf.WriteByte('[')
	for i, item := range list {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONValue(buf, item, f, opts, fmt.Sprintf("%s.%d", path, i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeJSONValue(buf *bytes.Buffer, v any, f *domain.Field, opts usecase.CodecOptions, path string) error {
	switch t := v.(type) {
	case map[string]any:
		if !hasChildren(f) {
			return marshalInto(buf, t)
		}
		ms, err := members(t, f, opts, path)
		if err != nil {
			return err
		}
		buf.WriteByte('{')
		for i, m := range ms {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalInto(buf, m.key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if m.field == nil {
				err = marshalInto(buf, m.value)
			} else {
				err = writeJSONField(buf, m.value, m.field, opts, joinPath(path, m.field.Name))
			}
			if err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		if hasChildren(f) && !opts.Lenient {
			return fmt.Errorf("field %q does not repeat", path)
		}
		return marshalInto(buf, t)
	case nil:
		buf.WriteString("null")
		return nil
	}
	leaf, err := coerceLeaf(v, f, opts, path)
	if err != nil {
		return err
	}
	return marshalInto(buf, leaf)
}

func marshalInto(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// Decode implements usecase.Codec. Numbers are decoded as int64 or float64 according to
// the schema, or by value for undeclared members.
func (JSON) Decode(r io.Reader, schema *domain.Field, opts usecase.CodecOptions) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	switch t := tree.(type) {
	case map[string]any:
		return bindObject(t, schema, opts, "")
	case []any:
		if child := singleRepeated(schema); child != nil && opts.IgnoreRootIfArrayWrapper {
			bound, err := bindValue(t, child, opts, child.Name)
			if err != nil {
				return nil, err
			}
			return map[string]any{child.Name: bound}, nil
		}
		return nil, fmt.Errorf("unexpected JSON array at the document root")
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected JSON %T at the document root", tree)
}
