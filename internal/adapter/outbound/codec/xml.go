package codec

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

const defaultXMLRoot = "content"

// XML writes one element per field in schema order and binds child elements to fields
// by local name. Attributes are not mapped.
type XML struct{}

// Encode implements usecase.Codec. The root element is named after the schema.
func (XML) Encode(w io.Writer, value any, schema *domain.Field, opts usecase.CodecOptions) error {
	tree, err := toTree(value)
	if err != nil {
		return err
	}
	root := defaultXMLRoot
	if schema != nil && schema.WireName() != "" {
		root = schema.WireName()
	}
	label := opts.Charset
	if label == "" {
		label = usecase.DefaultCharset
	}

	enc := xml.NewEncoder(w)
	if err := enc.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="` + label + `"`)}); err != nil {
		return err
	}
	if err := writeXMLElement(enc, root, tree, schema, opts, ""); err != nil {
		return err
	}
	return enc.Flush()
}

func writeXMLField(enc *xml.Encoder, name string, v any, f *domain.Field, opts usecase.CodecOptions, path string) error {
	if list, ok := v.([]any); ok {
		if f != nil && !f.Repeated && len(list) > 1 && !opts.Lenient {
			return fmt.Errorf("field %q does not repeat", path)
		}
		for _, item := range list {
			if err := writeXMLElement(enc, name, item, f, opts, path); err != nil {
				return err
			}
		}
		return nil
	}
	return writeXMLElement(enc, name, v, f, opts, path)
}

func writeXMLElement(enc *xml.Encoder, name string, v any, f *domain.Field, opts usecase.CodecOptions, path string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	switch t := v.(type) {
	case map[string]any:
		ms, err := members(t, f, opts, path)
		if err != nil {
			return err
		}
		for _, m := range ms {
			if err := writeXMLField(enc, m.key, m.value, m.field, opts, joinPath(path, m.key)); err != nil {
				return err
			}
		}
	case []any:
		// A list below a non-repeated element renders as repeated "item" children.
		for _, item := range t {
			if err := writeXMLElement(enc, "item", item, nil, opts, path); err != nil {
				return err
			}
		}
	case nil:
	default:
		leaf, err := coerceLeaf(v, f, opts, path)
		if err != nil {
			return err
		}
		s, ok := text(leaf)
		if !ok {
			s = fmt.Sprint(leaf)
		}
		if err := enc.EncodeToken(xml.CharData(s)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Decode implements usecase.Codec. When opts.Charset is set the bytes are already UTF-8,
// otherwise the document's declared encoding is honored.
func (XML) Decode(r io.Reader, schema *domain.Field, opts usecase.CodecOptions) (map[string]any, error) {
	dec := xml.NewDecoder(r)
	if opts.Charset != "" {
		dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	} else {
		dec.CharsetReader = charset.NewReaderLabel
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		tree, err := readXMLElement(dec)
		if err != nil {
			return nil, err
		}
		m, ok := tree.(map[string]any)
		if !ok {
			if strings.TrimSpace(tree.(string)) != "" && hasChildren(schema) && !opts.Lenient {
				return nil, fmt.Errorf("element %q has text where child elements are expected", start.Name.Local)
			}
			m = map[string]any{}
		}
		return bindObject(m, schema, opts, "")
	}
}

// readXMLElement reads up to the matching end element. Elements with children become maps,
// repeated names become lists, leaves become their text.
func readXMLElement(dec *xml.Decoder) (any, error) {
	var children map[string]any
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := readXMLElement(dec)
			if err != nil {
				return nil, err
			}
			if children == nil {
				children = make(map[string]any)
			}
			addChild(children, t.Name.Local, child)
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if children != nil {
				return children, nil
			}
			return sb.String(), nil
		}
	}
}

func addChild(children map[string]any, name string, v any) {
	existing, ok := children[name]
	if !ok {
		children[name] = v
		return
	}
	// Leaves are strings and elements are maps, so a list can only come from siblings.
	if list, isList := existing.([]any); isList {
		children[name] = append(list, v)
		return
	}
	children[name] = []any{existing, v}
}
