package usecase

import (
	"bytes"
	"encoding"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MarshalValue renders a scalar for a path, query or header slot. The value's own
// text form wins, then the type-specific formatting, then fmt.
func MarshalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case encoding.TextMarshaler:
		if b, err := t.MarshalText(); err == nil {
			return string(b)
		}
	case fmt.Stringer:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case []byte:
		return string(t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return fmt.Sprint(v)
}

// isStructured reports whether v is a map with string keys, a struct, or a pointer to a struct.
func isStructured(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	}
	return false
}

// listValues returns the elements of a slice or array value, or nil and false for scalars.
// Byte slices are scalars.
func listValues(v any) ([]any, bool) {
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// escapeQuery percent-escapes a query component, spaces as %20.
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// isUTF8 reports whether a charset label denotes UTF-8 (or is empty).
func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// encodeCharset transcodes UTF-8 bytes to the given charset.
func encodeCharset(data []byte, label string) ([]byte, error) {
	if isUTF8(label) {
		return data, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content as %s: %w", label, err)
	}
	return out, nil
}

// decodeCharset wraps r so that it yields UTF-8.
func decodeCharset(r io.Reader, label string) (io.Reader, error) {
	if isUTF8(label) {
		return r, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

const gzipChunkSize = 32 * 1024

// gzipReader compresses src on the fly as it is read.
type gzipReader struct {
	src   io.Reader
	buf   bytes.Buffer
	zw    *gzip.Writer
	chunk []byte
	done  bool
}

func newGzipReader(src io.Reader) *gzipReader {
	g := &gzipReader{src: src, chunk: make([]byte, gzipChunkSize)}
	g.zw = gzip.NewWriter(&g.buf)
	return g
}

func (g *gzipReader) Read(p []byte) (int, error) {
	for g.buf.Len() == 0 && !g.done {
		n, err := g.src.Read(g.chunk)
		if n > 0 {
			if _, werr := g.zw.Write(g.chunk[:n]); werr != nil {
				return 0, werr
			}
		}
		if err == io.EOF {
			if cerr := g.zw.Close(); cerr != nil {
				return 0, cerr
			}
			g.done = true
		} else if err != nil {
			return 0, err
		}
	}
	if g.buf.Len() == 0 {
		return 0, io.EOF
	}
	return g.buf.Read(p)
}

func (g *gzipReader) Close() error {
	if c, ok := g.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// gunzipBody inflates a gzip encoded response body and closes the original on Close.
type gunzipBody struct {
	zr   *gzip.Reader
	body io.ReadCloser
}

func newGunzipBody(body io.ReadCloser) (*gunzipBody, error) {
	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, err
	}
	return &gunzipBody{zr: zr, body: body}, nil
}

func (g *gunzipBody) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gunzipBody) Close() error {
	zerr := g.zr.Close()
	if err := g.body.Close(); err != nil {
		return err
	}
	return zerr
}
