package domain

import (
	"regexp"
	"strings"
	"unicode"
)

var nonWord = regexp.MustCompile(`[^\w]+`)

// CleanIdentifier replaces every run of non-word characters with an underscore.
func CleanIdentifier(name string) string {
	return nonWord.ReplaceAllString(name, "_")
}

// HeaderToField converts a header name to a field identifier: "Content-Type" becomes "contentType".
func HeaderToField(header string) string {
	parts := nonWord.Split(header, -1)
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		if b.Len() == 0 {
			b.WriteString(lower)
			continue
		}
		r := []rune(lower)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// FieldToHeader converts a field identifier back to a header name: "contentType" becomes "Content-Type".
func FieldToHeader(field string) string {
	var segments []string
	var current []rune
	for _, r := range field {
		if r == '_' {
			if len(current) > 0 {
				segments = append(segments, string(current))
			}
			current = nil
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			segments = append(segments, string(current))
			current = nil
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		segments = append(segments, string(current))
	}
	for i, s := range segments {
		r := []rune(strings.ToLower(s))
		r[0] = unicode.ToUpper(r[0])
		segments[i] = string(r)
	}
	return strings.Join(segments, "-")
}

// HeaderWireName resolves the wire header name of a declared header field.
func HeaderWireName(f *Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return FieldToHeader(f.Name)
}

// Dashed converts camelCase to its dash-separated lowercase form: "someName" becomes "some-name".
func Dashed(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
