package domain

import (
	"fmt"
	"mime"
	"strings"
)

// ContentType is the tagged union of body formats the engine can encode and decode.
type ContentType string

const (
	ContentTypeXML  ContentType = "XML"
	ContentTypeJSON ContentType = "JSON"
	ContentTypeForm ContentType = "FORM_ENCODED"
)

// MIME types of the supported body formats.
const (
	MIMEXML         = "application/xml"
	MIMEJSON        = "application/json"
	MIMEForm        = "application/x-www-form-urlencoded"
	MIMEOctetStream = "application/octet-stream"
)

// MIMEType returns the canonical MIME type of the tag.
func (c ContentType) MIMEType() string {
	switch c {
	case ContentTypeJSON:
		return MIMEJSON
	case ContentTypeForm:
		return MIMEForm
	default:
		return MIMEXML
	}
}

// OrDefault returns XML for the zero value.
func (c ContentType) OrDefault() ContentType {
	if c == "" {
		return ContentTypeXML
	}
	return c
}

// UnmarshalText accepts the tag names case-insensitively as well as MIME types.
func (c *ContentType) UnmarshalText(text []byte) error {
	parsed, err := ParseContentType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseContentType parses a configured content type. The empty string yields the zero value.
func ParseContentType(s string) (ContentType, error) {
	v := strings.TrimSpace(s)
	switch strings.ToUpper(v) {
	case "":
		return "", nil
	case "XML":
		return ContentTypeXML, nil
	case "JSON":
		return ContentTypeJSON, nil
	case "FORM_ENCODED", "FORM", "FORM-ENCODED":
		return ContentTypeForm, nil
	}
	if strings.Contains(v, "/") {
		return ContentTypeForMIME(v), nil
	}
	return "", fmt.Errorf("unknown content type %q", s)
}

var jsonMIMETypes = map[string]struct{}{
	"application/json":         {},
	"text/json":                {},
	"application/javascript":   {},
	"application/x-javascript": {},
	"text/javascript":          {},
	"text/x-javascript":        {},
	"text/x-json":              {},
}

// NormalizeMIME strips parameters and lowercases a Content-Type value.
func NormalizeMIME(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// ContentTypeForMIME is the total mapping from a MIME string to a tag. Unknown types map to XML.
func ContentTypeForMIME(contentType string) ContentType {
	m := NormalizeMIME(contentType)
	if m == MIMEForm {
		return ContentTypeForm
	}
	if _, ok := jsonMIMETypes[m]; ok || strings.HasSuffix(m, "+json") {
		return ContentTypeJSON
	}
	return ContentTypeXML
}

// CharsetOf returns the charset parameter of a Content-Type value, or "".
func CharsetOf(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// AuthType selects preemptive authentication.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBasic  AuthType = "BASIC"
	AuthBearer AuthType = "BEARER"
)

// UnmarshalText accepts the auth type case-insensitively.
func (a *AuthType) UnmarshalText(text []byte) error {
	switch v := strings.ToUpper(strings.TrimSpace(string(text))); v {
	case "", "NONE":
		*a = AuthNone
	case string(AuthBasic), string(AuthBearer):
		*a = AuthType(v)
	default:
		return fmt.Errorf("unknown preemptive authorization type %q", string(text))
	}
	return nil
}
