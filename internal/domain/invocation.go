package domain

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Authentication is the optional per-call credential override.
type Authentication struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Input is the runtime value of one invocation.
type Input struct {
	TransactionID string `json:"transactionId,omitempty"`
	// Endpoint overrides scheme, authority and root path of the call.
	Endpoint *url.URL `json:"-"`
	// Content is nil, an io.Reader, a map[string]any or a struct.
	Content        any             `json:"content,omitempty"`
	Header         map[string]any  `json:"header,omitempty"`
	Path           map[string]any  `json:"path,omitempty"`
	Query          map[string]any  `json:"query,omitempty"`
	Authentication *Authentication `json:"authentication,omitempty"`
	APIHeaderKey   string          `json:"apiHeaderKey,omitempty"`
	APIQueryKey    string          `json:"apiQueryKey,omitempty"`
}

// InputFromMap converts a generic structured value (decoded JSON, MCP tool arguments)
// into an Input.
func InputFromMap(m map[string]any) (*Input, error) {
	in := &Input{}
	if m == nil {
		return in, nil
	}
	if v, ok := m[SectionTransactionID]; ok && v != nil {
		in.TransactionID = fmt.Sprint(v)
	}
	if v, ok := m[SectionEndpoint]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string, got %T", SectionEndpoint, v)
		}
		if s != "" {
			u, err := url.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", SectionEndpoint, s, err)
			}
			in.Endpoint = u
		}
	}
	var err error
	if in.Header, err = sectionMap(m, SectionHeader); err != nil {
		return nil, err
	}
	if in.Path, err = sectionMap(m, SectionPath); err != nil {
		return nil, err
	}
	if in.Query, err = sectionMap(m, SectionQuery); err != nil {
		return nil, err
	}
	auth, err := sectionMap(m, SectionAuthentication)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		in.Authentication = &Authentication{}
		if u, ok := auth["username"].(string); ok {
			in.Authentication.Username = u
		}
		if p, ok := auth["password"].(string); ok {
			in.Authentication.Password = p
		}
	}
	if v, ok := m[SectionAPIHeaderKey].(string); ok {
		in.APIHeaderKey = v
	}
	if v, ok := m[SectionAPIQueryKey].(string); ok {
		in.APIQueryKey = v
	}
	if v, ok := m[SectionContent]; ok && v != nil {
		in.Content = v
	}
	return in, nil
}

func sectionMap(m map[string]any, name string) (map[string]any, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return nil, nil
	}
	section, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", name, v)
	}
	return section, nil
}

// Output is the decoded result of one invocation.
type Output struct {
	StatusCode int                 `json:"statusCode"`
	Header     map[string][]string `json:"header,omitempty"`
	// Content is nil, a map[string]any, or an io.ReadCloser the caller must close
	// when the operation returns its body as a stream.
	Content any `json:"content,omitempty"`
}

// PrincipalKind distinguishes basic from NTLM credentials.
type PrincipalKind string

const (
	PrincipalBasic PrincipalKind = "basic"
	PrincipalNTLM  PrincipalKind = "ntlm"
)

// Principal carries the credentials handed to the transport.
type Principal struct {
	Kind     PrincipalKind
	Domain   string
	Username string
	Password string
}

// NewPrincipal builds a principal from a username and password. A username containing
// a domain separator ('/' first, then '\') becomes an NTLM principal when allowNTLM is set.
func NewPrincipal(username, password string, allowNTLM bool) *Principal {
	if username == "" {
		return nil
	}
	idx := strings.Index(username, "/")
	if idx < 0 {
		idx = strings.Index(username, `\`)
	}
	if idx < 0 || !allowNTLM {
		return &Principal{Kind: PrincipalBasic, Username: username, Password: password}
	}
	return &Principal{
		Kind:     PrincipalNTLM,
		Domain:   username[:idx],
		Username: username[idx+1:],
		Password: password,
	}
}

func (p *Principal) String() string {
	if p == nil {
		return "<none>"
	}
	if p.Kind == PrincipalNTLM {
		return p.Domain + `\` + p.Username
	}
	return p.Username
}

// Header is one header line.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered multi-map of header lines with case-insensitive names.
type Headers []Header

// Add appends a header line.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces all lines of the given name with a single one.
func (h *Headers) Set(name, value string) {
	h.Remove(name)
	h.Add(name, value)
}

// Remove drops every line of the given name.
func (h *Headers) Remove(name string) {
	kept := (*h)[:0]
	for _, line := range *h {
		if !strings.EqualFold(line.Name, name) {
			kept = append(kept, line)
		}
	}
	*h = kept
}

// Get returns the first value of the given name, or "".
func (h Headers) Get(name string) string {
	for _, line := range h {
		if strings.EqualFold(line.Name, name) {
			return line.Value
		}
	}
	return ""
}

// Has reports whether a line of the given name exists.
func (h Headers) Has(name string) bool {
	for _, line := range h {
		if strings.EqualFold(line.Name, name) {
			return true
		}
	}
	return false
}

// Values returns every value of the given name in order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, line := range h {
		if strings.EqualFold(line.Name, name) {
			out = append(out, line.Value)
		}
	}
	return out
}

// HTTPHeader converts the lines to an http.Header, preserving value order.
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h))
	for _, line := range h {
		out.Add(line.Name, line.Value)
	}
	return out
}

// CompiledRequest is a fully resolved outbound request.
type CompiledRequest struct {
	Method string
	// Target is the escaped path plus query string.
	Target string
	Header Headers
	// Body is nil for an empty body.
	Body io.ReadCloser
}

// Close releases the body.
func (r *CompiledRequest) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}
