package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from every string in decoded content. Keys are kept as-is.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New creates a Sanitizer using bluemonday's strict policy, which removes all elements.
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// NewWithPolicy creates a Sanitizer with a custom policy, e.g. bluemonday.UGCPolicy().
func NewWithPolicy(policy *bluemonday.Policy) *Sanitizer {
	return &Sanitizer{policy: policy}
}

// Sanitize implements usecase.Sanitizer. The input is not modified.
func (s *Sanitizer) Sanitize(value map[string]any) map[string]any {
	if value == nil {
		return nil
	}
	return s.sanitizeMap(value)
}

func (s *Sanitizer) sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = s.sanitizeValue(v)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return s.policy.Sanitize(t)
	case map[string]any:
		return s.sanitizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = s.policy.Sanitize(item)
		}
		return out
	default:
		return v
	}
}
