package sanitize_test

import (
	"testing"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/assert"

	"github.com/i2y/restbridge/internal/adapter/outbound/sanitize"
)

func TestSanitizer_Sanitize(t *testing.T) {
	testCases := []struct {
		name  string
		input map[string]any
		want  map[string]any
	}{
		{
			name:  "nil",
			input: nil,
			want:  nil,
		},
		{
			name:  "plain values untouched",
			input: map[string]any{"name": "Alice", "age": int64(30), "active": true},
			want:  map[string]any{"name": "Alice", "age": int64(30), "active": true},
		},
		{
			name:  "script removed",
			input: map[string]any{"bio": `hello<script>alert("x")</script>`},
			want:  map[string]any{"bio": "hello"},
		},
		{
			name: "nested objects and lists",
			input: map[string]any{
				"user": map[string]any{"name": "<b>Bob</b>"},
				"tags": []any{"<i>a</i>", map[string]any{"label": `<a href="javascript:x()">b</a>`}},
				"ids":  []string{"<em>1</em>"},
			},
			want: map[string]any{
				"user": map[string]any{"name": "Bob"},
				"tags": []any{"a", map[string]any{"label": "b"}},
				"ids":  []string{"1"},
			},
		},
	}

	s := sanitize.New()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Sanitize(tc.input))
		})
	}
}

func TestSanitizer_DoesNotModifyInput(t *testing.T) {
	input := map[string]any{"bio": "<b>x</b>", "nested": map[string]any{"v": "<i>y</i>"}}
	_ = sanitize.New().Sanitize(input)
	assert.Equal(t, "<b>x</b>", input["bio"])
	assert.Equal(t, "<i>y</i>", input["nested"].(map[string]any)["v"])
}

func TestSanitizer_CustomPolicy(t *testing.T) {
	s := sanitize.NewWithPolicy(bluemonday.UGCPolicy())
	out := s.Sanitize(map[string]any{"bio": `<b>bold</b><script>x</script>`})
	assert.Equal(t, "<b>bold</b>", out["bio"])
}
