package github_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/restbridge/internal/adapter/outbound/github"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expected    github.Location
		expectedAPI string
		expectError bool
	}{
		{
			name:        "simple github URL",
			url:         "github://owner/repo/path/to/file.yaml",
			expected:    github.Location{Owner: "owner", Repo: "repo", Path: "path/to/file.yaml"},
			expectedAPI: "repos/owner/repo/contents/path/to/file.yaml",
		},
		{
			name:        "github URL with ref",
			url:         "github://owner/repo/path/to/file.yaml@v1.0",
			expected:    github.Location{Owner: "owner", Repo: "repo", Path: "path/to/file.yaml", Ref: "v1.0"},
			expectedAPI: "repos/owner/repo/contents/path/to/file.yaml?ref=v1.0",
		},
		{
			name:        "github URL with branch ref",
			url:         "github://microsoft/api-guidelines/graph/openapi.yaml@feature/x",
			expected:    github.Location{Owner: "microsoft", Repo: "api-guidelines", Path: "graph/openapi.yaml", Ref: "feature/x"},
			expectedAPI: "repos/microsoft/api-guidelines/contents/graph/openapi.yaml?ref=feature%2Fx",
		},
		{
			name:        "invalid URL - not github",
			url:         "https://github.com/owner/repo/file.yaml",
			expectError: true,
		},
		{
			name:        "invalid URL - missing path",
			url:         "github://owner/repo",
			expectError: true,
		},
		{
			name:        "invalid URL - missing repo",
			url:         "github://owner",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := github.ParseURL(tt.url)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, loc)
			assert.Equal(t, tt.expectedAPI, loc.APIPath())
		})
	}
}

func TestIsGitHubURL(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"github://owner/repo/file.yaml", true},
		{"github://owner/repo/file.yaml@v1.0", true},
		{"https://github.com/owner/repo/file.yaml", false},
		{"http://example.com/api.yaml", false},
		{"file:///local/path/api.yaml", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, github.IsGitHubURL(tt.url))
		})
	}
}

func TestGHClient_FetchFile(t *testing.T) {
	var gotName string
	var gotArgs []string
	client := github.NewGHClientWithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("openapi: 3.0.0\n"), nil
	})

	content, err := client.FetchFile(context.Background(), "github://acme/apis/specs/orders.yaml@main")
	require.NoError(t, err)
	assert.Equal(t, "openapi: 3.0.0\n", string(content))
	assert.Equal(t, "gh", gotName)
	assert.Equal(t, []string{"api", "-H", "Accept: application/vnd.github.raw", "repos/acme/apis/contents/specs/orders.yaml?ref=main"}, gotArgs)
}

func TestGHClient_FetchFileErrors(t *testing.T) {
	failing := github.NewGHClientWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("gh command failed: Not Found (HTTP 404)")
	})
	_, err := failing.FetchFile(context.Background(), "github://acme/apis/missing.yaml")
	assert.ErrorContains(t, err, "404")

	empty := github.NewGHClientWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("  \n"), nil
	})
	_, err = empty.FetchFile(context.Background(), "github://acme/apis/empty.yaml")
	assert.ErrorContains(t, err, "empty response")

	_, err = empty.FetchFile(context.Background(), "github://acme")
	assert.Error(t, err)
}
