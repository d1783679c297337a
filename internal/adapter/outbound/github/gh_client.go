package github

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

const scheme = "github://"

// Location is a parsed github://owner/repo/path/to/file[@ref] reference.
type Location struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

// ParseURL parses a github:// URL into its components.
func ParseURL(githubURL string) (Location, error) {
	if !IsGitHubURL(githubURL) {
		return Location{}, fmt.Errorf("invalid GitHub URL format: %s", githubURL)
	}
	rest := strings.TrimPrefix(githubURL, scheme)

	var loc Location
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest, loc.Ref = rest[:i], rest[i+1:]
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Location{}, fmt.Errorf("invalid GitHub URL format: expected github://owner/repo/path/to/file")
	}
	loc.Owner, loc.Repo, loc.Path = parts[0], parts[1], parts[2]
	return loc, nil
}

// APIPath is the contents API path of the file.
func (l Location) APIPath() string {
	p := fmt.Sprintf("repos/%s/%s/contents/%s", l.Owner, l.Repo, l.Path)
	if l.Ref != "" {
		p += "?ref=" + url.QueryEscape(l.Ref)
	}
	return p
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// GHClient wraps the gh CLI, so requests are authenticated with the user's gh login.
type GHClient struct {
	run Runner
}

// NewGHClient creates a client running the real gh binary.
func NewGHClient() *GHClient {
	return &GHClient{run: execRunner}
}

// NewGHClientWithRunner creates a client using run instead of executing processes.
func NewGHClientWithRunner(run Runner) *GHClient {
	return &GHClient{run: run}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return nil, fmt.Errorf("gh CLI is not installed. Please install it from https://cli.github.com/")
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			if strings.Contains(msg, "not logged in") || strings.Contains(msg, "gh auth login") {
				return nil, fmt.Errorf("gh CLI is not authenticated. Please run 'gh auth login' first")
			}
			return nil, fmt.Errorf("gh command failed: %s", msg)
		}
		return nil, fmt.Errorf("gh command failed: %w", err)
	}
	return stdout.Bytes(), nil
}

// FetchFile retrieves the raw content of a file referenced by a github:// URL.
func (c *GHClient) FetchFile(ctx context.Context, githubURL string) ([]byte, error) {
	loc, err := ParseURL(githubURL)
	if err != nil {
		return nil, err
	}
	content, err := c.run(ctx, "gh", "api", "-H", "Accept: application/vnd.github.raw", loc.APIPath())
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("empty response from GitHub for %s", githubURL)
	}
	return content, nil
}

// IsGitHubURL checks if a URL is a github:// reference.
func IsGitHubURL(url string) bool {
	return strings.HasPrefix(url, scheme)
}
