package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/i2y/restbridge/internal/adapter/outbound/openapi"
	"github.com/i2y/restbridge/internal/domain"
)

// Fetcher implements the usecase.SchemaFetcher interface for OpenAPI documents kept in
// GitHub repositories.
type Fetcher struct {
	ghClient *GHClient
	logger   *slog.Logger
}

// NewFetcher creates a new GitHub schema fetcher. A nil client runs the gh binary.
func NewFetcher(client *GHClient, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = NewGHClient()
	}
	return &Fetcher{
		ghClient: client,
		logger:   logger.With("component", "github_fetcher"),
	}
}

// Fetch retrieves and parses an OpenAPI document from a repository.
func (f *Fetcher) Fetch(ctx context.Context, source string) (domain.APISchema, error) {
	log := f.logger.With(slog.String("source", source))
	if !IsGitHubURL(source) {
		return domain.APISchema{}, fmt.Errorf("not a GitHub URL: %s", source)
	}
	log.Info("Fetching OpenAPI schema from GitHub")

	content, err := f.ghClient.FetchFile(ctx, source)
	if err != nil {
		log.Error("Failed to fetch file from GitHub", slog.Any("error", err))
		return domain.APISchema{}, fmt.Errorf("failed to fetch file from GitHub: %w", err)
	}

	doc, err := openapi.ParseDocument(ctx, content, log)
	if err != nil {
		log.Error("Failed to parse OpenAPI schema data", slog.Any("error", err))
		return domain.APISchema{}, fmt.Errorf("failed to parse OpenAPI schema from %s: %w", source, err)
	}

	log.Info("Successfully fetched and parsed OpenAPI schema from GitHub")
	return domain.APISchema{
		Source:     source,
		Type:       domain.SchemaTypeOpenAPI,
		RawData:    content,
		ParsedData: doc,
	}, nil
}

// LoadFile fetches a file such as a definitions file from GitHub.
func LoadFile(ctx context.Context, githubURL string) ([]byte, error) {
	content, err := NewGHClient().FetchFile(ctx, githubURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from GitHub: %w", githubURL, err)
	}
	return content, nil
}
