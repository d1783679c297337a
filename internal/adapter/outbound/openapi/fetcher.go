package openapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/restbridge/internal/domain"
)

// SchemaFetcher implements the usecase.SchemaFetcher interface for OpenAPI documents.
type SchemaFetcher struct {
	httpClient     *http.Client
	headers        map[string]string
	logger         *slog.Logger
	autoDiscoverer *AutoDiscoverer
}

// NewSchemaFetcher creates a new OpenAPI SchemaFetcher. headers are sent with every
// document request, e.g. an Authorization header for a protected description.
func NewSchemaFetcher(client *http.Client, headers map[string]string, logger *slog.Logger) *SchemaFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &SchemaFetcher{
		httpClient:     client,
		headers:        headers,
		logger:         logger.With("component", "openapi_fetcher"),
		autoDiscoverer: NewAutoDiscoverer(client, headers, logger),
	}
}

// Fetch loads an OpenAPI document from a URL, a base URL to discover it under, or a local file path.
func (f *SchemaFetcher) Fetch(ctx context.Context, src string) (domain.APISchema, error) {
	log := f.logger.With(slog.String("source", src))
	log.Info("Fetching OpenAPI schema")

	resolvedSrc := f.autoDiscoverer.ResolveSchemaSource(ctx, src)
	if resolvedSrc != src {
		log.Info("Auto-discovered OpenAPI schema", slog.String("resolved_url", resolvedSrc))
	}

	var rawData []byte
	var err error
	u, parseErr := url.ParseRequestURI(resolvedSrc)
	if parseErr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		log.Debug("Fetching from URL")
		rawData, err = f.download(ctx, resolvedSrc)
		if err != nil {
			log.Error("Failed to fetch schema from URL", slog.Any("error", err))
			return domain.APISchema{}, err
		}
	} else {
		log.Debug("Assuming local file path")
		rawData, err = os.ReadFile(resolvedSrc)
		if err != nil {
			log.Error("Failed to read schema from file", slog.Any("error", err))
			return domain.APISchema{}, fmt.Errorf("failed to read schema from file %s: %w", resolvedSrc, err)
		}
	}

	doc, err := ParseDocument(ctx, rawData, log)
	if err != nil {
		log.Error("Failed to parse OpenAPI schema data", slog.Any("error", err))
		return domain.APISchema{}, fmt.Errorf("failed to parse OpenAPI schema from %s: %w", src, err)
	}

	log.Info("Successfully fetched and parsed OpenAPI schema")
	return domain.APISchema{
		Source:     resolvedSrc,
		Type:       domain.SchemaTypeOpenAPI,
		RawData:    rawData,
		ParsedData: doc,
	}, nil
}

func (f *SchemaFetcher) download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", src, err)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema from URL %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch schema from URL %s: status %s", src, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", src, err)
	}
	return data, nil
}

// ParseDocument parses a JSON or YAML OpenAPI 3 document. Validation problems are logged,
// not returned, since many published documents are slightly off.
func ParseDocument(ctx context.Context, data []byte, logger *slog.Logger) (*openapi3.T, error) {
	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	if doc.OpenAPI == "" {
		return nil, fmt.Errorf("document has no openapi version field")
	}
	if validateErr := doc.Validate(ctx); validateErr != nil {
		logger.Warn("OpenAPI schema validation failed", slog.Any("validation_error", validateErr))
	}
	return doc, nil
}
