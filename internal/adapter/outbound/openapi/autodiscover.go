package openapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Common OpenAPI document paths used by various frameworks
var commonOpenAPIPaths = []string{
	"/openapi.json",            // FastAPI default
	"/docs/openapi.json",       // Alternative FastAPI path
	"/v3/api-docs",             // SpringDoc OpenAPI 3.0
	"/api-docs",                // SpringFox
	"/api/openapi.json",        // Custom API prefix
	"/api/v1/openapi.json",     // Versioned API
	"/swagger/v1/swagger.json", // .NET default
	"/openapi.yaml",
	"/openapi.yml",
}

const probeTimeout = 5 * time.Second

// AutoDiscoverer finds the OpenAPI document of a service given its base URL.
type AutoDiscoverer struct {
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

// NewAutoDiscoverer creates a new OpenAPI document auto-discoverer.
func NewAutoDiscoverer(client *http.Client, headers map[string]string, logger *slog.Logger) *AutoDiscoverer {
	return &AutoDiscoverer{
		client:  client,
		headers: headers,
		logger:  logger.With("component", "openapi_autodiscoverer"),
	}
}

// ResolveSchemaSource returns source unchanged when it already names a document (a file,
// a .json/.yaml URL or a URL mentioning openapi/swagger/api-docs). For other http(s) URLs
// it probes the common document paths and returns the first hit, or source when none answers.
func (d *AutoDiscoverer) ResolveSchemaSource(ctx context.Context, source string) string {
	log := d.logger.With(slog.String("source", source))

	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return source
	}
	if looksLikeDocument(u.Path) {
		log.Debug("Source appears to be a direct schema URL")
		return source
	}

	log.Info("Source appears to be a base URL, attempting auto-discovery")
	base := strings.TrimRight(source, "/")
	for _, path := range commonOpenAPIPaths {
		candidate := base + path
		ok, err := d.probe(ctx, candidate)
		if err != nil {
			log.Debug("Failed to check endpoint", slog.String("url", candidate), slog.Any("error", err))
			continue
		}
		if ok {
			log.Info("Found OpenAPI schema", slog.String("url", candidate))
			return candidate
		}
	}
	log.Warn("Auto-discovery failed, using original source")
	return source
}

func looksLikeDocument(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range []string{".json", ".yaml", ".yml"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "openapi") || strings.Contains(lower, "swagger") || strings.Contains(lower, "api-docs")
}

// probe reports whether candidate answers 200 with a JSON or YAML body.
func (d *AutoDiscoverer) probe(ctx context.Context, candidate string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json, application/vnd.oai.openapi+json, application/yaml")
	req.Header.Set("User-Agent", "restbridge/1.0")
	for key, value := range d.headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.Contains(contentType, "json") || strings.Contains(contentType, "yaml"), nil
}
