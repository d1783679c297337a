package configs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/i2y/restbridge/internal/adapter/outbound/github"
	"github.com/i2y/restbridge/internal/domain"
)

// DefaultHTTPClient is the handle that always exists, even when the file declares none.
const DefaultHTTPClient = "default"

// HTTPClientConfig configures one named HTTP client handle.
type HTTPClientConfig struct {
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify,omitempty"`
	MaxIdleConns       int           `yaml:"maxIdleConns,omitempty"`
}

// SchemaSource is an API description imported at startup.
type SchemaSource struct {
	URL      string            `yaml:"url"`
	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// FileConfig defines the structure loaded from the YAML definitions file.
type FileConfig struct {
	HTTPClients   map[string]HTTPClientConfig       `yaml:"httpClients,omitempty"`
	Endpoints     map[string]domain.EndpointConfig  `yaml:"endpoints,omitempty"`
	Operations    map[string]domain.OperationConfig `yaml:"operations,omitempty"`
	SchemaSources []interface{}                     `yaml:"schema_sources,omitempty"`
}

// Config holds the final application configuration, merged from file and environment variables.
// Fields are loaded from environment variables with the prefix "RESTBRIDGE_", potentially overriding file settings.
type Config struct {
	// Config File Path (Loaded first from env)
	ConfigFilePath string `envconfig:"CONFIG_FILE" default:"configs/restbridge.yaml"`

	// File-loaded fields
	HTTPClients   map[string]HTTPClientConfig `ignored:"true"`
	Endpoints     []domain.EndpointConfig     `ignored:"true"`
	Operations    []domain.OperationConfig    `ignored:"true"`
	SchemaSources []SchemaSource              `ignored:"true"`

	// Environment-overridable fields
	ListenAddr               string        `envconfig:"LISTEN_ADDR" default:":8080"`
	AdminAddr                string        `envconfig:"ADMIN_ADDR" default:":8081"`
	HTTPClientTimeout        time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	ShutdownTimeout          time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	ServerReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"5s"`
	ServerWriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ServerIdleTimeout        time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	OtelExporterOtlpEndpoint string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool          `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel                 string        `envconfig:"LOG_LEVEL" default:"info"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration first from environment variables (to get file path),
// then from the YAML definitions file, and finally merges/overrides with environment variables again.
// An explicitly empty RESTBRIDGE_CONFIG_FILE skips the file.
func Load(ctx context.Context) (*Config, error) {
	var initialCfg Config
	if err := envconfig.Process("restbridge", &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	finalCfg := initialCfg
	if initialCfg.ConfigFilePath != "" {
		data, err := readFile(ctx, initialCfg.ConfigFilePath)
		if err != nil {
			return nil, err
		}
		if err := finalCfg.apply(data); err != nil {
			return nil, fmt.Errorf("invalid config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
	} else {
		slog.Info("No config file path specified (RESTBRIDGE_CONFIG_FILE), using defaults/env vars only.")
		finalCfg.HTTPClients = map[string]HTTPClientConfig{}
	}
	finalCfg.ensureDefaultClient()

	// Process environment variables AGAIN to allow overrides over file settings.
	if err := envconfig.Process("restbridge", &finalCfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}
	return &finalCfg, nil
}

// Parse builds a Config from a definitions document alone, without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{HTTPClientTimeout: 30 * time.Second}
	if err := cfg.apply(data); err != nil {
		return nil, err
	}
	cfg.ensureDefaultClient()
	return cfg, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if github.IsGitHubURL(path) {
		data, err := github.LoadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from GitHub '%s': %w", path, err)
		}
		slog.Info("Loaded configuration from GitHub.", "url", path)
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	slog.Info("Loaded configuration from file.", "path", path)
	return data, nil
}

func (c *Config) apply(data []byte) error {
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to unmarshal definitions: %w", err)
	}

	c.HTTPClients = make(map[string]HTTPClientConfig, len(fileCfg.HTTPClients)+1)
	for name, hc := range fileCfg.HTTPClients {
		c.HTTPClients[name] = hc
	}

	c.Endpoints = make([]domain.EndpointConfig, 0, len(fileCfg.Endpoints))
	for name, ep := range fileCfg.Endpoints {
		ep.Name = name
		c.Endpoints = append(c.Endpoints, ep)
	}
	sort.Slice(c.Endpoints, func(i, j int) bool { return c.Endpoints[i].Name < c.Endpoints[j].Name })

	c.Operations = make([]domain.OperationConfig, 0, len(fileCfg.Operations))
	for id, op := range fileCfg.Operations {
		op.ID = id
		c.Operations = append(c.Operations, op)
	}
	sort.Slice(c.Operations, func(i, j int) bool { return c.Operations[i].ID < c.Operations[j].ID })

	// Parse SchemaSources - support both string and object formats
	c.SchemaSources = make([]SchemaSource, 0, len(fileCfg.SchemaSources))
	for _, source := range fileCfg.SchemaSources {
		switch v := source.(type) {
		case string:
			c.SchemaSources = append(c.SchemaSources, SchemaSource{URL: v})
		case map[string]interface{}:
			ss := SchemaSource{}
			if url, ok := v["url"].(string); ok {
				ss.URL = url
			}
			if endpoint, ok := v["endpoint"].(string); ok {
				ss.Endpoint = endpoint
			}
			if headers, ok := v["headers"].(map[string]interface{}); ok {
				ss.Headers = make(map[string]string)
				for k, val := range headers {
					if strVal, ok := val.(string); ok {
						ss.Headers[k] = strVal
					}
				}
			}
			if ss.URL == "" {
				slog.Warn("Ignoring schema source without url", "source", source)
				continue
			}
			c.SchemaSources = append(c.SchemaSources, ss)
		default:
			slog.Warn("Ignoring invalid schema source format", "source", source)
		}
	}
	return c.validate()
}

func (c *Config) ensureDefaultClient() {
	if c.HTTPClients == nil {
		c.HTTPClients = map[string]HTTPClientConfig{}
	}
	if _, ok := c.HTTPClients[DefaultHTTPClient]; !ok {
		c.HTTPClients[DefaultHTTPClient] = HTTPClientConfig{Timeout: c.HTTPClientTimeout}
	}
}

// validate rejects references that would only fail at invocation time.
func (c *Config) validate() error {
	endpoints := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		endpoints[ep.Name] = true
		if err := c.checkClient(ep.HTTPClient); err != nil {
			return fmt.Errorf("endpoint '%s': %w", ep.Name, err)
		}
	}
	for _, op := range c.Operations {
		if op.Endpoint != "" && !endpoints[op.Endpoint] {
			return fmt.Errorf("operation '%s' references unknown endpoint '%s'", op.ID, op.Endpoint)
		}
		if err := c.checkClient(op.HTTPClient); err != nil {
			return fmt.Errorf("operation '%s': %w", op.ID, err)
		}
	}
	return nil
}

func (c *Config) checkClient(handle string) error {
	if handle == "" || handle == DefaultHTTPClient {
		return nil
	}
	if _, ok := c.HTTPClients[handle]; !ok {
		return fmt.Errorf("unknown http client '%s'", handle)
	}
	return nil
}
