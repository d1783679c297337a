// Package security provides the pluggable request signers selected by an endpoint's
// securityType. The endpoint's securityContext configures the provider as a list of
// key=value pairs separated by ';'.
package security

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/i2y/restbridge/internal/usecase"
)

// Names of the built-in providers.
const (
	TypeEnvHeader  = "env-header"
	TypeHMACSHA256 = "hmac-sha256"
)

// Registry implements usecase.SecurityProviders.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]usecase.SecurityProvider
	logger    *slog.Logger
}

// NewRegistry creates a registry holding the built-in providers. Secrets are read from
// the process environment.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		providers: make(map[string]usecase.SecurityProvider),
		logger:    logger.With("component", "security_registry"),
	}
	r.Register(TypeEnvHeader, NewEnvHeader(os.Getenv))
	r.Register(TypeHMACSHA256, NewHMAC(os.Getenv, nil))
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(securityType string, p usecase.SecurityProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[securityType] = p
	r.logger.Debug("Registered security provider", slog.String("security_type", securityType))
}

// Provider implements usecase.SecurityProviders.
func (r *Registry) Provider(securityType string) (usecase.SecurityProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[securityType]
	return p, ok
}

// Types lists the registered security types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// parseContext parses "key=value;key=value". Keys are case-insensitive.
func parseContext(securityContext string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(securityContext, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid security context entry %q: expected key=value", part)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out, nil
}

func secret(getenv func(string) string, settings map[string]string) (string, error) {
	name := settings["env"]
	if name == "" {
		return "", fmt.Errorf("security context is missing env")
	}
	value := getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}
