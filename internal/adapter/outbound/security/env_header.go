package security

import (
	"context"
	"fmt"

	"github.com/i2y/restbridge/internal/domain"
)

// EnvHeader sets one header to a secret taken from the environment.
//
//	securityContext: header=Authorization;env=PARTNER_TOKEN;prefix=Bearer
type EnvHeader struct {
	getenv func(string) string
}

// NewEnvHeader creates an EnvHeader reading secrets with getenv.
func NewEnvHeader(getenv func(string) string) *EnvHeader {
	return &EnvHeader{getenv: getenv}
}

// Authenticate implements usecase.SecurityProvider.
func (p *EnvHeader) Authenticate(_ context.Context, req *domain.CompiledRequest, securityContext string) (bool, error) {
	settings, err := parseContext(securityContext)
	if err != nil {
		return false, err
	}
	header := settings["header"]
	if header == "" {
		return false, fmt.Errorf("security context is missing header")
	}
	value, err := secret(p.getenv, settings)
	if err != nil {
		return false, err
	}
	if prefix := settings["prefix"]; prefix != "" {
		value = prefix + " " + value
	}
	req.Header.Set(header, value)
	return true, nil
}
