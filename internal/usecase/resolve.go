package usecase

import (
	"strings"

	"github.com/i2y/restbridge/internal/domain"
)

// Source names the layer a resolved value came from.
type Source string

const (
	SourceInput     Source = "input"
	SourceOperation Source = "operation"
	SourceEndpoint  Source = "endpoint"
	SourceDefault   Source = "default"
)

// DefaultCharset is used when neither operation nor endpoint declares one.
const DefaultCharset = "UTF-8"

// DefaultHTTPClient is the transport handle used when none is configured.
const DefaultHTTPClient = "default"

// Resolved is a value together with its authoritative source.
type Resolved[T any] struct {
	Value  T
	Source Source
}

// provider yields a value when its layer declares one.
type provider[T any] struct {
	source Source
	get    func() (T, bool)
}

// firstOf queries the providers in order and falls back to def.
func firstOf[T any](def T, providers ...provider[T]) Resolved[T] {
	for _, p := range providers {
		if v, ok := p.get(); ok {
			return Resolved[T]{Value: v, Source: p.source}
		}
	}
	return Resolved[T]{Value: def, Source: SourceDefault}
}

func str(source Source, v string) provider[string] {
	return provider[string]{source: source, get: func() (string, bool) { return v, strings.TrimSpace(v) != "" }}
}

func flag(source Source, v *bool) provider[bool] {
	return provider[bool]{source: source, get: func() (bool, bool) {
		if v == nil {
			return false, false
		}
		return *v, true
	}}
}

func contentType(source Source, v domain.ContentType) provider[domain.ContentType] {
	return provider[domain.ContentType]{source: source, get: func() (domain.ContentType, bool) { return v, v != "" }}
}

func authType(source Source, v domain.AuthType) provider[domain.AuthType] {
	return provider[domain.AuthType]{source: source, get: func() (domain.AuthType, bool) { return v, v != domain.AuthNone }}
}

// ResolvedConfig is the effective configuration of one invocation.
type ResolvedConfig struct {
	Host         Resolved[string]
	Secure       Resolved[bool]
	RequestType  Resolved[domain.ContentType]
	ResponseType Resolved[domain.ContentType]
	Charset      Resolved[string]
	Gzip         Resolved[bool]
	AuthType     Resolved[domain.AuthType]
	Username     Resolved[string]
	Password     Resolved[string]
	HTTPClient   Resolved[string]
}

// Resolve applies the chain input override, operation, endpoint, default to every field.
// ep and in may be nil.
func Resolve(cfg domain.OperationConfig, ep *domain.EndpointConfig, in *domain.Input) ResolvedConfig {
	if ep == nil {
		ep = &domain.EndpointConfig{}
	}
	if in == nil {
		in = &domain.Input{}
	}
	var auth domain.Authentication
	if in.Authentication != nil {
		auth = *in.Authentication
	}
	var overrideHost, overrideScheme string
	if in.Endpoint != nil {
		overrideHost = in.Endpoint.Host
		overrideScheme = in.Endpoint.Scheme
	}

	return ResolvedConfig{
		Host: firstOf("",
			str(SourceInput, overrideHost),
			str(SourceOperation, cfg.Host),
			str(SourceEndpoint, ep.Host)),
		Secure: firstOf(false,
			provider[bool]{source: SourceInput, get: func() (bool, bool) {
				return strings.EqualFold(overrideScheme, "https"), overrideScheme != ""
			}},
			flag(SourceOperation, cfg.Secure),
			flag(SourceEndpoint, ep.Secure)),
		RequestType: firstOf(domain.ContentTypeXML,
			contentType(SourceOperation, cfg.RequestType),
			contentType(SourceEndpoint, ep.RequestType)),
		ResponseType: firstOf(domain.ContentTypeXML,
			contentType(SourceOperation, cfg.ResponseType),
			contentType(SourceEndpoint, ep.ResponseType)),
		Charset: firstOf(DefaultCharset,
			str(SourceOperation, cfg.Charset),
			str(SourceEndpoint, ep.Charset)),
		Gzip: firstOf(false,
			flag(SourceOperation, cfg.Gzip),
			flag(SourceEndpoint, ep.Gzip)),
		AuthType: firstOf(domain.AuthNone,
			authType(SourceOperation, cfg.PreemptiveAuthorizationType),
			authType(SourceEndpoint, ep.PreemptiveAuthorizationType)),
		Username: firstOf("",
			str(SourceInput, auth.Username),
			str(SourceOperation, cfg.Username),
			str(SourceEndpoint, ep.Username)),
		Password: firstOf("",
			str(SourceInput, auth.Password),
			str(SourceOperation, cfg.Password),
			str(SourceEndpoint, ep.Password)),
		HTTPClient: firstOf(DefaultHTTPClient,
			str(SourceOperation, cfg.HTTPClient),
			str(SourceEndpoint, ep.HTTPClient)),
	}
}
