package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/i2y/restbridge/internal/domain"
)

// Header names the compiler manages.
const (
	headerAccept           = "Accept"
	headerAcceptEncoding   = "Accept-Encoding"
	headerAuthorization    = "Authorization"
	headerContentEncoding  = "Content-Encoding"
	headerContentLength    = "Content-Length"
	headerContentType      = "Content-Type"
	headerHost             = "Host"
	headerTransferEncoding = "Transfer-Encoding"
	headerUserAgent        = "User-Agent"

	transferChunked = "Chunked"
	defaultAPIKey   = "apiKey"
)

// Compilation is the outcome of compiling one invocation.
type Compilation struct {
	Request   *domain.CompiledRequest
	Principal *domain.Principal
	Secure    bool
}

// RequestCompiler turns configuration and a runtime input into a compiled request.
type RequestCompiler struct {
	codecs    map[domain.ContentType]Codec
	validator ContentValidator
	security  SecurityProviders
	logger    *slog.Logger
}

// NewRequestCompiler creates a new RequestCompiler. validator and security may be nil.
func NewRequestCompiler(codecs map[domain.ContentType]Codec, validator ContentValidator, security SecurityProviders, logger *slog.Logger) *RequestCompiler {
	return &RequestCompiler{
		codecs:    codecs,
		validator: validator,
		security:  security,
		logger:    logger.With("component", "request_compiler"),
	}
}

// Compile builds the request. On failure nothing is returned and any stream content is closed.
func (c *RequestCompiler) Compile(ctx context.Context, cfg domain.OperationConfig, ep *domain.EndpointConfig, schema *domain.DerivedSchema, rc ResolvedConfig, in *domain.Input) (*Compilation, error) {
	if in == nil {
		in = &domain.Input{}
	}
	log := c.logger.With(slog.String("operation", cfg.ID))

	comp, err := c.compile(ctx, log, cfg, ep, schema, rc, in)
	if err != nil {
		if closer, ok := in.Content.(io.Closer); ok {
			closer.Close()
		}
		return nil, err
	}
	return comp, nil
}

func (c *RequestCompiler) compile(ctx context.Context, log *slog.Logger, cfg domain.OperationConfig, ep *domain.EndpointConfig, schema *domain.DerivedSchema, rc ResolvedConfig, in *domain.Input) (*Compilation, error) {
	if rc.Host.Value == "" {
		return nil, domain.NoHostError(cfg.ID)
	}
	if strings.TrimSpace(cfg.Path) == "" && in.Endpoint == nil {
		return nil, domain.NoPathError(cfg.ID)
	}

	var headers domain.Headers

	// --- 1. Body --- //
	var body io.Reader
	switch content := in.Content.(type) {
	case nil:
		headers.Set(headerContentLength, "0")
	case io.Reader:
		body = content
		headers.Set(headerContentType, domain.MIMEOctetStream)
		headers.Set(headerTransferEncoding, transferChunked)
	default:
		if !isStructured(content) {
			return nil, domain.ContentError("Invalid content", fmt.Errorf("unsupported content type %T", content))
		}
		encoded, err := c.encodeContent(cfg, schema, rc, content)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
		headers.Set(headerContentType, rc.RequestType.Value.MIMEType())
		headers.Set(headerContentLength, strconv.Itoa(len(encoded)))
	}

	headers.Set(headerAccept, rc.ResponseType.Value.MIMEType())

	// --- 2. Declared headers --- //
	if section := schema.Section(domain.SectionHeader); section != nil {
		for _, field := range section.Fields {
			value, ok := in.Header[field.Name]
			if !ok || value == nil {
				continue
			}
			wire := domain.HeaderWireName(field)
			values, isList := listValues(value)
			if !isList {
				values = []any{value}
			}
			// The first value replaces what was resolved so far, the rest are appended.
			emitted := 0
			for _, v := range values {
				if v == nil {
					continue
				}
				if emitted == 0 {
					headers.Set(wire, MarshalValue(v))
				} else {
					headers.Add(wire, MarshalValue(v))
				}
				emitted++
			}
			if strings.EqualFold(wire, headerContentLength) && emitted > 0 {
				headers.Remove(headerTransferEncoding)
			}
		}
	}

	// --- 3. Gzip --- //
	compress := false
	if rc.Gzip.Value {
		length := int64(-1)
		if v := headers.Get(headerContentLength); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				length = n
			}
		}
		if length != 0 {
			headers.Set(headerContentEncoding, "gzip")
			compress = body != nil
		}
		if length > 0 {
			headers.Remove(headerContentLength)
			headers.Set(headerTransferEncoding, transferChunked)
		}
		headers.Set(headerAcceptEncoding, "gzip")
	}

	headers.Set(headerHost, rc.Host.Value)

	principal := domain.NewPrincipal(rc.Username.Value, rc.Password.Value, rc.AuthType.Value == domain.AuthNone)

	// --- 4. Path and query --- //
	target, err := c.buildTarget(cfg, ep, schema, in)
	if err != nil {
		return nil, err
	}

	if ep != nil {
		if ep.UserAgent != "" {
			headers.Set(headerUserAgent, ep.UserAgent)
		}
		if ep.APIHeaderKey != "" {
			headers.Set(orDefault(ep.APIHeaderName, defaultAPIKey), ep.APIHeaderKey)
		} else if ep.APIHeaderName != "" && in.APIHeaderKey != "" {
			headers.Set(ep.APIHeaderName, in.APIHeaderKey)
		}
	}

	req := &domain.CompiledRequest{
		Method: cfg.EffectiveMethod(),
		Target: target,
		Header: headers,
	}

	if body != nil {
		if compress {
			req.Body = newGzipReader(body)
		} else if rcloser, ok := body.(io.ReadCloser); ok {
			req.Body = rcloser
		} else {
			req.Body = io.NopCloser(body)
		}
	}

	// --- 5. Security provider and preemptive authentication --- //
	if ep != nil && ep.SecurityType != "" {
		if err := c.authenticate(ctx, req, ep); err != nil {
			return nil, err
		}
	}
	if principal != nil {
		switch rc.AuthType.Value {
		case domain.AuthBasic:
			token := base64.StdEncoding.EncodeToString([]byte(rc.Username.Value + ":" + rc.Password.Value))
			req.Header.Set(headerAuthorization, "Basic "+token)
		case domain.AuthBearer:
			req.Header.Set(headerAuthorization, "Bearer "+rc.Username.Value)
		}
	}

	if ep != nil && ep.OmitContentLengthIfEmpty && req.Method == "GET" && req.Header.Get(headerContentLength) == "0" {
		req.Header.Remove(headerContentLength)
	}

	log.Debug("Compiled request",
		slog.String("method", req.Method),
		slog.String("target", req.Target),
		slog.String("principal", principal.String()),
		slog.Bool("gzip", compress))
	return &Compilation{Request: req, Principal: principal, Secure: rc.Secure.Value}, nil
}

func (c *RequestCompiler) encodeContent(cfg domain.OperationConfig, schema *domain.DerivedSchema, rc ResolvedConfig, content any) ([]byte, error) {
	contentSchema := schema.Section(domain.SectionContent)
	if cfg.ValidateInput && c.validator != nil {
		if err := c.validator.Validate(content, contentSchema); err != nil {
			return nil, domain.InputValidationError(err)
		}
	}
	codec, ok := c.codecs[rc.RequestType.Value]
	if !ok {
		return nil, domain.ContentError("No codec for request type "+string(rc.RequestType.Value), nil)
	}
	var buf bytes.Buffer
	opts := CodecOptions{
		Charset:                  rc.Charset.Value,
		Lenient:                  cfg.IsLenient(),
		CamelCaseDashes:          cfg.CamelCaseDashes,
		IgnoreRootIfArrayWrapper: cfg.UnwrapRootArray(),
	}
	if err := codec.Encode(&buf, content, contentSchema, opts); err != nil {
		return nil, domain.ContentError("Could not encode the request content", err)
	}
	encoded, err := encodeCharset(buf.Bytes(), rc.Charset.Value)
	if err != nil {
		return nil, domain.ContentError("Could not encode the request content", err)
	}
	return encoded, nil
}

// buildTarget assembles the escaped path and query string.
func (c *RequestCompiler) buildTarget(cfg domain.OperationConfig, ep *domain.EndpointConfig, schema *domain.DerivedSchema, in *domain.Input) (string, error) {
	path := "/"
	if in.Endpoint != nil && in.Endpoint.Path != "" {
		path = in.Endpoint.Path
	}
	if ep != nil && strings.TrimSpace(ep.BasePath) != "" && strings.TrimSpace(ep.BasePath) != "/" {
		path = repeatedSlashes.ReplaceAllString(path+"/"+ep.BasePath, "/")
	}
	if cfg.Path != "" {
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		path += strings.TrimPrefix(cfg.Path, "/")
	}
	if section := schema.Section(domain.SectionPath); section != nil {
		path = substitutePlaceholders(path, section, in.Path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var b strings.Builder
	b.WriteString(path)
	first := !strings.Contains(path, "?")
	sep := func() {
		if first {
			b.WriteByte('?')
			first = false
		} else {
			b.WriteByte('&')
		}
	}

	if section := schema.Section(domain.SectionQuery); section != nil {
		for _, field := range section.Fields {
			value, ok := in.Query[field.Name]
			if !ok || value == nil {
				continue
			}
			parts, err := serializeQueryField(field, value)
			if err != nil {
				return "", err
			}
			if parts == "" {
				continue
			}
			sep()
			b.WriteString(parts)
		}
	}

	if ep != nil {
		if ep.APIQueryKey != "" {
			sep()
			b.WriteString(orDefault(ep.APIQueryName, defaultAPIKey) + "=" + ep.APIQueryKey)
		} else if ep.APIQueryName != "" {
			sep()
			b.WriteString(ep.APIQueryName + "=" + escapeQuery(in.APIQueryKey))
		}
	}
	return b.String(), nil
}

// serializeQueryField renders one declared query field without its leading separator.
func serializeQueryField(field *domain.Field, value any) (string, error) {
	name := escapeQuery(field.WireName())
	values, isList := listValues(value)
	if !isList {
		if isStructured(value) {
			return "", domain.NotSupportedError("Complex query parameters are not supported: " + name)
		}
		return name + "=" + escapeQuery(MarshalValue(value)), nil
	}

	format := field.Format()
	var b strings.Builder
	firstValue := true
	for _, v := range values {
		if v == nil {
			continue
		}
		if isStructured(v) {
			return "", domain.NotSupportedError("Complex query parameters are not supported: " + name)
		}
		escaped := escapeQuery(MarshalValue(v))
		switch format {
		case domain.CollectionMulti, domain.CollectionMatrixExplode:
			if firstValue && format == domain.CollectionMatrixExplode {
				b.WriteByte(';')
			} else if !firstValue {
				b.WriteByte('&')
			}
			b.WriteString(name + "=" + escaped)
		default:
			if firstValue {
				switch format {
				case domain.CollectionLabel:
					b.WriteByte('.')
				case domain.CollectionMatrixImplode:
					b.WriteString(";" + name + "=")
				default:
					b.WriteString(name + "=")
				}
			} else {
				b.WriteByte(',')
			}
			b.WriteString(escaped)
		}
		firstValue = false
	}
	return b.String(), nil
}

// substitutePlaceholders replaces every placeholder naming a field of section in a single
// pass. Placeholders of undeclared names are left untouched.
func substitutePlaceholders(path string, section *domain.Field, values map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(path, func(placeholder string) string {
		name := placeholderPattern.FindStringSubmatch(placeholder)[1]
		if section.Field(name) == nil {
			return placeholder
		}
		return MarshalValue(values[name])
	})
}

func (c *RequestCompiler) authenticate(ctx context.Context, req *domain.CompiledRequest, ep *domain.EndpointConfig) error {
	if c.security == nil {
		return domain.AuthenticationError(fmt.Errorf("no security providers configured for type %s", ep.SecurityType))
	}
	provider, ok := c.security.Provider(ep.SecurityType)
	if !ok {
		return domain.AuthenticationError(fmt.Errorf("unknown security type %s", ep.SecurityType))
	}
	ok, err := provider.Authenticate(ctx, req, ep.SecurityContext)
	if err != nil {
		return domain.AuthenticationError(err)
	}
	if !ok {
		return domain.AuthenticationError(fmt.Errorf("security provider %s declined the request", ep.SecurityType))
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
