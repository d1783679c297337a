package usecase

import (
	"bufio"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/i2y/restbridge/internal/domain"
)

// ResponseDecoder turns a successful response into an Output shaped by the derived schema.
type ResponseDecoder struct {
	codecs    map[domain.ContentType]Codec
	validator ContentValidator
	sanitizer Sanitizer
	logger    *slog.Logger
}

// NewResponseDecoder creates a new ResponseDecoder. validator and sanitizer may be nil.
func NewResponseDecoder(codecs map[domain.ContentType]Codec, validator ContentValidator, sanitizer Sanitizer, logger *slog.Logger) *ResponseDecoder {
	return &ResponseDecoder{
		codecs:    codecs,
		validator: validator,
		sanitizer: sanitizer,
		logger:    logger.With("component", "response_decoder"),
	}
}

// Decode reads the body (unless it is handed out as a stream), then validates, sanitizes
// and finally extracts the declared response headers. The body is closed unless returned.
func (d *ResponseDecoder) Decode(resp *http.Response, cfg domain.OperationConfig, schema *domain.DerivedSchema, rc ResolvedConfig) (*domain.Output, error) {
	log := d.logger.With(slog.String("operation", cfg.ID), slog.Int("status_code", resp.StatusCode))
	out := &domain.Output{StatusCode: resp.StatusCode}

	handedOut := false
	defer func() {
		if !handedOut && resp.Body != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()

	contentSchema := schema.OutputSection(domain.SectionContent)
	switch {
	case resp.Body == nil || resp.Body == http.NoBody:
	case resp.StatusCode == http.StatusNoContent:
		log.Debug("No content status, skipping body")
	case cfg.OutputAsStream:
		body, err := inflate(resp)
		if err != nil {
			return nil, domain.ContentError("Could not decode the response content", err)
		}
		out.Content = body
		handedOut = true
	case contentSchema == nil:
		log.Debug("No output content declared, discarding body")
	default:
		content, err := d.decodeContent(log, resp, cfg, contentSchema, rc)
		if err != nil {
			return nil, err
		}
		if content != nil {
			out.Content = content
		}
	}

	if section := schema.OutputSection(domain.SectionHeader); section != nil {
		for _, field := range section.Fields {
			values := resp.Header.Values(domain.HeaderWireName(field))
			if len(values) == 0 {
				continue
			}
			if out.Header == nil {
				out.Header = make(map[string][]string)
			}
			out.Header[field.Name] = append([]string(nil), values...)
		}
	}
	return out, nil
}

func (d *ResponseDecoder) decodeContent(log *slog.Logger, resp *http.Response, cfg domain.OperationConfig, contentSchema *domain.Field, rc ResolvedConfig) (map[string]any, error) {
	contentType := resp.Header.Get(headerContentType)
	if cfg.ResponseType != "" {
		contentType = cfg.ResponseType.MIMEType()
	} else if contentType == "" {
		contentType = rc.RequestType.Value.MIMEType()
	}
	tag := domain.ContentTypeForMIME(contentType)
	codec, ok := d.codecs[tag]
	if !ok {
		return nil, domain.ContentError("No codec for response type "+string(tag), nil)
	}

	body, err := inflate(resp)
	if err == io.EOF {
		log.Debug("Empty response body, nothing to decode")
		return nil, nil
	}
	if err != nil {
		return nil, domain.ContentError("Could not decode the response content", err)
	}
	defer body.Close()

	charset := domain.CharsetOf(resp.Header.Get(headerContentType))
	if charset == "" && tag != domain.ContentTypeXML {
		charset = rc.Charset.Value
	}
	var reader io.Reader = body
	opts := CodecOptions{
		Lenient:                  cfg.IsLenient(),
		CamelCaseDashes:          cfg.CamelCaseDashes,
		IgnoreRootIfArrayWrapper: cfg.UnwrapRootArray(),
	}
	if charset != "" {
		if reader, err = decodeCharset(body, charset); err != nil {
			return nil, domain.ContentError("Could not decode the response content", err)
		}
		opts.Charset = DefaultCharset
	}

	buffered := bufio.NewReader(reader)
	if _, err := buffered.Peek(1); err == io.EOF {
		log.Debug("Empty response body, nothing to decode")
		return nil, nil
	}

	content, err := codec.Decode(buffered, contentSchema, opts)
	if err != nil {
		log.Warn("Failed to decode response content", slog.String("content_type", contentType), slog.Any("error", err))
		return nil, domain.ContentError("Could not decode the response content", err)
	}

	if cfg.ValidateOutput && d.validator != nil {
		if err := d.validator.Validate(content, contentSchema); err != nil {
			return nil, domain.OutputValidationError(err)
		}
	}
	if cfg.SanitizeOutput && d.sanitizer != nil {
		content = d.sanitizer.Sanitize(content)
	}
	return content, nil
}

// inflate returns the response body, gunzipped when the server says so.
func inflate(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get(headerContentEncoding)), "gzip") {
		return resp.Body, nil
	}
	return newGunzipBody(resp.Body)
}
