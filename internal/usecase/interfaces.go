package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
)

// Standard errors returned by use cases and adapters.
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrEndpointNotFound  = errors.New("endpoint not found")
	ErrTransportNotFound = errors.New("http client not found")
)

// --- Transport ---

// Transport executes a compiled request. It owns the request body and closes it.
type Transport interface {
	Execute(ctx context.Context, req *domain.CompiledRequest, principal *domain.Principal, secure, followRedirects bool) (*http.Response, error)
}

// TransportResolver selects a transport by handle name. The empty name selects the default.
type TransportResolver interface {
	Transport(handle string) (Transport, error)
}

// --- Content ---

// CodecOptions tune encoding and decoding.
type CodecOptions struct {
	// Charset is the charset the bytes are in. Empty means unknown and lets the codec sniff.
	Charset string
	// Lenient tolerates unknown fields or elements.
	Lenient bool
	// CamelCaseDashes writes the field "someName" as "some-name". Decoding accepts both forms.
	CamelCaseDashes bool
	// IgnoreRootIfArrayWrapper maps a top-level array to the single repeated field of the schema.
	IgnoreRootIfArrayWrapper bool
}

// Codec encodes and decodes one body format, driven by a schema.
type Codec interface {
	Encode(w io.Writer, value any, schema *domain.Field, opts CodecOptions) error
	Decode(r io.Reader, schema *domain.Field, opts CodecOptions) (map[string]any, error)
}

// ContentValidator checks a structured value against a schema. It returns nil when valid.
type ContentValidator interface {
	Validate(value any, schema *domain.Field) error
}

// Sanitizer scrubs unsafe markup from decoded content.
type Sanitizer interface {
	Sanitize(value map[string]any) map[string]any
}

// SecurityProvider signs or otherwise mutates a compiled request.
// Returning false or an error aborts the invocation.
type SecurityProvider interface {
	Authenticate(ctx context.Context, req *domain.CompiledRequest, securityContext string) (bool, error)
}

// SecurityProviders looks up providers by security type.
type SecurityProviders interface {
	Provider(securityType string) (SecurityProvider, bool)
}

// --- Repository ---

// OperationRepository stores endpoints and operations. Saving an operation invalidates
// and rebuilds its derived schema.
type OperationRepository interface {
	SaveEndpoint(ctx context.Context, endpoint domain.EndpointConfig) error
	SaveOperation(ctx context.Context, cfg domain.OperationConfig) error
	FindOperation(ctx context.Context, name string) (*domain.Operation, error)
	FindEndpoint(ctx context.Context, name string) (*domain.EndpointConfig, error)
	List(ctx context.Context) ([]*domain.Operation, error)
}

// --- Import ---

// SchemaFetcher fetches an API description document.
type SchemaFetcher interface {
	Fetch(ctx context.Context, source string) (domain.APISchema, error)
}

// OperationGenerator turns a fetched document into an endpoint and its operations.
type OperationGenerator interface {
	Generate(schema domain.APISchema, endpointName string) (domain.EndpointConfig, []domain.OperationConfig, error)
}

// --- MCP Server Abstraction ---

// MCPServerAdapter is the part of an MCP server the tool registration needs.
type MCPServerAdapter interface {
	AddTool(tool mcp.Tool, handlerFunc mcpGoServer.ToolHandlerFunc)
}
