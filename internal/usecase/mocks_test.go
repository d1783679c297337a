package usecase_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/stretchr/testify/mock"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// MockOperationRepository is a mock implementation of the OperationRepository interface.
type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) SaveEndpoint(ctx context.Context, endpoint domain.EndpointConfig) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

func (m *MockOperationRepository) SaveOperation(ctx context.Context, cfg domain.OperationConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockOperationRepository) FindOperation(ctx context.Context, name string) (*domain.Operation, error) {
	args := m.Called(ctx, name)
	op := args.Get(0)
	if op == nil {
		return nil, args.Error(1)
	}
	return op.(*domain.Operation), args.Error(1)
}

func (m *MockOperationRepository) FindEndpoint(ctx context.Context, name string) (*domain.EndpointConfig, error) {
	args := m.Called(ctx, name)
	ep := args.Get(0)
	if ep == nil {
		return nil, args.Error(1)
	}
	return ep.(*domain.EndpointConfig), args.Error(1)
}

func (m *MockOperationRepository) List(ctx context.Context) ([]*domain.Operation, error) {
	args := m.Called(ctx)
	ops := args.Get(0)
	if ops == nil {
		return nil, args.Error(1)
	}
	return ops.([]*domain.Operation), args.Error(1)
}

// MockTransport is a mock implementation of the Transport and TransportResolver interfaces.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Transport(handle string) (usecase.Transport, error) {
	return m, nil
}

func (m *MockTransport) Execute(ctx context.Context, req *domain.CompiledRequest, principal *domain.Principal, secure, followRedirects bool) (*http.Response, error) {
	args := m.Called(ctx, req, principal, secure, followRedirects)
	resp := args.Get(0)
	if resp == nil {
		return nil, args.Error(1)
	}
	return resp.(*http.Response), args.Error(1)
}

// MockSecurityProvider is a mock implementation of SecurityProvider.
type MockSecurityProvider struct {
	mock.Mock
}

func (m *MockSecurityProvider) Authenticate(ctx context.Context, req *domain.CompiledRequest, securityContext string) (bool, error) {
	args := m.Called(ctx, req, securityContext)
	return args.Bool(0), args.Error(1)
}

type providerMap map[string]usecase.SecurityProvider

func (p providerMap) Provider(securityType string) (usecase.SecurityProvider, bool) {
	sp, ok := p[securityType]
	return sp, ok
}

// jsonCodec is a minimal schema-agnostic codec that emits keys in sorted order.
type jsonCodec struct{}

func (jsonCodec) Encode(w io.Writer, value any, schema *domain.Field, opts usecase.CodecOptions) error {
	return json.NewEncoder(w).Encode(value)
}

func (jsonCodec) Decode(r io.Reader, schema *domain.Field, opts usecase.CodecOptions) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func testCodecs() map[domain.ContentType]usecase.Codec {
	return map[domain.ContentType]usecase.Codec{
		domain.ContentTypeJSON: jsonCodec{},
		domain.ContentTypeXML:  jsonCodec{},
		domain.ContentTypeForm: jsonCodec{},
	}
}

// requiredValidator rejects maps missing any required child of the schema.
type requiredValidator struct{}

func (requiredValidator) Validate(value any, schema *domain.Field) error {
	m, _ := value.(map[string]any)
	var missing []string
	for _, f := range schema.Fields {
		if _, ok := m[f.Name]; f.Required() && !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &validationError{fields: missing}
}

type validationError struct{ fields []string }

func (e *validationError) Error() string {
	b, _ := json.Marshal(e.fields)
	return "missing required fields " + string(b)
}

// upperSanitizer marks sanitized content.
type upperSanitizer struct{}

func (upperSanitizer) Sanitize(value map[string]any) map[string]any {
	out := make(map[string]any, len(value)+1)
	for k, v := range value {
		out[k] = v
	}
	out["sanitized"] = true
	return out
}
