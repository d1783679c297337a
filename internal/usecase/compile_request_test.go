package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

func boolPtr(b bool) *bool { return &b }

type compileCase struct {
	cfg domain.OperationConfig
	ep  *domain.EndpointConfig
	in  *domain.Input
}

func compile(t *testing.T, c compileCase, compiler *usecase.RequestCompiler) (*usecase.Compilation, error) {
	t.Helper()
	deriver := usecase.NewSchemaDeriver(testLogger())
	if c.cfg.ID == "" {
		c.cfg.ID = "op"
	}
	if c.cfg.Host == "" && (c.ep == nil || c.ep.Host == "") {
		c.cfg.Host = "api.example.com"
	}
	schema := deriver.Derive(c.cfg, c.ep, nil)
	rc := usecase.Resolve(c.cfg, c.ep, c.in)
	if compiler == nil {
		compiler = usecase.NewRequestCompiler(testCodecs(), requiredValidator{}, nil, testLogger())
	}
	return compiler.Compile(context.Background(), c.cfg, c.ep, schema, rc, c.in)
}

func TestRequestCompiler_QuerySerialization(t *testing.T) {
	tests := []struct {
		name       string
		format     domain.CollectionFormat
		query      map[string]any
		wantTarget string
	}{
		{name: "scalar", query: map[string]any{"tag": "a b&c"}, wantTarget: "/search?tag=a%20b%26c"},
		{name: "csv", format: domain.CollectionCSV, query: map[string]any{"tag": []any{"a", "b,c", nil, 3}}, wantTarget: "/search?tag=a,b%2Cc,3"},
		{name: "multi", format: domain.CollectionMulti, query: map[string]any{"tag": []string{"a", "b"}}, wantTarget: "/search?tag=a&tag=b"},
		{name: "label", format: domain.CollectionLabel, query: map[string]any{"tag": []string{"a", "b"}}, wantTarget: "/search?.a,b"},
		{name: "matrix implode", format: domain.CollectionMatrixImplode, query: map[string]any{"tag": []string{"a", "b"}}, wantTarget: "/search?;tag=a,b"},
		{name: "matrix explode", format: domain.CollectionMatrixExplode, query: map[string]any{"tag": []string{"a", "b"}}, wantTarget: "/search?;tag=a&tag=b"},
		{name: "null skipped", query: map[string]any{"tag": nil, "page": 2}, wantTarget: "/search?page=2"},
		{name: "empty list emits nothing", query: map[string]any{"tag": []any{}}, wantTarget: "/search"},
		{name: "alias and order", query: map[string]any{"page": true, "page_size": 10, "tag": "x"}, wantTarget: "/search?tag=x&page=true&page-size=10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.OperationConfig{
				Path:            "/search",
				QueryParameters: "tag page page-size",
				QueryFields:     []*domain.Field{{Name: "tag", Repeated: true, CollectionFormat: tt.format}},
			}
			comp, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Query: tt.query}}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, comp.Request.Target)
		})
	}
}

func TestRequestCompiler_QueryWireNameEscaped(t *testing.T) {
	cfg := domain.OperationConfig{Path: "/search", QueryParameters: "filter[status]"}
	comp, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Query: map[string]any{"filter_status_": []any{"open", "paid"}}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/search?filter%5Bstatus%5D=open,paid", comp.Request.Target)
}

func TestRequestCompiler_StructuredQueryValue(t *testing.T) {
	cfg := domain.OperationConfig{Path: "/search", QueryParameters: "filter"}
	for _, value := range []any{map[string]any{"a": 1}, []any{map[string]any{"a": 1}}} {
		_, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Query: map[string]any{"filter": value}}}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotSupported))
		assert.Equal(t, domain.CodeNotSupported, domain.CodeOf(err))
	}
}

func TestRequestCompiler_PathAssembly(t *testing.T) {
	tests := []struct {
		name       string
		cfg        domain.OperationConfig
		ep         *domain.EndpointConfig
		in         *domain.Input
		wantTarget string
	}{
		{
			name:       "placeholder substituted",
			cfg:        domain.OperationConfig{Path: "/users/{id}/orders"},
			in:         &domain.Input{Path: map[string]any{"id": "42"}},
			wantTarget: "/users/42/orders",
		},
		{
			name:       "missing value resolves to empty string",
			cfg:        domain.OperationConfig{Path: "/users/{id}/orders"},
			in:         &domain.Input{},
			wantTarget: "/users//orders",
		},
		{
			name:       "regex placeholder and integer value",
			cfg:        domain.OperationConfig{Path: "items/{ id:[0-9]+ }"},
			in:         &domain.Input{Path: map[string]any{"id": 7}},
			wantTarget: "/items/7",
		},
		{
			name:       "values are substituted once per placeholder",
			cfg:        domain.OperationConfig{Path: "/{a}/{b}/{a}"},
			in:         &domain.Input{Path: map[string]any{"a": "{b}", "b": "x"}},
			wantTarget: "/{b}/x/{b}",
		},
		{
			name:       "base path prefixed and slashes collapsed",
			cfg:        domain.OperationConfig{Path: "/users"},
			ep:         &domain.EndpointConfig{Host: "api.example.com", BasePath: "/v1/"},
			in:         &domain.Input{},
			wantTarget: "/v1/users",
		},
		{
			name:       "root base path ignored",
			cfg:        domain.OperationConfig{Path: "/users"},
			ep:         &domain.EndpointConfig{Host: "api.example.com", BasePath: "/"},
			in:         &domain.Input{},
			wantTarget: "/users",
		},
		{
			name:       "endpoint override path becomes root",
			cfg:        domain.OperationConfig{Path: "users"},
			in:         &domain.Input{Endpoint: mustURL(t, "https://other.example.com/tenant")},
			wantTarget: "/tenant/users",
		},
		{
			name:       "existing question mark joins with ampersand",
			cfg:        domain.OperationConfig{Path: "/search?fixed=1", QueryParameters: "q"},
			in:         &domain.Input{Query: map[string]any{"q": "go"}},
			wantTarget: "/search?fixed=1&q=go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := compile(t, compileCase{cfg: tt.cfg, ep: tt.ep, in: tt.in}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, comp.Request.Target)
		})
	}
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestRequestCompiler_ConfigurationErrors(t *testing.T) {
	compiler := usecase.NewRequestCompiler(testCodecs(), nil, nil, testLogger())
	deriver := usecase.NewSchemaDeriver(testLogger())

	noHost := domain.OperationConfig{ID: "op", Path: "/x"}
	_, err := compiler.Compile(context.Background(), noHost, nil, deriver.Derive(noHost, nil, nil), usecase.Resolve(noHost, nil, nil), nil)
	assert.Equal(t, domain.CodeNoHost, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "No host configured for: op")

	noPath := domain.OperationConfig{ID: "op", Host: "h"}
	_, err = compiler.Compile(context.Background(), noPath, nil, deriver.Derive(noPath, nil, nil), usecase.Resolve(noPath, nil, nil), nil)
	assert.Equal(t, domain.CodeNoPath, domain.CodeOf(err))
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestRequestCompiler_Body(t *testing.T) {
	t.Run("structured value is encoded with exact length", func(t *testing.T) {
		cfg := domain.OperationConfig{Method: "post", Path: "/items", RequestType: domain.ContentTypeJSON,
			Input: &domain.Field{Name: "item", Fields: []*domain.Field{{Name: "name"}}}}
		comp, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Content: map[string]any{"name": "n"}}}, nil)
		require.NoError(t, err)

		body, err := io.ReadAll(comp.Request.Body)
		require.NoError(t, err)
		assert.Equal(t, "POST", comp.Request.Method)
		assert.Equal(t, domain.MIMEJSON, comp.Request.Header.Get("Content-Type"))
		assert.Equal(t, strconv.Itoa(len(body)), comp.Request.Header.Get("Content-Length"))
		assert.JSONEq(t, `{"name":"n"}`, string(body))
		assert.Equal(t, domain.MIMEXML, comp.Request.Header.Get("Accept"))
		assert.Equal(t, "api.example.com", comp.Request.Header.Get("Host"))
	})

	t.Run("stream passes through chunked", func(t *testing.T) {
		cfg := domain.OperationConfig{Method: "PUT", Path: "/blob", InputAsStream: true}
		comp, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Content: strings.NewReader("raw")}}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.MIMEOctetStream, comp.Request.Header.Get("Content-Type"))
		assert.Equal(t, "Chunked", comp.Request.Header.Get("Transfer-Encoding"))
		assert.False(t, comp.Request.Header.Has("Content-Length"))
		body, _ := io.ReadAll(comp.Request.Body)
		assert.Equal(t, "raw", string(body))
	})

	t.Run("null body has zero length", func(t *testing.T) {
		comp, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, in: &domain.Input{}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "0", comp.Request.Header.Get("Content-Length"))
		assert.Nil(t, comp.Request.Body)
	})

	t.Run("zero length omitted for GET when requested", func(t *testing.T) {
		ep := &domain.EndpointConfig{Host: "api.example.com", OmitContentLengthIfEmpty: true}
		comp, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, ep: ep, in: &domain.Input{}}, nil)
		require.NoError(t, err)
		assert.False(t, comp.Request.Header.Has("Content-Length"))
	})

	t.Run("unsupported value type", func(t *testing.T) {
		_, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, in: &domain.Input{Content: 42}}, nil)
		assert.Equal(t, domain.CodeInvalidContent, domain.CodeOf(err))
	})

	t.Run("input validation", func(t *testing.T) {
		cfg := domain.OperationConfig{Method: "POST", Path: "/items", ValidateInput: true,
			Input: &domain.Field{Name: "item", Fields: []*domain.Field{{Name: "name", MinOccurs: 1}}}}
		_, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Content: map[string]any{}}}, nil)
		assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
		assert.True(t, errors.Is(err, domain.ErrInputValidation))
	})
}

func TestRequestCompiler_Headers(t *testing.T) {
	cfg := domain.OperationConfig{
		Method:         "POST",
		Path:           "/x",
		RequestType:    domain.ContentTypeJSON,
		RequestHeaders: "X-Tag Content-Type Content-Length",
		Input:          &domain.Field{Name: "body"},
	}

	comp, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{
		Content: map[string]any{"a": 1},
		Header: map[string]any{
			"xTag":        []any{"one", "two"},
			"contentType": "application/vnd.custom+json",
		},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, comp.Request.Header.Values("X-Tag"))
	assert.Equal(t, []string{"application/vnd.custom+json"}, comp.Request.Header.Values("Content-Type"))

	accept := domain.OperationConfig{Path: "/x", RequestHeaders: "Accept"}
	comp, err = compile(t, compileCase{cfg: accept, in: &domain.Input{Header: map[string]any{"accept": "text/csv"}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"text/csv"}, comp.Request.Header.Values("Accept"))

	stream := domain.OperationConfig{Method: "PUT", Path: "/x", InputAsStream: true, RequestHeaders: "Content-Length"}
	comp, err = compile(t, compileCase{cfg: stream, in: &domain.Input{
		Content: strings.NewReader("abc"),
		Header:  map[string]any{"contentLength": 3},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "3", comp.Request.Header.Get("Content-Length"))
	assert.False(t, comp.Request.Header.Has("Transfer-Encoding"))
}

func TestRequestCompiler_Gzip(t *testing.T) {
	cfg := domain.OperationConfig{Method: "POST", Path: "/x", Gzip: boolPtr(true), RequestType: domain.ContentTypeJSON, Input: &domain.Field{Name: "body"}}
	comp, err := compile(t, compileCase{cfg: cfg, in: &domain.Input{Content: map[string]any{"a": "b"}}}, nil)
	require.NoError(t, err)

	h := comp.Request.Header
	assert.Equal(t, "gzip", h.Get("Accept-Encoding"))
	assert.Equal(t, "gzip", h.Get("Content-Encoding"))
	assert.Equal(t, "Chunked", h.Get("Transfer-Encoding"))
	assert.False(t, h.Has("Content-Length"))

	compressed, err := io.ReadAll(comp.Request.Body)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(plain))

	empty, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x", Gzip: boolPtr(true)}, in: &domain.Input{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gzip", empty.Request.Header.Get("Accept-Encoding"))
	assert.False(t, empty.Request.Header.Has("Content-Encoding"))
	assert.Equal(t, "0", empty.Request.Header.Get("Content-Length"))
}

func TestRequestCompiler_APIKeys(t *testing.T) {
	tests := []struct {
		name       string
		ep         *domain.EndpointConfig
		in         *domain.Input
		wantHeader map[string]string
		noHeader   string
		wantTarget string
	}{
		{
			name:       "fixed header key injected",
			ep:         &domain.EndpointConfig{Host: "h", APIHeaderName: "X-Api-Key", APIHeaderKey: "secret"},
			in:         &domain.Input{},
			wantHeader: map[string]string{"X-Api-Key": "secret"},
			wantTarget: "/x",
		},
		{
			name:       "fixed key without name uses apiKey",
			ep:         &domain.EndpointConfig{Host: "h", APIHeaderKey: "secret", APIQueryKey: "q%20k"},
			in:         &domain.Input{},
			wantHeader: map[string]string{"apiKey": "secret"},
			wantTarget: "/x?apiKey=q%20k",
		},
		{
			name:       "caller supplied header key",
			ep:         &domain.EndpointConfig{Host: "h", APIHeaderName: "X-Api-Key"},
			in:         &domain.Input{APIHeaderKey: "mine"},
			wantHeader: map[string]string{"X-Api-Key": "mine"},
			wantTarget: "/x",
		},
		{
			name:       "caller key absent means no header",
			ep:         &domain.EndpointConfig{Host: "h", APIHeaderName: "X-Api-Key"},
			in:         &domain.Input{},
			noHeader:   "X-Api-Key",
			wantTarget: "/x",
		},
		{
			name:       "caller supplied query key",
			ep:         &domain.EndpointConfig{Host: "h", APIQueryName: "key", UserAgent: "restbridge-test"},
			in:         &domain.Input{APIQueryKey: "a b"},
			wantHeader: map[string]string{"User-Agent": "restbridge-test"},
			wantTarget: "/x?key=a%20b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, ep: tt.ep, in: tt.in}, nil)
			require.NoError(t, err)
			for k, v := range tt.wantHeader {
				assert.Equal(t, v, comp.Request.Header.Get(k))
			}
			if tt.noHeader != "" {
				assert.False(t, comp.Request.Header.Has(tt.noHeader))
			}
			assert.Equal(t, tt.wantTarget, comp.Request.Target)
		})
	}
}

func TestRequestCompiler_Authentication(t *testing.T) {
	tests := []struct {
		name          string
		cfg           domain.OperationConfig
		in            *domain.Input
		wantKind      domain.PrincipalKind
		wantAuthValue string
	}{
		{
			name:     "reactive basic",
			cfg:      domain.OperationConfig{Path: "/x", Username: "alice", Password: "pw"},
			wantKind: domain.PrincipalBasic,
		},
		{
			name:     "ntlm split",
			cfg:      domain.OperationConfig{Path: "/x", Username: `CORP\alice`, Password: "pw"},
			wantKind: domain.PrincipalNTLM,
		},
		{
			name:          "preemptive basic",
			cfg:           domain.OperationConfig{Path: "/x", Username: "CORP/alice", Password: "pw", PreemptiveAuthorizationType: domain.AuthBasic},
			wantKind:      domain.PrincipalBasic,
			wantAuthValue: "Basic Q09SUC9hbGljZTpwdw==",
		},
		{
			name:          "preemptive bearer uses the username as token",
			cfg:           domain.OperationConfig{Path: "/x", PreemptiveAuthorizationType: domain.AuthBearer},
			in:            &domain.Input{Authentication: &domain.Authentication{Username: "tok123"}},
			wantKind:      domain.PrincipalBasic,
			wantAuthValue: "Bearer tok123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			if in == nil {
				in = &domain.Input{}
			}
			comp, err := compile(t, compileCase{cfg: tt.cfg, in: in}, nil)
			require.NoError(t, err)
			require.NotNil(t, comp.Principal)
			assert.Equal(t, tt.wantKind, comp.Principal.Kind)
			assert.Equal(t, tt.wantAuthValue, comp.Request.Header.Get("Authorization"))
		})
	}
}

func TestRequestCompiler_SecurityProvider(t *testing.T) {
	ep := &domain.EndpointConfig{Host: "h", SecurityType: "sign", SecurityContext: "ctx-1"}

	t.Run("provider mutates the request", func(t *testing.T) {
		provider := new(MockSecurityProvider)
		provider.On("Authenticate", mock.Anything, mock.AnythingOfType("*domain.CompiledRequest"), "ctx-1").
			Run(func(args mock.Arguments) {
				args.Get(1).(*domain.CompiledRequest).Header.Set("X-Signature", "sig")
			}).
			Return(true, nil).Once()
		compiler := usecase.NewRequestCompiler(testCodecs(), nil, providerMap{"sign": provider}, testLogger())

		comp, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, ep: ep, in: &domain.Input{}}, compiler)
		require.NoError(t, err)
		assert.Equal(t, "sig", comp.Request.Header.Get("X-Signature"))
		provider.AssertExpectations(t)
	})

	t.Run("declined or failing provider aborts", func(t *testing.T) {
		for _, ret := range []struct {
			ok  bool
			err error
		}{{false, nil}, {true, errors.New("vault down")}} {
			provider := new(MockSecurityProvider)
			provider.On("Authenticate", mock.Anything, mock.Anything, "ctx-1").Return(ret.ok, ret.err).Once()
			compiler := usecase.NewRequestCompiler(testCodecs(), nil, providerMap{"sign": provider}, testLogger())

			_, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, ep: ep, in: &domain.Input{}}, compiler)
			assert.Equal(t, domain.CodeAuthentication, domain.CodeOf(err))
			provider.AssertExpectations(t)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := compile(t, compileCase{cfg: domain.OperationConfig{Path: "/x"}, ep: ep, in: &domain.Input{}}, nil)
		assert.True(t, errors.Is(err, domain.ErrAuthentication))
	})
}
