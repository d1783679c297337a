package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

func fieldNames(f *domain.Field) []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Fields))
	for _, c := range f.Fields {
		names = append(names, c.Name)
	}
	return names
}

func TestSchemaDeriver_Derive(t *testing.T) {
	deriver := usecase.NewSchemaDeriver(testLogger())

	tests := []struct {
		name  string
		cfg   domain.OperationConfig
		ep    *domain.EndpointConfig
		check func(t *testing.T, s *domain.DerivedSchema)
	}{
		{
			name: "minimal configuration has only the always present fields",
			cfg:  domain.OperationConfig{ID: "op", Path: "/ping"},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				assert.Equal(t, []string{"transactionId", "endpoint", "authentication"}, fieldNames(s.Input))
				assert.Empty(t, s.Output.Fields)
				assert.Equal(t, []string{"username", "password"}, fieldNames(s.Section("authentication")))
			},
		},
		{
			name: "query names are cleaned and keep the original as alias",
			cfg:  domain.OperationConfig{ID: "op", Path: "/", QueryParameters: "page-size, q  sort.by,q"},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				query := s.Section("query")
				require.NotNil(t, query)
				assert.Equal(t, []string{"page_size", "q", "sort_by"}, fieldNames(query))
				assert.Equal(t, "page-size", query.Field("page_size").Alias)
				assert.Empty(t, query.Field("q").Alias)
				assert.True(t, query.Field("q").Repeated)
				assert.Equal(t, 1, query.Field("q").MinOccurs)
				assert.True(t, query.Required(), "declared names without a fragment are required")
			},
		},
		{
			name: "header names map to field identifiers",
			cfg:  domain.OperationConfig{ID: "op", Path: "/", RequestHeaders: "X-Request-Id Content-Type", ResponseHeaders: "ETag"},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				header := s.Section("header")
				assert.Equal(t, []string{"xRequestId", "contentType"}, fieldNames(header))
				assert.Equal(t, "Content-Type", header.Field("contentType").Alias)
				assert.True(t, header.Required())
				assert.Equal(t, []string{"etag"}, fieldNames(s.OutputSection("header")))
			},
		},
		{
			name: "fragments keep their occurrence bounds",
			cfg: domain.OperationConfig{ID: "op", Path: "/", QueryParameters: "page", RequestHeaders: "X-Trace",
				QueryFields:         []*domain.Field{{Name: "page", Type: domain.KindInteger}},
				RequestHeaderFields: []*domain.Field{{Name: "xTrace", Alias: "X-Trace"}}},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				assert.Equal(t, 0, s.Section("query").Field("page").MinOccurs)
				assert.False(t, s.Section("query").Required())
				assert.False(t, s.Section("header").Required())
			},
		},
		{
			name: "path placeholders include the endpoint base path",
			cfg:  domain.OperationConfig{ID: "op", Path: "/users/{userId}/items/{ itemId:[0-9]+ }"},
			ep:   &domain.EndpointConfig{BasePath: "/tenants/{tenant}"},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				path := s.Section("path")
				require.NotNil(t, path)
				assert.Equal(t, []string{"tenant", "userId", "itemId"}, fieldNames(path))
				assert.True(t, path.Required())
				for _, f := range path.Fields {
					assert.Equal(t, 1, f.MinOccurs)
					assert.False(t, f.Repeated)
				}
			},
		},
		{
			name: "no placeholders means no path section",
			cfg:  domain.OperationConfig{ID: "op", Path: "/static"},
			ep:   &domain.EndpointConfig{BasePath: "/"},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				assert.Nil(t, s.Section("path"))
			},
		},
		{
			name: "stream body becomes a stream placeholder",
			cfg:  domain.OperationConfig{ID: "op", Path: "/upload", InputAsStream: true, OutputAsStream: true},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				assert.Equal(t, domain.KindStream, s.Section("content").Type)
				assert.Equal(t, domain.KindStream, s.OutputSection("content").Type)
			},
		},
		{
			name: "typed body keeps its root name as alias",
			cfg: domain.OperationConfig{ID: "op", Path: "/", Input: &domain.Field{Name: "ticket", Fields: []*domain.Field{{Name: "title"}}},
				Output: &domain.Field{Name: "result", Fields: []*domain.Field{{Name: "id", Type: domain.KindInteger}}}},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				content := s.Section("content")
				require.NotNil(t, content)
				assert.Equal(t, "ticket", content.Alias)
				assert.Equal(t, domain.KindObject, content.Type)
				assert.Equal(t, []string{"title"}, fieldNames(content))
				assert.Equal(t, []string{"content"}, fieldNames(s.Output))
			},
		},
		{
			name: "api key fields only without fixed keys",
			cfg:  domain.OperationConfig{ID: "op", Path: "/"},
			ep:   &domain.EndpointConfig{APIHeaderName: "X-Api-Key", APIQueryName: "key", APIQueryKey: "fixed"},
			check: func(t *testing.T, s *domain.DerivedSchema) {
				assert.NotNil(t, s.Section("apiHeaderKey"))
				assert.Nil(t, s.Section("apiQueryKey"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := deriver.Derive(tt.cfg, tt.ep, nil)
			tt.check(t, s)
		})
	}
}

func TestSchemaDeriver_Idempotent(t *testing.T) {
	deriver := usecase.NewSchemaDeriver(testLogger())
	cfg := domain.OperationConfig{
		ID:              "op",
		Path:            "/users/{id}",
		QueryParameters: "a b-c d",
		RequestHeaders:  "X-One",
		ResponseHeaders: "X-Two",
		Input:           &domain.Field{Name: "body", Fields: []*domain.Field{{Name: "x"}}},
	}
	ep := &domain.EndpointConfig{BasePath: "/v1", APIHeaderName: "X-Key"}

	first := deriver.Derive(cfg, ep, nil)
	second := deriver.Derive(cfg, ep, first)
	third := deriver.Derive(cfg, ep, second)

	assert.Equal(t, first, second)
	assert.Equal(t, second, third)
}

func TestSchemaDeriver_PreservesAndDrops(t *testing.T) {
	deriver := usecase.NewSchemaDeriver(testLogger())
	cfg := domain.OperationConfig{ID: "op", Path: "/", QueryParameters: "a,b"}
	first := deriver.Derive(cfg, nil, nil)

	// Metadata added to a derived field survives re-derivation.
	first.Section("query").Field("a").MinOccurs = 0
	first.Section("query").Field("a").CollectionFormat = domain.CollectionMulti

	cfg.QueryParameters = "a c"
	second := deriver.Derive(cfg, nil, first)
	query := second.Section("query")
	assert.Equal(t, []string{"a", "c"}, fieldNames(query))
	assert.Equal(t, domain.CollectionMulti, query.Field("a").CollectionFormat)
	assert.Equal(t, 0, query.Field("a").MinOccurs)
	assert.Equal(t, 1, query.Field("c").MinOccurs)
	assert.True(t, query.Required(), "section is required when a member is")

	cfg.QueryParameters = ""
	third := deriver.Derive(cfg, nil, second)
	assert.Nil(t, third.Section("query"))
}

func TestSchemaDeriver_PersistedFragments(t *testing.T) {
	deriver := usecase.NewSchemaDeriver(testLogger())
	cfg := domain.OperationConfig{
		ID:              "op",
		Path:            "/",
		QueryParameters: "ids",
		QueryFields:     []*domain.Field{{Name: "ids", Type: domain.KindInteger, Repeated: true, CollectionFormat: domain.CollectionLabel}},
	}
	s := deriver.Derive(cfg, nil, nil)
	ids := s.Section("query").Field("ids")
	assert.Equal(t, domain.KindInteger, ids.Type)
	assert.Equal(t, domain.CollectionLabel, ids.CollectionFormat)

	op := domain.NewOperation(cfg, nil)
	deriver.Schema(op)
	query, _, _, _ := op.Fragments()
	assert.Equal(t, cfg.QueryFields, query)
}

func TestPathPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, usecase.PathPlaceholders("/{a}/{ b : x }/{a}"))
	assert.Empty(t, usecase.PathPlaceholders("/plain"))
	assert.Equal(t, []string{"x", "y"}, usecase.SplitNames(" x,\ty  "))
}
