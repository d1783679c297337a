package mcptools_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i2y/restbridge/internal/adapter/inbound/mcptools"
	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

type mockLister struct{ mock.Mock }

func (m *mockLister) Execute(ctx context.Context) ([]usecase.OperationSummary, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]usecase.OperationSummary)
	return list, args.Error(1)
}

type mockInvoker struct{ mock.Mock }

func (m *mockInvoker) Execute(ctx context.Context, name string, in *domain.Input) (*domain.Output, error) {
	args := m.Called(ctx, name, in)
	out, _ := args.Get(0).(*domain.Output)
	return out, args.Error(1)
}

type mockServer struct{ mock.Mock }

func (m *mockServer) AddTool(tool mcp.Tool, handler mcpGoServer.ToolHandlerFunc) {
	m.Called(tool, handler)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestRegistrar_RegisterAll(t *testing.T) {
	summaries := []usecase.OperationSummary{
		{
			Config: domain.OperationConfig{ID: "getOrder"},
			Tool: domain.Tool{
				Name:        "getOrder",
				Description: "Fetch one order",
				InputSchema: domain.JSONSchemaProps{Type: "object", Properties: map[string]domain.JSONSchemaProps{
					"path": {Type: "object"},
				}},
			},
		},
		{Config: domain.OperationConfig{ID: "listOrders"}, Tool: domain.Tool{Name: "listOrders"}},
	}
	lister := new(mockLister)
	lister.On("Execute", mock.Anything).Return(summaries, nil)
	server := new(mockServer)
	server.On("AddTool", mock.AnythingOfType("mcp.Tool"), mock.Anything).Return()

	n, err := mcptools.NewRegistrar(lister, new(mockInvoker), server, discard()).RegisterAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	server.AssertNumberOfCalls(t, "AddTool", 2)

	first := server.Calls[0].Arguments.Get(0).(mcp.Tool)
	assert.Equal(t, "getOrder", first.Name)
	assert.Equal(t, "Fetch one order", first.Description)
	assert.JSONEq(t, `{"type":"object","properties":{"path":{"type":"object"}}}`, string(first.RawInputSchema))
}

func TestRegistrar_RegisterAllListFailure(t *testing.T) {
	lister := new(mockLister)
	lister.On("Execute", mock.Anything).Return(nil, errors.New("boom"))

	_, err := mcptools.NewRegistrar(lister, new(mockInvoker), new(mockServer), discard()).RegisterAll(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestRegistrar_Handler(t *testing.T) {
	testCases := []struct {
		name      string
		args      map[string]any
		output    *domain.Output
		err       error
		wantError bool
		wantText  string
	}{
		{
			name:     "success renders output",
			args:     map[string]any{"path": map[string]any{"id": "7"}},
			output:   &domain.Output{StatusCode: 200, Content: map[string]any{"id": "7"}},
			wantText: `"statusCode": 200`,
		},
		{
			name:     "stream is read",
			args:     map[string]any{},
			output:   &domain.Output{StatusCode: 200, Content: io.NopCloser(strings.NewReader("raw bytes"))},
			wantText: `"content": "raw bytes"`,
		},
		{
			name:      "remote failure",
			args:      map[string]any{},
			err:       domain.RemoteError(404, "Not Found", "no such order"),
			wantError: true,
			wantText:  "[REST-CLIENT-404] An error occurred on the remote server: [404] Not Found\nno such order",
		},
		{
			name:      "validation failure keeps cause",
			args:      map[string]any{},
			err:       domain.InputValidationError(errors.New("id: required")),
			wantError: true,
			wantText:  "[REST-CLIENT-5] The input provided to the rest client is invalid: id: required",
		},
		{
			name:      "invalid arguments",
			args:      map[string]any{"query": "not an object"},
			wantError: true,
			wantText:  "invalid arguments",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			invoker := new(mockInvoker)
			invoker.On("Execute", mock.Anything, "getOrder", mock.AnythingOfType("*domain.Input")).Return(tc.output, tc.err)
			reg := mcptools.NewRegistrar(new(mockLister), invoker, new(mockServer), discard())

			res, err := reg.Handler("getOrder")(context.Background(), callRequest(tc.args))
			require.NoError(t, err)
			assert.Equal(t, tc.wantError, res.IsError)
			assert.Contains(t, resultText(t, res), tc.wantText)
		})
	}
}

func TestRegistrar_HandlerPassesInput(t *testing.T) {
	invoker := new(mockInvoker)
	invoker.On("Execute", mock.Anything, "getOrder", mock.MatchedBy(func(in *domain.Input) bool {
		return in.TransactionID == "tx-1" && in.Path["id"] == "7" && in.Query["expand"] == "lines"
	})).Return(&domain.Output{StatusCode: 204}, nil)
	reg := mcptools.NewRegistrar(new(mockLister), invoker, new(mockServer), discard())

	_, err := reg.Handler("getOrder")(context.Background(), callRequest(map[string]any{
		"transactionId": "tx-1",
		"path":          map[string]any{"id": "7"},
		"query":         map[string]any{"expand": "lines"},
	}))
	require.NoError(t, err)
	invoker.AssertExpectations(t)
}

func TestRenderOutput(t *testing.T) {
	text, err := mcptools.RenderOutput(&domain.Output{StatusCode: 201, Header: map[string][]string{"Location": {"/orders/9"}}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, float64(201), decoded["statusCode"])
	assert.Equal(t, []any{"/orders/9"}, decoded["header"].(map[string]any)["Location"])

	empty, err := mcptools.RenderOutput(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
}
