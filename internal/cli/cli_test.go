package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/i2y/restbridge/configs"
	"github.com/i2y/restbridge/internal/cli"
)

const definitionsTemplate = `
endpoints:
  orders:
    host: %s
    requestType: JSON
    responseType: JSON
operations:
  getOrder:
    description: Fetch one order
    endpoint: orders
    path: /orders/{id}
    queryParameters: expand
    output:
      name: Order
      fields:
        - {name: id}
        - {name: status}
`

const ordersDocument = `
openapi: 3.0.3
info: {title: Shop, version: "1"}
servers:
  - url: https://shop.example.com/v1
paths:
  /carts/{cartId}:
    get:
      operationId: getCart
      parameters:
        - {name: cartId, in: path, required: true, schema: {type: string}}
      responses:
        "200": {description: ok}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setup(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/7" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"7","status":%q}`, r.URL.Query().Get("expand"))
	}))
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	t.Setenv("RESTBRIDGE_CONFIG_FILE", writeFile(t, "restbridge.yaml", fmt.Sprintf(definitionsTemplate, host)))
	t.Setenv("RESTBRIDGE_LOG_LEVEL", "error")
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := cli.NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvoke(t *testing.T) {
	setup(t)

	out, err := run(t, "invoke", "getOrder", "-d", `{"path":{"id":"7"},"query":{"expand":"open"}}`)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, float64(200), result["statusCode"])
	assert.Equal(t, map[string]any{"id": "7", "status": "open"}, result["content"])
}

func TestInvoke_RemoteError(t *testing.T) {
	setup(t)

	_, err := run(t, "invoke", "getOrder", "-d", `{"path":{"id":"8"}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REST-CLIENT-404")
}

func TestInvoke_UsageErrors(t *testing.T) {
	setup(t)

	testCases := []struct {
		name string
		args []string
	}{
		{name: "missing operation", args: []string{"invoke"}},
		{name: "input not JSON", args: []string{"invoke", "getOrder", "-d", "nope"}},
		{name: "section of the wrong type", args: []string{"invoke", "getOrder", "-d", `{"path":"7"}`}},
		{name: "unknown flag", args: []string{"invoke", "getOrder", "--unknown-flag"}},
		{name: "invalid transport", args: []string{"serve", "--transport", "carrier-pigeon"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, cli.ErrUsage)
		})
	}
}

func TestSchema(t *testing.T) {
	setup(t)

	out, err := run(t, "schema", "getOrder")
	require.NoError(t, err)

	var tool map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tool))
	assert.Equal(t, "getOrder", tool["name"])
	assert.Equal(t, "Fetch one order", tool["description"])
	props := tool["input_schema"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "path")
	assert.Contains(t, props, "query")

	_, err = run(t, "schema", "missing")
	assert.ErrorContains(t, err, "operation not found")
}

func TestList(t *testing.T) {
	setup(t)

	out, err := run(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"OPERATION", "METHOD", "ENDPOINT", "PATH"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"getOrder", "GET", "orders", "/orders/{id}"}, strings.Fields(lines[1]))
}

func TestImport(t *testing.T) {
	setup(t)
	doc := writeFile(t, "shop.yaml", ordersDocument)

	out, err := run(t, "import", doc, "--endpoint", "shop")
	require.NoError(t, err)

	var file configs.FileConfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &file))
	require.Contains(t, file.Endpoints, "shop")
	assert.Equal(t, "shop.example.com", file.Endpoints["shop"].Host)
	assert.Equal(t, "/v1", file.Endpoints["shop"].BasePath)
	require.Contains(t, file.Operations, "shop_getcart")
	assert.Equal(t, "/carts/{cartId}", file.Operations["shop_getcart"].Path)
}

func TestConfigFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("RESTBRIDGE_CONFIG_FILE", "")
	t.Setenv("RESTBRIDGE_LOG_LEVEL", "error")
	path := writeFile(t, "other.yaml", "operations:\n  ping:\n    host: localhost\n    path: /ping\n")

	out, err := run(t, "--config", path, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ping")
}
