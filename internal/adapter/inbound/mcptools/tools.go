// Package mcptools exposes configured operations as Model Context Protocol tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// maxStreamBytes bounds how much of a streamed response body is rendered into a tool result.
const maxStreamBytes = 1 << 20

// Lister lists operations with their derived schema.
type Lister interface {
	Execute(ctx context.Context) ([]usecase.OperationSummary, error)
}

// Invoker invokes one operation.
type Invoker interface {
	Execute(ctx context.Context, name string, in *domain.Input) (*domain.Output, error)
}

// Registrar registers every operation as a tool on an MCP server.
type Registrar struct {
	lister  Lister
	invoker Invoker
	server  usecase.MCPServerAdapter
	logger  *slog.Logger
}

// NewRegistrar creates a new Registrar.
func NewRegistrar(lister Lister, invoker Invoker, server usecase.MCPServerAdapter, logger *slog.Logger) *Registrar {
	return &Registrar{
		lister:  lister,
		invoker: invoker,
		server:  server,
		logger:  logger.With("component", "mcp_tools"),
	}
}

// RegisterAll adds one tool per operation and returns how many were registered.
// Registering an existing name again replaces its definition.
func (r *Registrar) RegisterAll(ctx context.Context) (int, error) {
	summaries, err := r.lister.Execute(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list operations: %w", err)
	}
	registered := 0
	for _, s := range summaries {
		tool, err := NewTool(s.Tool)
		if err != nil {
			r.logger.Error("Failed to build MCP tool", slog.String("operation", s.Config.ID), slog.Any("error", err))
			continue
		}
		r.server.AddTool(tool, r.Handler(s.Config.ID))
		registered++
		r.logger.Debug("Registered MCP tool", slog.String("tool", tool.Name))
	}
	r.logger.Info("Registered MCP tools", slog.Int("count", registered))
	return registered, nil
}

// NewTool converts a domain tool description into an mcp-go tool.
func NewTool(t domain.Tool) (mcp.Tool, error) {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to marshal input schema of %s: %w", t.Name, err)
	}
	return mcp.NewToolWithRawSchema(t.Name, t.Description, schema), nil
}

// Handler returns the tool handler invoking the named operation.
func (r *Registrar) Handler(name string) mcpGoServer.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := r.logger.With(slog.String("tool", name))

		in, err := domain.InputFromMap(request.GetArguments())
		if err != nil {
			log.Warn("Invalid tool arguments", slog.Any("error", err))
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := r.invoker.Execute(ctx, name, in)
		if err != nil {
			return errorResult(err), nil
		}
		text, err := RenderOutput(out)
		if err != nil {
			log.Error("Failed to render tool result", slog.Any("error", err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to render result: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// RenderOutput renders an invocation result as indented JSON. A streamed body is read,
// up to a bound, and rendered as text; the stream is always closed.
func RenderOutput(out *domain.Output) (string, error) {
	if out == nil {
		return "{}", nil
	}
	rendered := *out
	if rc, ok := out.Content.(io.ReadCloser); ok {
		data, err := io.ReadAll(io.LimitReader(rc, maxStreamBytes))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read response stream: %w", err)
		}
		rendered.Content = string(data)
	}
	b, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func errorResult(err error) *mcp.CallToolResult {
	var derr *domain.Error
	if errors.As(err, &derr) {
		msg := fmt.Sprintf("[%s] %s", derr.Code, derr.Message)
		if derr.Err != nil {
			msg += ": " + derr.Err.Error()
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(err.Error())
}
