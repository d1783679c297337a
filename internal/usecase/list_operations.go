package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/i2y/restbridge/internal/domain"
)

// OperationSummary is an operation together with its derived schema.
type OperationSummary struct {
	Config domain.OperationConfig
	Schema *domain.DerivedSchema
	Tool   domain.Tool
}

// ListOperationsUseCase provides the functionality to list configured operations.
type ListOperationsUseCase struct {
	repository OperationRepository
	deriver    *SchemaDeriver
	logger     *slog.Logger
}

// NewListOperationsUseCase creates a new ListOperationsUseCase.
func NewListOperationsUseCase(repository OperationRepository, deriver *SchemaDeriver, logger *slog.Logger) *ListOperationsUseCase {
	return &ListOperationsUseCase{
		repository: repository,
		deriver:    deriver,
		logger:     logger.With("usecase", "ListOperations"),
	}
}

// Execute retrieves all operations, sorted by name.
func (uc *ListOperationsUseCase) Execute(ctx context.Context) ([]OperationSummary, error) {
	uc.logger.Info("Listing operations")
	ops, err := uc.repository.List(ctx)
	if err != nil {
		uc.logger.Error("Failed to list operations from repository", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list operations from repository: %w", err)
	}
	summaries := make([]OperationSummary, 0, len(ops))
	for _, op := range ops {
		summaries = append(summaries, uc.summarize(op))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Config.ID < summaries[j].Config.ID })
	uc.logger.Info("Successfully listed operations", slog.Int("count", len(summaries)))
	return summaries, nil
}

// Describe returns the summary of a single operation.
func (uc *ListOperationsUseCase) Describe(ctx context.Context, name string) (OperationSummary, error) {
	op, err := uc.repository.FindOperation(ctx, name)
	if err != nil {
		uc.logger.Warn("Operation not found", slog.String("operation", name), slog.Any("error", err))
		return OperationSummary{}, fmt.Errorf("operation '%s': %w", name, err)
	}
	return uc.summarize(op), nil
}

func (uc *ListOperationsUseCase) summarize(op *domain.Operation) OperationSummary {
	cfg, _, schema := op.Snapshot(uc.deriver.Derive)
	return OperationSummary{Config: cfg, Schema: schema, Tool: domain.NewTool(cfg, schema)}
}
