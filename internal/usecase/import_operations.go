package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/i2y/restbridge/internal/domain"
)

// ImportOperationsUseCase orchestrates fetching an API description, generating the
// endpoint and operations from it, and storing them.
type ImportOperationsUseCase struct {
	fetchers   map[domain.SchemaType]SchemaFetcher
	generator  OperationGenerator
	repository OperationRepository
	logger     *slog.Logger
}

// NewImportOperationsUseCase creates a new ImportOperationsUseCase.
// fetchers are keyed by the schema type they handle.
func NewImportOperationsUseCase(
	fetchers map[domain.SchemaType]SchemaFetcher,
	generator OperationGenerator,
	repository OperationRepository,
	logger *slog.Logger,
) *ImportOperationsUseCase {
	return &ImportOperationsUseCase{
		fetchers:   fetchers,
		generator:  generator,
		repository: repository,
		logger:     logger.With("usecase", "ImportOperations"),
	}
}

// ImportResult describes what an import stored.
type ImportResult struct {
	Endpoint   domain.EndpointConfig
	Operations []domain.OperationConfig
}

// Execute imports the document at source under endpointName. github:// sources use the
// GitHub fetcher, everything else the OpenAPI fetcher.
func (uc *ImportOperationsUseCase) Execute(ctx context.Context, source, endpointName string) (*ImportResult, error) {
	log := uc.logger.With(slog.String("source", source), slog.String("endpoint", endpointName))
	log.Info("Starting operation import")

	schemaType := domain.SchemaTypeOpenAPI
	if strings.HasPrefix(source, "github://") {
		schemaType = domain.SchemaTypeGitHub
	}
	fetcher, ok := uc.fetchers[schemaType]
	if !ok {
		log.Error("No schema fetcher available for source", slog.String("schema_type", string(schemaType)))
		return nil, fmt.Errorf("no schema fetcher available for source: %s", source)
	}

	// 1. Fetch
	schema, err := fetcher.Fetch(ctx, source)
	if err != nil {
		log.Error("Failed to fetch schema", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch schema from %s: %w", source, err)
	}
	log.Info("Schema fetched successfully", slog.String("schema_type", string(schema.Type)))

	// 2. Generate
	endpoint, operations, err := uc.generator.Generate(schema, endpointName)
	if err != nil {
		log.Error("Failed to generate operations", slog.Any("error", err))
		return nil, fmt.Errorf("failed to generate operations for schema %s: %w", source, err)
	}

	// 3. Save, endpoint first so operations resolve it
	if err := uc.repository.SaveEndpoint(ctx, endpoint); err != nil {
		log.Error("Failed to save endpoint", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save endpoint %s: %w", endpoint.Name, err)
	}
	for _, op := range operations {
		if err := uc.repository.SaveOperation(ctx, op); err != nil {
			log.Error("Failed to save operation", slog.String("operation", op.ID), slog.Any("error", err))
			return nil, fmt.Errorf("failed to save operation %s: %w", op.ID, err)
		}
	}

	log.Info("Successfully imported operations", slog.Int("operation_count", len(operations)))
	return &ImportResult{Endpoint: endpoint, Operations: operations}, nil
}
