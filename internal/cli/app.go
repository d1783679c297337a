package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/i2y/restbridge/configs"
	"github.com/i2y/restbridge/internal/adapter/outbound/codec"
	"github.com/i2y/restbridge/internal/adapter/outbound/github"
	"github.com/i2y/restbridge/internal/adapter/outbound/httptransport"
	"github.com/i2y/restbridge/internal/adapter/outbound/memrepo"
	"github.com/i2y/restbridge/internal/adapter/outbound/openapi"
	"github.com/i2y/restbridge/internal/adapter/outbound/sanitize"
	"github.com/i2y/restbridge/internal/adapter/outbound/security"
	"github.com/i2y/restbridge/internal/adapter/outbound/validation"
	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// App is the wired engine shared by every command.
type App struct {
	Repository *memrepo.InMemoryOperationRepository
	Invoke     *usecase.InvokeOperationUseCase
	List       *usecase.ListOperationsUseCase
	Import     *usecase.ImportOperationsUseCase

	fetchClient *http.Client
	generator   *openapi.OperationGenerator
	logger      *slog.Logger
}

// NewApp wires the engine from cfg and stores the configured endpoints and operations.
func NewApp(cfg *configs.Config, logger *slog.Logger) (*App, error) {
	logger.Info("Initializing dependencies...")

	// --- HTTP clients, one transport per handle ---
	transports := make(map[string]usecase.Transport, len(cfg.HTTPClients))
	for name, hc := range cfg.HTTPClients {
		timeout := hc.Timeout
		if timeout == 0 {
			timeout = cfg.HTTPClientTimeout
		}
		client := httptransport.NewClient(httptransport.ClientOptions{
			Timeout:            timeout,
			InsecureSkipVerify: hc.InsecureSkipVerify,
			MaxIdleConns:       hc.MaxIdleConns,
		})
		transports[name] = httptransport.New(client, logger)
		logger.Debug("HTTP client configured.", slog.String("handle", name), slog.Duration("timeout", timeout))
	}
	router := httptransport.NewRouter(transports, logger)

	// --- Content handling ---
	codecs := codec.New()
	validator := validation.New(logger)
	sanitizer := sanitize.New()
	securityProviders := security.NewRegistry(logger)

	// --- Repository and use cases ---
	deriver := usecase.NewSchemaDeriver(logger)
	repo := memrepo.NewInMemoryOperationRepository(deriver.Derive, logger)
	compiler := usecase.NewRequestCompiler(codecs, validator, securityProviders, logger)
	decoder := usecase.NewResponseDecoder(codecs, validator, sanitizer, logger)

	app := &App{
		Repository:  repo,
		Invoke:      usecase.NewInvokeOperationUseCase(repo, deriver, compiler, router, decoder, logger),
		List:        usecase.NewListOperationsUseCase(repo, deriver, logger),
		fetchClient: httptransport.NewClient(httptransport.ClientOptions{Timeout: cfg.HTTPClientTimeout}),
		generator:   openapi.NewOperationGenerator(logger),
		logger:      logger,
	}
	app.Import = app.importer(nil)

	ctx := context.Background()
	for _, ep := range cfg.Endpoints {
		if err := repo.SaveEndpoint(ctx, ep); err != nil {
			return nil, fmt.Errorf("failed to store endpoint %s: %w", ep.Name, err)
		}
	}
	for _, op := range cfg.Operations {
		if err := repo.SaveOperation(ctx, op); err != nil {
			return nil, fmt.Errorf("failed to store operation %s: %w", op.ID, err)
		}
	}
	logger.Info("Dependencies initialized.",
		slog.Int("endpoints", len(cfg.Endpoints)), slog.Int("operations", len(cfg.Operations)))
	return app, nil
}

// importer builds an import use case whose OpenAPI fetcher sends headers with every request.
func (a *App) importer(headers map[string]string) *usecase.ImportOperationsUseCase {
	fetchers := map[domain.SchemaType]usecase.SchemaFetcher{
		domain.SchemaTypeOpenAPI: openapi.NewSchemaFetcher(a.fetchClient, headers, a.logger),
		domain.SchemaTypeGitHub:  github.NewFetcher(nil, a.logger),
	}
	return usecase.NewImportOperationsUseCase(fetchers, a.generator, a.Repository, a.logger)
}

// ImportSources imports every configured schema source. Failures are logged and skipped
// so one unreachable document does not keep the others from loading.
func (a *App) ImportSources(ctx context.Context, sources []configs.SchemaSource) int {
	imported := 0
	for _, src := range sources {
		if _, err := a.importer(src.Headers).Execute(ctx, src.URL, src.Endpoint); err != nil {
			a.logger.Error("Schema source import failed, continuing without it",
				slog.String("source", src.URL), slog.Any("error", err))
			continue
		}
		imported++
	}
	return imported
}
