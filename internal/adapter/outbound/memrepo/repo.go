package memrepo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// InMemoryOperationRepository provides an in-memory implementation of the OperationRepository.
// NOTE: This implementation is not persistent and data will be lost on restart.
type InMemoryOperationRepository struct {
	mu         sync.RWMutex
	endpoints  map[string]*domain.EndpointConfig // Map endpoint name to its configuration
	operations map[string]*domain.Operation      // Map operation id to its holder
	derive     domain.DeriveFunc
	logger     *slog.Logger
}

// NewInMemoryOperationRepository creates a new in-memory repository. When derive is set,
// saved operations get their schema rebuilt immediately instead of on first use.
func NewInMemoryOperationRepository(derive domain.DeriveFunc, logger *slog.Logger) *InMemoryOperationRepository {
	return &InMemoryOperationRepository{
		endpoints:  make(map[string]*domain.EndpointConfig),
		operations: make(map[string]*domain.Operation),
		derive:     derive,
		logger:     logger.With("component", "mem_repo"),
	}
}

// SaveEndpoint stores the endpoint and re-links every operation referencing it.
func (r *InMemoryOperationRepository) SaveEndpoint(ctx context.Context, endpoint domain.EndpointConfig) error {
	if endpoint.Name == "" {
		return fmt.Errorf("save failed: endpoint name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ep := endpoint
	r.endpoints[ep.Name] = &ep
	relinked := 0
	for _, op := range r.operations {
		cfg, _ := op.Config()
		if cfg.Endpoint != ep.Name {
			continue
		}
		op.Update(cfg, &ep)
		r.rebuild(op)
		relinked++
	}
	r.logger.Info("Saved endpoint", slog.String("endpoint", ep.Name), slog.Int("relinked_operations", relinked))
	return nil
}

// SaveOperation creates or replaces an operation. The referenced endpoint must exist.
func (r *InMemoryOperationRepository) SaveOperation(ctx context.Context, cfg domain.OperationConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("save failed: operation id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var ep *domain.EndpointConfig
	if cfg.Endpoint != "" {
		var ok bool
		if ep, ok = r.endpoints[cfg.Endpoint]; !ok {
			r.logger.Error("Operation references unknown endpoint",
				slog.String("operation", cfg.ID), slog.String("endpoint", cfg.Endpoint))
			return fmt.Errorf("operation '%s' references endpoint '%s': %w", cfg.ID, cfg.Endpoint, usecase.ErrEndpointNotFound)
		}
	}

	op, exists := r.operations[cfg.ID]
	if exists {
		op.Update(cfg, ep)
	} else {
		op = domain.NewOperation(cfg, ep)
		r.operations[cfg.ID] = op
	}
	r.rebuild(op)
	r.logger.Info("Saved operation", slog.String("operation", cfg.ID), slog.Bool("replaced", exists), slog.Int("total_operations", len(r.operations)))
	return nil
}

func (r *InMemoryOperationRepository) rebuild(op *domain.Operation) {
	op.Invalidate()
	if r.derive != nil {
		op.Schema(r.derive)
	}
}

// FindOperation retrieves an operation by its id.
func (r *InMemoryOperationRepository) FindOperation(ctx context.Context, name string) (*domain.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operations[name]
	if !ok {
		r.logger.Warn("Operation not found", slog.String("operation", name))
		return nil, usecase.ErrOperationNotFound
	}
	r.logger.Debug("Found operation", slog.String("operation", name))
	return op, nil
}

// FindEndpoint retrieves a copy of an endpoint configuration by its name.
func (r *InMemoryOperationRepository) FindEndpoint(ctx context.Context, name string) (*domain.EndpointConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok {
		r.logger.Warn("Endpoint not found", slog.String("endpoint", name))
		return nil, usecase.ErrEndpointNotFound
	}
	c := *ep
	return &c, nil
}

// List returns all operations currently stored in memory.
func (r *InMemoryOperationRepository) List(ctx context.Context) ([]*domain.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*domain.Operation, 0, len(r.operations))
	for _, op := range r.operations {
		list = append(list, op)
	}
	r.logger.Debug("Listed operations from repository", slog.Int("count", len(list)))
	return list, nil
}
