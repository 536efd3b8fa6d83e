package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome pairs a provisioning result with an unexpected error. Exactly one
// of the two is meaningful: recognized failures arrive inside Result, while
// Err carries errors the engine does not categorize.
type Outcome[T any] struct {
	Result StatusResult[T]
	Err    error
}

// Manager dispatches provisioning work to registered provisioners and runs
// each invocation on its own worker. Results are delivered asynchronously on
// a channel, so callers are never blocked on the sequence of remote calls a
// provision performs.
type Manager struct {
	registry *Registry
	store    ResourceStore
	logger   *zap.Logger
	sem      chan struct{}
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithRegistry sets the provisioner registry.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithStore sets the resource store.
func WithStore(s ResourceStore) ManagerOption {
	return func(m *Manager) {
		m.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMaxConcurrent bounds the number of invocations running at once.
func WithMaxConcurrent(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.sem = make(chan struct{}, n)
		}
	}
}

// NewManager creates a new Manager with the given options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: DefaultRegistry,
		store:    NewMemoryResourceStore(),
		logger:   zap.NewNop(),
		sem:      make(chan struct{}, 8),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Provision asynchronously provisions the resource described by definition.
// The returned channel delivers exactly one outcome and is then closed. On
// success the provisioned resource record is saved to the resource store; the
// secret token is only ever part of the outcome.
func (m *Manager) Provision(ctx context.Context, definition ResourceDefinition) <-chan Outcome[*ProvisionResponse] {
	out := make(chan Outcome[*ProvisionResponse], 1)

	go func() {
		defer close(out)
		m.acquire()
		defer m.release()

		invocation := uuid.New().String()
		logger := m.logger.With(
			zap.String("invocation", invocation),
			zap.String("definition", definition.GetID()),
			zap.String("transfer_process", definition.GetTransferProcessID()),
		)

		provisioner, err := m.registry.ProvisionerFor(definition)
		if err != nil {
			out <- Outcome[*ProvisionResponse]{Result: Fatal[*ProvisionResponse](err.Error())}
			return
		}

		result, err := provisioner.Provision(ctx, definition)
		if err != nil {
			logger.Error("provision failed unexpectedly", zap.Error(err))
			out <- Outcome[*ProvisionResponse]{Err: err}
			return
		}

		if result.Succeeded() {
			record := result.Content.Resource.Record()
			record.CreatedAt = time.Now()
			if err := m.store.Save(ctx, record); err != nil {
				logger.Warn("failed to save provisioned resource", zap.Error(err))
			}
			logger.Info("resource provisioned",
				zap.String("resource_name", result.Content.Resource.GetResourceName()))
		} else {
			logger.Info("provision failed",
				zap.String("status", result.Status.String()),
				zap.String("detail", result.FailureDetail()))
		}

		out <- Outcome[*ProvisionResponse]{Result: result}
	}()

	return out
}

// Deprovision asynchronously deprovisions the given resource. The returned
// channel delivers exactly one outcome and is then closed. On success the
// resource record is removed from the resource store.
func (m *Manager) Deprovision(ctx context.Context, resource ProvisionedResource) <-chan Outcome[*DeprovisionedResource] {
	out := make(chan Outcome[*DeprovisionedResource], 1)

	go func() {
		defer close(out)
		m.acquire()
		defer m.release()

		logger := m.logger.With(zap.String("resource", resource.GetID()))

		provisioner, err := m.registry.DeprovisionerFor(resource)
		if err != nil {
			out <- Outcome[*DeprovisionedResource]{Result: Fatal[*DeprovisionedResource](err.Error())}
			return
		}

		result, err := provisioner.Deprovision(ctx, resource)
		if err != nil {
			logger.Error("deprovision failed unexpectedly", zap.Error(err))
			out <- Outcome[*DeprovisionedResource]{Err: err}
			return
		}

		if result.Succeeded() {
			if err := m.store.Delete(ctx, resource.GetID()); err != nil {
				logger.Warn("failed to remove resource record", zap.Error(err))
			}
			logger.Info("resource deprovisioned")
		}

		out <- Outcome[*DeprovisionedResource]{Result: result}
	}()

	return out
}

// DeprovisionStored loads a resource record by id, rebuilds its concrete
// resource type and deprovisions it.
func (m *Manager) DeprovisionStored(ctx context.Context, id string) <-chan Outcome[*DeprovisionedResource] {
	record, err := m.store.Get(ctx, id)
	if err != nil {
		out := make(chan Outcome[*DeprovisionedResource], 1)
		out <- Outcome[*DeprovisionedResource]{Result: Fatal[*DeprovisionedResource](err.Error())}
		close(out)
		return out
	}

	restorer, err := m.registry.RestorerFor(*record)
	if err != nil {
		out := make(chan Outcome[*DeprovisionedResource], 1)
		out <- Outcome[*DeprovisionedResource]{Result: Fatal[*DeprovisionedResource](err.Error())}
		close(out)
		return out
	}

	resource, err := restorer.Restore(*record)
	if err != nil {
		out := make(chan Outcome[*DeprovisionedResource], 1)
		out <- Outcome[*DeprovisionedResource]{Result: Fatal[*DeprovisionedResource](err.Error())}
		close(out)
		return out
	}

	return m.Deprovision(ctx, resource)
}

// List returns all stored resource records.
func (m *Manager) List(ctx context.Context) ([]StoredResource, error) {
	return m.store.List(ctx)
}

func (m *Manager) acquire() {
	m.sem <- struct{}{}
}

func (m *Manager) release() {
	<-m.sem
}
