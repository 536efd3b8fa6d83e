package provision

import (
	"sync"
)

// Registry manages provisioner registration and lookup.
// It provides thread-safe access to registered provisioners.
type Registry struct {
	mu           sync.RWMutex
	provisioners []Provisioner
}

// DefaultRegistry is a process-wide registry for callers that do not build
// their own. The CLI constructs an explicit Registry instead.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provisioner to the registry.
func (r *Registry) Register(p Provisioner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisioners = append(r.provisioners, p)
}

// ProvisionerFor returns the first registered provisioner that can provision
// the given definition.
func (r *Registry) ProvisionerFor(definition ResourceDefinition) (Provisioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.provisioners {
		if p.CanProvision(definition) {
			return p, nil
		}
	}
	return nil, ErrNotFound("provisioner", definition.GetID()).
		WithDetail("data_address_type", definition.GetDataAddress().Type)
}

// DeprovisionerFor returns the first registered provisioner that can
// deprovision the given resource.
func (r *Registry) DeprovisionerFor(resource ProvisionedResource) (Provisioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.provisioners {
		if p.CanDeprovision(resource) {
			return p, nil
		}
	}
	return nil, ErrNotFound("provisioner", resource.GetID()).
		WithDetail("data_address_type", resource.GetDataAddress().Type)
}

// RestorerFor returns the first registered provisioner that can rebuild the
// given stored record into its concrete resource type.
func (r *Registry) RestorerFor(record StoredResource) (Restorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.provisioners {
		if rs, ok := p.(Restorer); ok && rs.CanRestore(record) {
			return rs, nil
		}
	}
	return nil, ErrNotFound("restorer", record.ID).
		WithDetail("type", record.Type)
}

// Register adds a provisioner to the default registry.
func Register(p Provisioner) {
	DefaultRegistry.Register(p)
}
