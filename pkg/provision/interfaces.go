package provision

import (
	"context"
)

// SecretStore resolves secret material by key name. Failures propagate as
// credential errors; implementations must never log secret values.
type SecretStore interface {
	// ResolveSecret returns the secret stored under key.
	ResolveSecret(ctx context.Context, key string) (string, error)
}

// SecretWriter is implemented by secret stores that can persist secrets.
// After a successful provision the resource's token is handed to the store
// under the resource id, so the resource record never carries it.
type SecretWriter interface {
	// StoreSecret saves value under key, replacing any previous value.
	StoreSecret(ctx context.Context, key, value string) error
}

// Provisioner turns a resource definition into a provisioned cloud resource
// and later tears the resource's identity down again.
//
// Provision and Deprovision convert recognized provisioning and credential
// errors into a fatal StatusResult; any other error is returned as the second
// return value and propagates untouched. Implementations hold no mutable
// state across invocations, so one Provisioner may serve many concurrent
// calls.
type Provisioner interface {
	// CanProvision reports whether this provisioner handles the definition.
	CanProvision(definition ResourceDefinition) bool

	// CanDeprovision reports whether this provisioner handles the resource.
	CanDeprovision(resource ProvisionedResource) bool

	// Provision creates the cloud resource described by the definition.
	Provision(ctx context.Context, definition ResourceDefinition) (StatusResult[*ProvisionResponse], error)

	// Deprovision deletes the identity created for the resource. The backing
	// storage is intentionally left in place.
	Deprovision(ctx context.Context, resource ProvisionedResource) (StatusResult[*DeprovisionedResource], error)
}

// Restorer rebuilds a provider-specific provisioned resource from its stored
// record so that deprovisioning can be driven from the resource store.
type Restorer interface {
	// CanRestore reports whether this provisioner owns the record.
	CanRestore(record StoredResource) bool

	// Restore rebuilds the concrete provisioned resource.
	Restore(record StoredResource) (ProvisionedResource, error)
}

// ResourceStore persists provisioned resource records. Secret tokens are
// never stored here.
type ResourceStore interface {
	// Save stores a resource record.
	Save(ctx context.Context, record StoredResource) error

	// Get retrieves a resource record by ID.
	Get(ctx context.Context, id string) (*StoredResource, error)

	// List returns all stored resource records.
	List(ctx context.Context) ([]StoredResource, error)

	// Delete removes a resource record. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, id string) error
}
