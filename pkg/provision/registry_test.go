package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDefinition and fakeResource stand in for provider-specific types.
type fakeDefinition struct {
	id      string
	tp      string
	address DataAddress
}

func (d *fakeDefinition) GetID() string                { return d.id }
func (d *fakeDefinition) GetTransferProcessID() string { return d.tp }
func (d *fakeDefinition) GetDataAddress() DataAddress  { return d.address }

type fakeResource struct {
	id      string
	defID   string
	tp      string
	name    string
	token   bool
	address DataAddress
}

func (r *fakeResource) GetID() string                   { return r.id }
func (r *fakeResource) GetResourceDefinitionID() string { return r.defID }
func (r *fakeResource) GetTransferProcessID() string    { return r.tp }
func (r *fakeResource) GetResourceName() string         { return r.name }
func (r *fakeResource) HasToken() bool                  { return r.token }
func (r *fakeResource) GetDataAddress() DataAddress     { return r.address }

func (r *fakeResource) Record() StoredResource {
	return StoredResource{
		ID:                   r.id,
		ResourceDefinitionID: r.defID,
		TransferProcessID:    r.tp,
		ResourceName:         r.name,
		Type:                 "fake",
		HasSecretToken:       r.token,
		DataAddress:          r.address,
	}
}

type fakeToken struct {
	expiry int64
}

func (t *fakeToken) ExpirationMillis() int64 { return t.expiry }

// fakeProvisioner handles fakeDefinition/fakeResource and records calls. Its
// behavior is scripted through the provisionFn/deprovisionFn hooks.
type fakeProvisioner struct {
	provisionFn   func(ctx context.Context, def ResourceDefinition) (StatusResult[*ProvisionResponse], error)
	deprovisionFn func(ctx context.Context, res ProvisionedResource) (StatusResult[*DeprovisionedResource], error)
}

func (p *fakeProvisioner) CanProvision(definition ResourceDefinition) bool {
	_, ok := definition.(*fakeDefinition)
	return ok
}

func (p *fakeProvisioner) CanDeprovision(resource ProvisionedResource) bool {
	_, ok := resource.(*fakeResource)
	return ok
}

func (p *fakeProvisioner) Provision(ctx context.Context, definition ResourceDefinition) (StatusResult[*ProvisionResponse], error) {
	if p.provisionFn != nil {
		return p.provisionFn(ctx, definition)
	}
	def := definition.(*fakeDefinition)
	return Success(&ProvisionResponse{
		Resource: &fakeResource{
			id:      def.id,
			defID:   def.id,
			tp:      def.tp,
			name:    def.id + "-bucket",
			token:   true,
			address: def.address,
		},
		SecretToken: &fakeToken{expiry: 1000},
	}), nil
}

func (p *fakeProvisioner) Deprovision(ctx context.Context, resource ProvisionedResource) (StatusResult[*DeprovisionedResource], error) {
	if p.deprovisionFn != nil {
		return p.deprovisionFn(ctx, resource)
	}
	return Success(&DeprovisionedResource{ProvisionedResourceID: resource.GetID()}), nil
}

func (p *fakeProvisioner) CanRestore(record StoredResource) bool {
	return record.Type == "fake"
}

func (p *fakeProvisioner) Restore(record StoredResource) (ProvisionedResource, error) {
	return &fakeResource{
		id:      record.ID,
		defID:   record.ResourceDefinitionID,
		tp:      record.TransferProcessID,
		name:    record.ResourceName,
		token:   record.HasSecretToken,
		address: record.DataAddress,
	}, nil
}

type otherDefinition struct {
	fakeDefinition
}

func TestRegistryProvisionerFor(t *testing.T) {
	registry := NewRegistry()
	p := &fakeProvisioner{}
	registry.Register(p)

	got, err := registry.ProvisionerFor(&fakeDefinition{id: "r1"})
	require.NoError(t, err)
	assert.Same(t, p, got.(*fakeProvisioner))
}

func TestRegistryProvisionerForNoMatch(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeProvisioner{})

	_, err := registry.ProvisionerFor(&otherDefinition{})
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryNotFound))
}

func TestRegistryFirstMatchWins(t *testing.T) {
	registry := NewRegistry()
	first := &fakeProvisioner{}
	second := &fakeProvisioner{}
	registry.Register(first)
	registry.Register(second)

	got, err := registry.ProvisionerFor(&fakeDefinition{id: "r1"})
	require.NoError(t, err)
	assert.Same(t, first, got.(*fakeProvisioner))
}

func TestRegistryDeprovisionerFor(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeProvisioner{})

	_, err := registry.DeprovisionerFor(&fakeResource{id: "r1"})
	assert.NoError(t, err)
}

func TestRegistryRestorerFor(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeProvisioner{})

	restorer, err := registry.RestorerFor(StoredResource{ID: "r1", Type: "fake"})
	require.NoError(t, err)

	resource, err := restorer.Restore(StoredResource{ID: "r1", Type: "fake", ResourceName: "r1-bucket"})
	require.NoError(t, err)
	assert.Equal(t, "r1", resource.GetID())

	_, err = registry.RestorerFor(StoredResource{ID: "r2", Type: "unknown"})
	assert.True(t, IsCategory(err, ErrCategoryNotFound))
}
