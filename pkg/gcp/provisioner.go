package gcp

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// StorageClientFactory builds a storage client from resolved credentials.
type StorageClientFactory func(ctx context.Context, credentials *google.Credentials) (StorageClient, error)

// IdentityClientFactory builds an identity client from resolved credentials.
type IdentityClientFactory func(ctx context.Context, credentials *google.Credentials) (IdentityClient, error)

// Provisioner provisions GCS buckets with a scoped service account and a
// short-lived access token. It holds no per-invocation state, so one
// instance serves many concurrent invocations.
type Provisioner struct {
	resolver        *CredentialResolver
	logger          *zap.Logger
	storageFactory  StorageClientFactory
	identityFactory IdentityClientFactory
}

// Option configures the Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) {
		p.logger = l
	}
}

// WithStorageClientFactory replaces the SDK storage client factory.
func WithStorageClientFactory(f StorageClientFactory) Option {
	return func(p *Provisioner) {
		p.storageFactory = f
	}
}

// WithIdentityClientFactory replaces the SDK identity client factory.
func WithIdentityClientFactory(f IdentityClientFactory) Option {
	return func(p *Provisioner) {
		p.identityFactory = f
	}
}

// NewProvisioner creates a GCS provisioner using the given credential
// resolver.
func NewProvisioner(resolver *CredentialResolver, opts ...Option) *Provisioner {
	p := &Provisioner{
		resolver:        resolver,
		logger:          zap.NewNop(),
		storageFactory:  NewStorageClient,
		identityFactory: NewIdentityClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CanProvision implements provision.Provisioner.
func (p *Provisioner) CanProvision(definition provision.ResourceDefinition) bool {
	_, ok := definition.(*GcsResourceDefinition)
	return ok
}

// CanDeprovision implements provision.Provisioner.
func (p *Provisioner) CanDeprovision(resource provision.ProvisionedResource) bool {
	_, ok := resource.(*GcsProvisionedResource)
	return ok
}

// Provision implements provision.Provisioner. It resolves credentials,
// creates or reuses the bucket, aborts if the bucket holds pre-existing
// content, creates or reuses the scoped service account, grants it
// read/write access and issues an access token. Recognized errors become a
// fatal result; anything else propagates.
func (p *Provisioner) Provision(ctx context.Context, definition provision.ResourceDefinition) (provision.StatusResult[*provision.ProvisionResponse], error) {
	def, ok := definition.(*GcsResourceDefinition)
	if !ok {
		return provision.Fatal[*provision.ProvisionResponse](
			fmt.Sprintf("unsupported resource definition type: %T", definition)), nil
	}

	response, err := p.provision(ctx, def)
	if err != nil {
		if pErr, recognized := provision.Recognized(err); recognized {
			return provision.Fatal[*provision.ProvisionResponse](pErr.Error()), nil
		}
		return provision.StatusResult[*provision.ProvisionResponse]{}, err
	}
	return provision.Success(response), nil
}

func (p *Provisioner) provision(ctx context.Context, def *GcsResourceDefinition) (*provision.ProvisionResponse, error) {
	bucketName := def.TargetBucketName()
	p.logger.Debug("bucket request submitted", zap.String("bucket", bucketName))

	credentials, err := p.resolver.Resolve(ctx, def.DataAddress)
	if err != nil {
		return nil, err
	}

	storageClient, err := p.storageFactory(ctx, credentials)
	if err != nil {
		return nil, provision.ErrProvisioning("failed to create storage client").
			WithProvider(StoreType).WithCause(err)
	}
	storageService := NewStorageService(storageClient, def.ProjectID, p.logger)

	bucket, _, err := storageService.GetOrCreateEmptyBucket(ctx, bucketName, def.Location, def.StorageClass)
	if err != nil {
		return nil, err
	}

	empty, err := storageService.IsEmpty(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	if !empty {
		return nil, provision.ErrProvisioning(
			fmt.Sprintf("bucket %s already exists and is not empty", bucketName)).
			WithProvider(StoreType).
			WithResource("bucket", bucketName)
	}

	identityClient, err := p.identityFactory(ctx, credentials)
	if err != nil {
		return nil, provision.ErrProvisioning("failed to create identity client").
			WithProvider(StoreType).WithCause(err)
	}
	iamService := NewIamService(identityClient, def.ProjectID, p.logger)

	accountName := SanitizeServiceAccountName(def.TransferProcessID)
	description := ServiceAccountDescription(def.TransferProcessID, bucketName)
	account, _, err := iamService.GetOrCreateServiceAccount(ctx, accountName, description)
	if err != nil {
		return nil, err
	}

	if err := storageService.AddProviderPermissions(ctx, bucket, account); err != nil {
		return nil, err
	}

	token, err := iamService.CreateAccessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	resource := &GcsProvisionedResource{
		ID:                   def.ID,
		ResourceDefinitionID: def.ID,
		TransferProcessID:    def.TransferProcessID,
		Location:             def.Location,
		ProjectID:            def.ProjectID,
		StorageClass:         def.StorageClass,
		BucketName:           bucketName,
		ServiceAccountEmail:  account.Email,
		ServiceAccountName:   account.Name,
		ResourceName:         def.ID + "-bucket",
		Token:                true,
		DataAddress:          def.DataAddress,
	}

	return &provision.ProvisionResponse{Resource: resource, SecretToken: token}, nil
}

// Deprovision implements provision.Provisioner. It deletes the service
// account created for the resource; the bucket and its contents are
// intentionally left in place, since a consumer may still need to read them.
func (p *Provisioner) Deprovision(ctx context.Context, resource provision.ProvisionedResource) (provision.StatusResult[*provision.DeprovisionedResource], error) {
	res, ok := resource.(*GcsProvisionedResource)
	if !ok {
		return provision.Fatal[*provision.DeprovisionedResource](
			fmt.Sprintf("unsupported provisioned resource type: %T", resource)), nil
	}

	if err := p.deprovision(ctx, res); err != nil {
		if pErr, recognized := provision.Recognized(err); recognized {
			return provision.Fatal[*provision.DeprovisionedResource](
				fmt.Sprintf("deprovision failed with: %s", pErr.Error())), nil
		}
		return provision.StatusResult[*provision.DeprovisionedResource]{}, err
	}

	return provision.Success(&provision.DeprovisionedResource{
		ProvisionedResourceID: res.ID,
	}), nil
}

func (p *Provisioner) deprovision(ctx context.Context, res *GcsProvisionedResource) error {
	credentials, err := p.resolver.Resolve(ctx, res.DataAddress)
	if err != nil {
		return err
	}

	identityClient, err := p.identityFactory(ctx, credentials)
	if err != nil {
		return provision.ErrProvisioning("failed to create identity client").
			WithProvider(StoreType).WithCause(err)
	}
	iamService := NewIamService(identityClient, res.ProjectID, p.logger)

	return iamService.DeleteServiceAccountIfExists(ctx, &ServiceAccount{
		Email: res.ServiceAccountEmail,
		Name:  res.ServiceAccountName,
	})
}

// CanRestore implements provision.Restorer.
func (p *Provisioner) CanRestore(record provision.StoredResource) bool {
	return record.Type == StoreType
}

// Restore implements provision.Restorer.
func (p *Provisioner) Restore(record provision.StoredResource) (provision.ProvisionedResource, error) {
	if record.Type != StoreType {
		return nil, provision.ErrValidation(
			fmt.Sprintf("cannot restore resource of type %s", record.Type))
	}

	return &GcsProvisionedResource{
		ID:                   record.ID,
		ResourceDefinitionID: record.ResourceDefinitionID,
		TransferProcessID:    record.TransferProcessID,
		Location:             record.Attributes["location"],
		ProjectID:            record.Attributes["project_id"],
		StorageClass:         record.Attributes["storage_class"],
		BucketName:           record.Attributes["bucket_name"],
		ServiceAccountEmail:  record.Attributes["service_account_email"],
		ServiceAccountName:   record.Attributes["service_account_name"],
		ResourceName:         record.ResourceName,
		Token:                record.HasSecretToken,
		DataAddress:          record.DataAddress,
	}, nil
}
