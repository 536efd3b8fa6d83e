package aws

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// rolePolicyName is the name of the inline bucket policy attached to each
// provisioned role.
const rolePolicyName = "edc-transfer"

// maxRoleNameLength is the IAM limit on role names.
const maxRoleNameLength = 64

// ClientsFactory builds the AWS service clients for one invocation.
type ClientsFactory func(ctx context.Context, region string, address provision.DataAddress) (*Clients, error)

// Provisioner provisions S3 buckets with a scoped role and temporary
// credentials. It holds no per-invocation state, so one instance serves many
// concurrent invocations.
type Provisioner struct {
	logger  *zap.Logger
	clients ClientsFactory
}

// Option configures the Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) {
		p.logger = l
	}
}

// WithClientsFactory replaces the SDK clients factory.
func WithClientsFactory(f ClientsFactory) Option {
	return func(p *Provisioner) {
		p.clients = f
	}
}

// NewProvisioner creates an S3 provisioner.
func NewProvisioner(opts ...Option) *Provisioner {
	p := &Provisioner{
		logger:  zap.NewNop(),
		clients: NewClients,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CanProvision implements provision.Provisioner.
func (p *Provisioner) CanProvision(definition provision.ResourceDefinition) bool {
	_, ok := definition.(*S3BucketResourceDefinition)
	return ok
}

// CanDeprovision implements provision.Provisioner.
func (p *Provisioner) CanDeprovision(resource provision.ProvisionedResource) bool {
	_, ok := resource.(*S3BucketProvisionedResource)
	return ok
}

// Provision implements provision.Provisioner. It creates or reuses the
// bucket, aborts if the bucket holds pre-existing content, creates or reuses
// a role scoped to the bucket and issues temporary credentials for it.
func (p *Provisioner) Provision(ctx context.Context, definition provision.ResourceDefinition) (provision.StatusResult[*provision.ProvisionResponse], error) {
	def, ok := definition.(*S3BucketResourceDefinition)
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

func (p *Provisioner) provision(ctx context.Context, def *S3BucketResourceDefinition) (*provision.ProvisionResponse, error) {
	bucketName := def.TargetBucketName()
	region := def.RegionID
	if region == "" {
		region = def.DataAddress.Property(PropRegion)
	}

	clients, err := p.clients(ctx, region, def.DataAddress)
	if err != nil {
		return nil, err
	}

	if err := p.createBucket(ctx, clients.S3, bucketName, region); err != nil {
		return nil, err
	}

	keys, err := clients.S3.ListObjects(ctx, bucketName, 1)
	if err != nil {
		return nil, provision.ErrProvisioning("failed to list bucket contents").
			WithProvider(StoreType).
			WithResource("bucket", bucketName).
			WithCause(err)
	}
	if len(keys) > 0 {
		return nil, provision.ErrProvisioning(
			fmt.Sprintf("bucket %s already exists and is not empty", bucketName)).
			WithProvider(StoreType).
			WithResource("bucket", bucketName)
	}

	roleName := SanitizeRoleName(def.TransferProcessID)
	roleArn, err := p.getOrCreateRole(ctx, clients.Iam, roleName, def.TransferProcessID, bucketName)
	if err != nil {
		return nil, err
	}

	if err := clients.Iam.PutRolePolicy(ctx, roleName, rolePolicyName, bucketPolicy(bucketName)); err != nil {
		return nil, provision.ErrProvisioning("failed to attach bucket policy to role").
			WithProvider(StoreType).
			WithResource("role", roleName).
			WithCause(err)
	}

	token, err := clients.Sts.AssumeRole(ctx, roleArn, def.TransferProcessID)
	if err != nil {
		return nil, provision.ErrProvisioning("failed to assume role").
			WithProvider(StoreType).
			WithResource("role", roleName).
			WithCause(err)
	}

	resource := &S3BucketProvisionedResource{
		ID:                   def.ID,
		ResourceDefinitionID: def.ID,
		TransferProcessID:    def.TransferProcessID,
		Region:               region,
		BucketName:           bucketName,
		RoleName:             roleName,
		RoleARN:              roleArn,
		ResourceName:         def.ID + "-bucket",
		Token:                true,
		DataAddress:          def.DataAddress,
	}

	return &provision.ProvisionResponse{Resource: resource, SecretToken: token}, nil
}

func (p *Provisioner) createBucket(ctx context.Context, client S3Client, name, region string) error {
	err := client.CreateBucket(ctx, name, region)
	if err == nil {
		p.logger.Info("created bucket",
			zap.String("bucket", name), zap.String("region", region))
		return nil
	}
	if provision.IsCategory(err, provision.ErrCategoryConflict) {
		p.logger.Info("reusing existing bucket", zap.String("bucket", name))
		return nil
	}
	return provision.ErrProvisioning("failed to create bucket").
		WithProvider(StoreType).
		WithResource("bucket", name).
		WithCause(err)
}

func (p *Provisioner) getOrCreateRole(ctx context.Context, client IamClient, roleName, transferProcessID, bucketName string) (string, error) {
	callerArn, err := client.GetCallerArn(ctx)
	if err != nil {
		return "", provision.ErrProvisioning("failed to resolve caller identity").
			WithProvider(StoreType).
			WithCause(err)
	}

	description := fmt.Sprintf("transferProcess:%s\nbucket:%s", transferProcessID, bucketName)
	roleArn, err := client.CreateRole(ctx, roleName, description, trustPolicy(callerArn))
	if err == nil {
		p.logger.Info("created role", zap.String("role", roleName))
		return roleArn, nil
	}

	if provision.IsCategory(err, provision.ErrCategoryConflict) {
		existing, getErr := client.GetRole(ctx, roleName)
		if getErr != nil {
			return "", provision.ErrProvisioning("failed to look up existing role").
				WithProvider(StoreType).
				WithResource("role", roleName).
				WithCause(getErr)
		}
		p.logger.Info("reusing existing role", zap.String("role", roleName))
		return existing, nil
	}

	return "", provision.ErrProvisioning("failed to create role").
		WithProvider(StoreType).
		WithResource("role", roleName).
		WithCause(err)
}

// Deprovision implements provision.Provisioner. It removes the role and its
// inline policy; the bucket and its contents are intentionally left in
// place.
func (p *Provisioner) Deprovision(ctx context.Context, resource provision.ProvisionedResource) (provision.StatusResult[*provision.DeprovisionedResource], error) {
	res, ok := resource.(*S3BucketProvisionedResource)
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

func (p *Provisioner) deprovision(ctx context.Context, res *S3BucketProvisionedResource) error {
	clients, err := p.clients(ctx, res.Region, res.DataAddress)
	if err != nil {
		return err
	}

	if err := clients.Iam.DeleteRolePolicy(ctx, res.RoleName, rolePolicyName); err != nil {
		if !provision.IsCategory(err, provision.ErrCategoryNotFound) {
			return provision.ErrProvisioning("failed to delete role policy").
				WithProvider(StoreType).
				WithResource("role", res.RoleName).
				WithCause(err)
		}
	}

	if err := clients.Iam.DeleteRole(ctx, res.RoleName); err != nil {
		if provision.IsCategory(err, provision.ErrCategoryNotFound) {
			p.logger.Info("role already deleted", zap.String("role", res.RoleName))
			return nil
		}
		return provision.ErrProvisioning("failed to delete role").
			WithProvider(StoreType).
			WithResource("role", res.RoleName).
			WithCause(err)
	}

	p.logger.Info("deleted role", zap.String("role", res.RoleName))
	return nil
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

	return &S3BucketProvisionedResource{
		ID:                   record.ID,
		ResourceDefinitionID: record.ResourceDefinitionID,
		TransferProcessID:    record.TransferProcessID,
		Region:               record.Attributes["region"],
		BucketName:           record.Attributes["bucket_name"],
		RoleName:             record.Attributes["role_name"],
		RoleARN:              record.Attributes["role_arn"],
		ResourceName:         record.ResourceName,
		Token:                record.HasSecretToken,
		DataAddress:          record.DataAddress,
	}, nil
}

// SanitizeRoleName derives a valid role name from a transfer process id.
// Role names are limited to 64 characters; the result is deterministic for a
// given input.
func SanitizeRoleName(transferProcessID string) string {
	name := "edc-" + transferProcessID
	if len(name) > maxRoleNameLength {
		name = name[:maxRoleNameLength]
	}
	return name
}

// trustPolicy allows the current caller to assume the provisioned role.
func trustPolicy(callerArn string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"AWS": %q},
      "Action": "sts:AssumeRole"
    }
  ]
}`, callerArn)
}

// bucketPolicy grants read/write access to exactly one bucket.
func bucketPolicy(bucketName string) string {
	bucketName = strings.TrimSpace(bucketName)
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": [
        "s3:GetObject",
        "s3:PutObject",
        "s3:ListBucket"
      ],
      "Resource": [
        "arn:aws:s3:::%s",
        "arn:aws:s3:::%s/*"
      ]
    }
  ]
}`, bucketName, bucketName)
}
