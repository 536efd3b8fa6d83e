// Package aws provides the Amazon S3 provisioner.
package aws

import (
	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// StoreType is the data address type handled by this package.
const StoreType = "AmazonS3"

// Data address property keys specific to S3 addresses.
const (
	// PropRegion selects the bucket region.
	PropRegion = "region"
	// PropAccessKeyID optionally carries a static access key id.
	PropAccessKeyID = "access_key_id"
	// PropSecretAccessKey optionally carries a static secret access key.
	PropSecretAccessKey = "secret_access_key"
)

// S3BucketResourceDefinition describes a requested S3 bucket resource.
type S3BucketResourceDefinition struct {
	ID                string                `json:"id"`
	TransferProcessID string                `json:"transferProcessId"`
	RegionID          string                `json:"regionId"`
	BucketName        string                `json:"bucketName,omitempty"`
	DataAddress       provision.DataAddress `json:"dataAddress"`
}

// GetID implements provision.ResourceDefinition.
func (d *S3BucketResourceDefinition) GetID() string { return d.ID }

// GetTransferProcessID implements provision.ResourceDefinition.
func (d *S3BucketResourceDefinition) GetTransferProcessID() string { return d.TransferProcessID }

// GetDataAddress implements provision.ResourceDefinition.
func (d *S3BucketResourceDefinition) GetDataAddress() provision.DataAddress { return d.DataAddress }

// TargetBucketName returns the explicit bucket name or the definition id.
func (d *S3BucketResourceDefinition) TargetBucketName() string {
	if d.BucketName != "" {
		return d.BucketName
	}
	return d.ID
}

// S3BucketProvisionedResource is the outcome of a successful S3 provision.
type S3BucketProvisionedResource struct {
	ID                   string                `json:"id"`
	ResourceDefinitionID string                `json:"resourceDefinitionId"`
	TransferProcessID    string                `json:"transferProcessId"`
	Region               string                `json:"region"`
	BucketName           string                `json:"bucketName"`
	RoleName             string                `json:"roleName"`
	RoleARN              string                `json:"roleArn"`
	ResourceName         string                `json:"resourceName"`
	Token                bool                  `json:"hasToken"`
	DataAddress          provision.DataAddress `json:"dataAddress"`
}

// GetID implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) GetID() string { return r.ID }

// GetResourceDefinitionID implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) GetResourceDefinitionID() string {
	return r.ResourceDefinitionID
}

// GetTransferProcessID implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) GetTransferProcessID() string { return r.TransferProcessID }

// GetResourceName implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) GetResourceName() string { return r.ResourceName }

// HasToken implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) HasToken() bool { return r.Token }

// GetDataAddress implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) GetDataAddress() provision.DataAddress { return r.DataAddress }

// Record implements provision.ProvisionedResource.
func (r *S3BucketProvisionedResource) Record() provision.StoredResource {
	return provision.StoredResource{
		ID:                   r.ID,
		ResourceDefinitionID: r.ResourceDefinitionID,
		TransferProcessID:    r.TransferProcessID,
		ResourceName:         r.ResourceName,
		Type:                 StoreType,
		HasSecretToken:       r.Token,
		Attributes: map[string]string{
			"region":      r.Region,
			"bucket_name": r.BucketName,
			"role_name":   r.RoleName,
			"role_arn":    r.RoleARN,
		},
		DataAddress: r.DataAddress,
	}
}

// AwsTemporarySecretToken is a set of temporary credentials scoped to one
// bucket via an assumed role.
type AwsTemporarySecretToken struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      int64  `json:"expiration"`
}

// ExpirationMillis implements provision.SecretToken.
func (t *AwsTemporarySecretToken) ExpirationMillis() int64 { return t.Expiration }
