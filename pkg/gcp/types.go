// Package gcp provides the Google Cloud Storage provisioner.
package gcp

import (
	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// StoreType is the data address type handled by this package.
const StoreType = "GoogleCloudStorage"

// GcsResourceDefinition describes a requested GCS bucket resource.
type GcsResourceDefinition struct {
	// ID is the unique definition id.
	ID string `json:"id"`

	// TransferProcessID is the id of the owning transfer process.
	TransferProcessID string `json:"transferProcessId"`

	// Location is the target bucket location (e.g. "EU", "us-central1").
	Location string `json:"location"`

	// ProjectID is the owning cloud project.
	ProjectID string `json:"projectId"`

	// StorageClass is the bucket storage class (e.g. "STANDARD").
	StorageClass string `json:"storageClass,omitempty"`

	// BucketName is the target bucket. Defaults to the definition id.
	BucketName string `json:"bucketName,omitempty"`

	// DataAddress holds the raw credential properties.
	DataAddress provision.DataAddress `json:"dataAddress"`
}

// GetID implements provision.ResourceDefinition.
func (d *GcsResourceDefinition) GetID() string { return d.ID }

// GetTransferProcessID implements provision.ResourceDefinition.
func (d *GcsResourceDefinition) GetTransferProcessID() string { return d.TransferProcessID }

// GetDataAddress implements provision.ResourceDefinition.
func (d *GcsResourceDefinition) GetDataAddress() provision.DataAddress { return d.DataAddress }

// TargetBucketName returns the explicit bucket name or the definition id.
func (d *GcsResourceDefinition) TargetBucketName() string {
	if d.BucketName != "" {
		return d.BucketName
	}
	return d.ID
}

// GcsProvisionedResource is the outcome of a successful GCS provision.
type GcsProvisionedResource struct {
	ID                   string                `json:"id"`
	ResourceDefinitionID string                `json:"resourceDefinitionId"`
	TransferProcessID    string                `json:"transferProcessId"`
	Location             string                `json:"location"`
	ProjectID            string                `json:"projectId"`
	StorageClass         string                `json:"storageClass,omitempty"`
	BucketName           string                `json:"bucketName"`
	ServiceAccountEmail  string                `json:"serviceAccountEmail"`
	ServiceAccountName   string                `json:"serviceAccountName"`
	ResourceName         string                `json:"resourceName"`
	Token                bool                  `json:"hasToken"`
	DataAddress          provision.DataAddress `json:"dataAddress"`
}

// GetID implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) GetID() string { return r.ID }

// GetResourceDefinitionID implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) GetResourceDefinitionID() string { return r.ResourceDefinitionID }

// GetTransferProcessID implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) GetTransferProcessID() string { return r.TransferProcessID }

// GetResourceName implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) GetResourceName() string { return r.ResourceName }

// HasToken implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) HasToken() bool { return r.Token }

// GetDataAddress implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) GetDataAddress() provision.DataAddress { return r.DataAddress }

// Record implements provision.ProvisionedResource.
func (r *GcsProvisionedResource) Record() provision.StoredResource {
	return provision.StoredResource{
		ID:                   r.ID,
		ResourceDefinitionID: r.ResourceDefinitionID,
		TransferProcessID:    r.TransferProcessID,
		ResourceName:         r.ResourceName,
		Type:                 StoreType,
		HasSecretToken:       r.Token,
		Attributes: map[string]string{
			"location":              r.Location,
			"project_id":            r.ProjectID,
			"storage_class":         r.StorageClass,
			"bucket_name":           r.BucketName,
			"service_account_email": r.ServiceAccountEmail,
			"service_account_name":  r.ServiceAccountName,
		},
		DataAddress: r.DataAddress,
	}
}

// GcpAccessToken is a bearer token with an epoch-millisecond expiry.
type GcpAccessToken struct {
	Token      string `json:"token"`
	Expiration int64  `json:"expiration"`
}

// ExpirationMillis implements provision.SecretToken.
func (t *GcpAccessToken) ExpirationMillis() int64 { return t.Expiration }

// ServiceAccount is a scoped cloud identity created to access exactly one
// bucket for one transfer.
type ServiceAccount struct {
	// Email is the service account email address.
	Email string `json:"email"`

	// Name is the short account id (the part before the "@").
	Name string `json:"name"`

	// Description embeds the transfer process id and bucket name, enabling
	// idempotent re-discovery.
	Description string `json:"description,omitempty"`
}

// Bucket is a provisioned storage bucket.
type Bucket struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}
