package provision

import (
	"time"
)

// Data address property keys shared across providers. A data address is a
// flat string-keyed property bag describing where data lives and which
// credentials unlock it.
const (
	PropBucketName = "bucket_name"
	PropBlobName   = "blob_name"

	// PropServiceAccountKeyName references a service-account key file kept
	// in the secret store.
	PropServiceAccountKeyName = "service_account_key_name"
	// PropServiceAccountValue carries an inline base64-encoded
	// service-account key file.
	PropServiceAccountValue = "service_account_value"
	// PropAccessTokenKeyName references an access token kept in the secret
	// store.
	PropAccessTokenKeyName = "access_token_key_name"
	// PropAccessTokenValue carries an inline base64-encoded access token.
	PropAccessTokenValue = "access_token_value"
)

// DataAddress describes the location of data and the credential material
// needed to reach it. It is consumed read-only.
type DataAddress struct {
	// Type identifies the storage backend (e.g. "GoogleCloudStorage").
	Type string `json:"type"`

	// KeyName optionally references a secret-store entry holding an access
	// token for this address.
	KeyName string `json:"keyName,omitempty"`

	// Properties is the flat property bag.
	Properties map[string]string `json:"properties,omitempty"`
}

// Property returns the named property or the empty string.
func (a DataAddress) Property(key string) string {
	return a.Properties[key]
}

// ResourceDefinition identifies a requested resource. Definitions are
// immutable once created and are consumed, never mutated, by provisioners.
// Concrete definition types live in the provider packages.
type ResourceDefinition interface {
	// GetID returns the unique definition id.
	GetID() string

	// GetTransferProcessID returns the id of the owning transfer process.
	GetTransferProcessID() string

	// GetDataAddress returns the originating data address.
	GetDataAddress() DataAddress
}

// ProvisionedResource is the outcome of a successful provision. It is created
// exactly once per successful provision and read-only afterward.
type ProvisionedResource interface {
	// GetID returns the resource id (mirrors the definition id).
	GetID() string

	// GetResourceDefinitionID returns the id of the originating definition.
	GetResourceDefinitionID() string

	// GetTransferProcessID returns the id of the owning transfer process.
	GetTransferProcessID() string

	// GetResourceName returns the generated human-readable resource name.
	GetResourceName() string

	// HasToken reports whether an access token was issued for the resource.
	HasToken() bool

	// GetDataAddress returns the original data address, needed to resolve
	// credentials again at deprovision time.
	GetDataAddress() DataAddress

	// Record returns the serializable form persisted by the resource store.
	Record() StoredResource
}

// SecretToken is a short-lived bearer credential scoped to a provisioned
// identity. Tokens are carried inside provisioning results and handed to a
// secrets store; they are never persisted alongside the resource record.
type SecretToken interface {
	// ExpirationMillis returns the token expiry as epoch milliseconds.
	ExpirationMillis() int64
}

// ProvisionResponse is the success payload of a provision call.
type ProvisionResponse struct {
	Resource    ProvisionedResource
	SecretToken SecretToken
}

// DeprovisionedResource is the success payload of a deprovision call.
type DeprovisionedResource struct {
	// ProvisionedResourceID is the id of the resource that was deprovisioned.
	ProvisionedResourceID string `json:"provisionedResourceId"`

	// InError reports that deprovisioning left the resource in an error
	// state.
	InError bool `json:"inError,omitempty"`

	// ErrorMessage describes the error state, if any.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// StoredResource is the serialized form of a provisioned resource kept in the
// resource store. Provider-specific fields go into Attributes so that the
// owning provisioner can rebuild its concrete resource type later.
type StoredResource struct {
	ID                   string            `json:"id"`
	ResourceDefinitionID string            `json:"resource_definition_id"`
	TransferProcessID    string            `json:"transfer_process_id"`
	ResourceName         string            `json:"resource_name"`
	Type                 string            `json:"type"`
	HasSecretToken       bool              `json:"has_secret_token"`
	Attributes           map[string]string `json:"attributes,omitempty"`
	DataAddress          DataAddress       `json:"data_address"`
	CreatedAt            time.Time         `json:"created_at"`
}
