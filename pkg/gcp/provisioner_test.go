package gcp

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/google"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
	"github.com/anirudhbiyani/cloud-provision/pkg/vault"
)

func tokenAddress() provision.DataAddress {
	return provision.DataAddress{
		Type: StoreType,
		Properties: map[string]string{
			provision.PropAccessTokenValue: base64.StdEncoding.EncodeToString([]byte(testTokenJSON)),
		},
	}
}

func newTestProvisioner(storage *fakeStorageClient, identity *fakeIdentityClient) *Provisioner {
	resolver := NewCredentialResolver(vault.NewMemory(), nil)
	return NewProvisioner(resolver,
		WithStorageClientFactory(func(ctx context.Context, credentials *google.Credentials) (StorageClient, error) {
			return storage, nil
		}),
		WithIdentityClientFactory(func(ctx context.Context, credentials *google.Credentials) (IdentityClient, error) {
			return identity, nil
		}),
	)
}

func TestCanProvisionAndDeprovision(t *testing.T) {
	p := newTestProvisioner(newFakeStorageClient(), &fakeIdentityClient{})

	assert.True(t, p.CanProvision(&GcsResourceDefinition{ID: "r1"}))
	assert.True(t, p.CanDeprovision(&GcsProvisionedResource{ID: "r1"}))

	var other provision.ResourceDefinition
	assert.False(t, p.CanProvision(other))
}

func TestProvisionCreatesBucketIdentityAndToken(t *testing.T) {
	storage := newFakeStorageClient()
	identity := &fakeIdentityClient{}
	p := newTestProvisioner(storage, identity)

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		Location:          "EU",
		ProjectID:         "p1",
		StorageClass:      "STANDARD",
		BucketName:        "b1",
		DataAddress:       tokenAddress(),
	}

	result, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	resource := result.Content.Resource.(*GcsProvisionedResource)
	assert.Equal(t, "r1", resource.ID)
	assert.Equal(t, "r1-bucket", resource.ResourceName)
	assert.Equal(t, "b1", resource.BucketName)
	assert.Equal(t, "tp-123", resource.TransferProcessID)
	assert.Equal(t, "edc-tp123@p1.iam.gserviceaccount.com", resource.ServiceAccountEmail)
	assert.True(t, resource.Token)

	token := result.Content.SecretToken.(*GcpAccessToken)
	assert.Equal(t, "issued-token", token.Token)

	// The bucket exists and the identity holds read and write roles on it.
	require.Contains(t, storage.buckets, "b1")
	assert.Equal(t, "EU", storage.buckets["b1"].Location)
	require.Len(t, storage.policies["b1"].Bindings, 2)

	// The identity carries the deterministic description.
	require.Len(t, identity.accounts, 1)
	assert.Equal(t, "transferProcess:tp-123\nbucket:b1", identity.accounts[0].Description)
}

func TestProvisionWithInlineKeyFile(t *testing.T) {
	storage := newFakeStorageClient()
	p := newTestProvisioner(storage, &fakeIdentityClient{})

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		Location:          "us",
		ProjectID:         "p1",
		BucketName:        "b1",
		DataAddress: provision.DataAddress{
			Type: StoreType,
			Properties: map[string]string{
				provision.PropServiceAccountValue: base64.StdEncoding.EncodeToString([]byte(testKeyFile)),
			},
		},
	}

	result, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	resource := result.Content.Resource.(*GcsProvisionedResource)
	assert.Equal(t, "b1", resource.BucketName)
	assert.True(t, resource.HasToken())
}

func TestProvisionDefaultsBucketNameToDefinitionID(t *testing.T) {
	storage := newFakeStorageClient()
	p := newTestProvisioner(storage, &fakeIdentityClient{})

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		Location:          "EU",
		ProjectID:         "p1",
		DataAddress:       tokenAddress(),
	}

	result, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Contains(t, storage.buckets, "r1")
}

func TestProvisionIsIdempotent(t *testing.T) {
	storage := newFakeStorageClient()
	identity := &fakeIdentityClient{}
	p := newTestProvisioner(storage, identity)

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		Location:          "EU",
		ProjectID:         "p1",
		BucketName:        "b1",
		DataAddress:       tokenAddress(),
	}

	first, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	require.True(t, first.Succeeded())

	second, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	require.True(t, second.Succeeded())

	// The bucket and identity were reused, not duplicated.
	assert.Len(t, storage.buckets, 1)
	assert.Len(t, identity.accounts, 1)
	assert.Equal(t, 1, identity.createCalls)
}

func TestProvisionAbortsOnNonEmptyBucket(t *testing.T) {
	storage := newFakeStorageClient()
	storage.buckets["b1"] = &Bucket{Name: "b1", Location: "EU"}
	storage.policies["b1"] = &Policy{}
	storage.objects["b1"] = []string{"leftover"}
	identity := &fakeIdentityClient{}
	p := newTestProvisioner(storage, identity)

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		Location:          "EU",
		ProjectID:         "p1",
		BucketName:        "b1",
		DataAddress:       tokenAddress(),
	}

	result, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	assert.True(t, result.FatalError())
	assert.Contains(t, result.FailureDetail(), "bucket b1 already exists and is not empty")

	// No identity was created for the aborted provision.
	assert.Empty(t, identity.accounts)
}

func TestProvisionCredentialFailureIsFatal(t *testing.T) {
	p := newTestProvisioner(newFakeStorageClient(), &fakeIdentityClient{})

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		ProjectID:         "p1",
		DataAddress: provision.DataAddress{
			Type: StoreType,
			Properties: map[string]string{
				provision.PropAccessTokenValue: "%%%not-base64%%%",
			},
		},
	}

	result, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	assert.True(t, result.FatalError())
	assert.Contains(t, result.FailureDetail(), "access token value is not valid base64")
}

func TestProvisionWrapsClientFailures(t *testing.T) {
	wantErr := errors.New("connection reset")
	resolver := NewCredentialResolver(vault.NewMemory(), nil)
	p := NewProvisioner(resolver,
		WithStorageClientFactory(func(ctx context.Context, credentials *google.Credentials) (StorageClient, error) {
			return nil, wantErr
		}),
	)

	storage := newFakeStorageClient()
	storage.listErr = wantErr
	p2 := newTestProvisioner(storage, &fakeIdentityClient{})

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		ProjectID:         "p1",
		BucketName:        "b1",
		DataAddress:       tokenAddress(),
	}

	result, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	assert.True(t, result.FatalError())

	result2, err2 := p2.Provision(context.Background(), def)
	require.NoError(t, err2)
	assert.True(t, result2.FatalError())
	assert.Contains(t, result2.FailureDetail(), "failed to list bucket contents")
}

func TestDeprovisionDeletesIdentityKeepsBucket(t *testing.T) {
	storage := newFakeStorageClient()
	identity := &fakeIdentityClient{}
	p := newTestProvisioner(storage, identity)

	def := &GcsResourceDefinition{
		ID:                "r1",
		TransferProcessID: "tp-123",
		Location:          "EU",
		ProjectID:         "p1",
		BucketName:        "b1",
		DataAddress:       tokenAddress(),
	}
	provisioned, err := p.Provision(context.Background(), def)
	require.NoError(t, err)
	require.True(t, provisioned.Succeeded())

	result, err := p.Deprovision(context.Background(), provisioned.Content.Resource)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, "r1", result.Content.ProvisionedResourceID)

	assert.Empty(t, identity.accounts, "service account should be deleted")
	assert.Contains(t, storage.buckets, "b1", "bucket must be left in place")
}

func TestDeprovisionMissingIdentityIsNotAnError(t *testing.T) {
	p := newTestProvisioner(newFakeStorageClient(), &fakeIdentityClient{})

	result, err := p.Deprovision(context.Background(), &GcsProvisionedResource{
		ID:                  "r1",
		ProjectID:           "p1",
		ServiceAccountEmail: "gone@p1.iam.gserviceaccount.com",
		DataAddress:         tokenAddress(),
	})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestDeprovisionFailureMessage(t *testing.T) {
	identity := &fakeIdentityClient{deleteErr: errors.New("permission denied")}
	p := newTestProvisioner(newFakeStorageClient(), identity)

	result, err := p.Deprovision(context.Background(), &GcsProvisionedResource{
		ID:                  "r1",
		ProjectID:           "p1",
		ServiceAccountEmail: "sa@p1.iam.gserviceaccount.com",
		DataAddress:         tokenAddress(),
	})
	require.NoError(t, err)
	assert.True(t, result.FatalError())
	assert.Contains(t, result.FailureDetail(), "deprovision failed with: ")
}

func TestRestoreRoundTrip(t *testing.T) {
	p := newTestProvisioner(newFakeStorageClient(), &fakeIdentityClient{})

	original := &GcsProvisionedResource{
		ID:                   "r1",
		ResourceDefinitionID: "r1",
		TransferProcessID:    "tp-123",
		Location:             "EU",
		ProjectID:            "p1",
		StorageClass:         "STANDARD",
		BucketName:           "b1",
		ServiceAccountEmail:  "edc-tp123@p1.iam.gserviceaccount.com",
		ServiceAccountName:   "edc-tp123",
		ResourceName:         "r1-bucket",
		Token:                true,
		DataAddress:          tokenAddress(),
	}

	record := original.Record()
	require.True(t, p.CanRestore(record))

	restored, err := p.Restore(record)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestRestoreRejectsForeignRecord(t *testing.T) {
	p := newTestProvisioner(newFakeStorageClient(), &fakeIdentityClient{})

	record := provision.StoredResource{ID: "r1", Type: "AmazonS3"}
	assert.False(t, p.CanRestore(record))

	_, err := p.Restore(record)
	require.Error(t, err)
	assert.True(t, provision.IsCategory(err, provision.ErrCategoryValidation))
}
