package gcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// fakeStorageClient is an in-memory StorageClient.
type fakeStorageClient struct {
	buckets  map[string]*Bucket
	objects  map[string][]string
	policies map[string]*Policy

	insertErr    error
	listErr      error
	getPolicyErr error
	setPolicyErr error
}

func newFakeStorageClient() *fakeStorageClient {
	return &fakeStorageClient{
		buckets:  make(map[string]*Bucket),
		objects:  make(map[string][]string),
		policies: make(map[string]*Policy),
	}
}

func (c *fakeStorageClient) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	bucket, exists := c.buckets[name]
	if !exists {
		return nil, provision.ErrNotFound("bucket", name)
	}
	return bucket, nil
}

func (c *fakeStorageClient) InsertBucket(ctx context.Context, projectID string, bucket *Bucket, storageClass string) (*Bucket, error) {
	if c.insertErr != nil {
		return nil, c.insertErr
	}
	if _, exists := c.buckets[bucket.Name]; exists {
		return nil, provision.ErrConflict("bucket", bucket.Name)
	}
	c.buckets[bucket.Name] = bucket
	c.policies[bucket.Name] = &Policy{}
	return bucket, nil
}

func (c *fakeStorageClient) ListObjects(ctx context.Context, bucket string, max int64) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	objects := c.objects[bucket]
	if int64(len(objects)) > max {
		objects = objects[:max]
	}
	return objects, nil
}

func (c *fakeStorageClient) GetIamPolicy(ctx context.Context, bucket string) (*Policy, error) {
	if c.getPolicyErr != nil {
		return nil, c.getPolicyErr
	}
	policy, exists := c.policies[bucket]
	if !exists {
		return nil, provision.ErrNotFound("bucket", bucket)
	}
	return policy, nil
}

func (c *fakeStorageClient) SetIamPolicy(ctx context.Context, bucket string, policy *Policy) error {
	if c.setPolicyErr != nil {
		return c.setPolicyErr
	}
	c.policies[bucket] = policy
	return nil
}

func TestGetOrCreateEmptyBucketCreates(t *testing.T) {
	client := newFakeStorageClient()
	service := NewStorageService(client, "p1", nil)

	bucket, created, err := service.GetOrCreateEmptyBucket(context.Background(), "b1", "EU", "STANDARD")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "b1", bucket.Name)
	assert.Equal(t, "EU", bucket.Location)
}

func TestGetOrCreateEmptyBucketReusesExisting(t *testing.T) {
	client := newFakeStorageClient()
	client.buckets["b1"] = &Bucket{Name: "b1", Location: "EU"}
	client.policies["b1"] = &Policy{}
	service := NewStorageService(client, "p1", nil)

	bucket, created, err := service.GetOrCreateEmptyBucket(context.Background(), "b1", "EU", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "b1", bucket.Name)
}

func TestGetOrCreateEmptyBucketFailure(t *testing.T) {
	client := newFakeStorageClient()
	client.insertErr = errors.New("quota exceeded")
	service := NewStorageService(client, "p1", nil)

	_, _, err := service.GetOrCreateEmptyBucket(context.Background(), "b1", "EU", "")
	require.Error(t, err)
	assert.True(t, provision.IsCategory(err, provision.ErrCategoryProvisioning))
}

func TestIsEmpty(t *testing.T) {
	client := newFakeStorageClient()
	client.objects["full"] = []string{"object-1", "object-2"}
	service := NewStorageService(client, "p1", nil)

	empty, err := service.IsEmpty(context.Background(), "empty")
	require.NoError(t, err)
	assert.True(t, empty)

	empty, err = service.IsEmpty(context.Background(), "full")
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestAddProviderPermissionsGrantsBothRoles(t *testing.T) {
	client := newFakeStorageClient()
	client.buckets["b1"] = &Bucket{Name: "b1"}
	client.policies["b1"] = &Policy{}
	service := NewStorageService(client, "p1", nil)

	account := &ServiceAccount{Email: "edc-tp123@p1.iam.gserviceaccount.com"}
	require.NoError(t, service.AddProviderPermissions(context.Background(), client.buckets["b1"], account))

	policy := client.policies["b1"]
	require.Len(t, policy.Bindings, 2)
	member := "serviceAccount:edc-tp123@p1.iam.gserviceaccount.com"
	assert.Equal(t, readRole, policy.Bindings[0].Role)
	assert.Equal(t, []string{member}, policy.Bindings[0].Members)
	assert.Equal(t, writeRole, policy.Bindings[1].Role)
	assert.Equal(t, []string{member}, policy.Bindings[1].Members)
}

func TestAddProviderPermissionsPreservesExistingBindings(t *testing.T) {
	client := newFakeStorageClient()
	client.buckets["b1"] = &Bucket{Name: "b1"}
	client.policies["b1"] = &Policy{
		Bindings: []*Binding{
			{Role: "roles/storage.admin", Members: []string{"user:admin@example.com"}},
			{Role: readRole, Members: []string{"serviceAccount:other@p1.iam.gserviceaccount.com"}},
		},
	}
	service := NewStorageService(client, "p1", nil)

	account := &ServiceAccount{Email: "edc-tp123@p1.iam.gserviceaccount.com"}
	require.NoError(t, service.AddProviderPermissions(context.Background(), client.buckets["b1"], account))

	policy := client.policies["b1"]
	require.Len(t, policy.Bindings, 3)
	assert.Equal(t, []string{"user:admin@example.com"}, policy.Bindings[0].Members)
	assert.Equal(t, []string{
		"serviceAccount:other@p1.iam.gserviceaccount.com",
		"serviceAccount:edc-tp123@p1.iam.gserviceaccount.com",
	}, policy.Bindings[1].Members)
}

func TestAddProviderPermissionsIsIdempotent(t *testing.T) {
	client := newFakeStorageClient()
	client.buckets["b1"] = &Bucket{Name: "b1"}
	client.policies["b1"] = &Policy{}
	service := NewStorageService(client, "p1", nil)

	account := &ServiceAccount{Email: "edc-tp123@p1.iam.gserviceaccount.com"}
	require.NoError(t, service.AddProviderPermissions(context.Background(), client.buckets["b1"], account))
	require.NoError(t, service.AddProviderPermissions(context.Background(), client.buckets["b1"], account))

	for _, binding := range client.policies["b1"].Bindings {
		assert.Len(t, binding.Members, 1, "repeat grants must not duplicate members")
	}
}
