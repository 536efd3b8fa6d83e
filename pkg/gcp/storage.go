package gcp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// Roles granted to the provisioned identity on the bucket. The grant adds
// members to existing bindings, it never replaces the policy wholesale.
const (
	readRole  = "roles/storage.objectViewer"
	writeRole = "roles/storage.objectCreator"
)

// Policy is a bucket IAM policy.
type Policy struct {
	Bindings []*Binding
	Etag     string
}

// Binding associates a role with its members.
type Binding struct {
	Role    string
	Members []string
}

// StorageClient abstracts the bucket API operations the storage service
// needs, so tests can substitute fakes for the real SDK adapter.
type StorageClient interface {
	// GetBucket returns the bucket. A missing bucket yields a not_found
	// provisioning error.
	GetBucket(ctx context.Context, name string) (*Bucket, error)

	// InsertBucket creates the bucket. An existing bucket yields a conflict
	// provisioning error.
	InsertBucket(ctx context.Context, projectID string, bucket *Bucket, storageClass string) (*Bucket, error)

	// ListObjects returns up to max object names in the bucket.
	ListObjects(ctx context.Context, bucket string, max int64) ([]string, error)

	// GetIamPolicy returns the bucket's IAM policy.
	GetIamPolicy(ctx context.Context, bucket string) (*Policy, error)

	// SetIamPolicy replaces the bucket's IAM policy.
	SetIamPolicy(ctx context.Context, bucket string, policy *Policy) error
}

// StorageService idempotently creates buckets, checks emptiness and grants
// identities read/write access.
type StorageService struct {
	client    StorageClient
	projectID string
	logger    *zap.Logger
}

// NewStorageService creates a storage service bound to a project.
func NewStorageService(client StorageClient, projectID string, logger *zap.Logger) *StorageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageService{client: client, projectID: projectID, logger: logger}
}

// GetOrCreateEmptyBucket creates the bucket or reuses an existing one with
// the same name. The returned bool reports whether a new bucket was created.
// Emptiness is checked separately via IsEmpty.
func (s *StorageService) GetOrCreateEmptyBucket(ctx context.Context, name, location, storageClass string) (*Bucket, bool, error) {
	bucket, err := s.client.InsertBucket(ctx, s.projectID, &Bucket{Name: name, Location: location}, storageClass)
	if err == nil {
		s.logger.Info("created bucket",
			zap.String("bucket", name), zap.String("location", location))
		return bucket, true, nil
	}

	if provision.IsCategory(err, provision.ErrCategoryConflict) {
		existing, getErr := s.client.GetBucket(ctx, name)
		if getErr != nil {
			return nil, false, provision.ErrProvisioning("failed to look up existing bucket").
				WithProvider(StoreType).
				WithResource("bucket", name).
				WithCause(getErr)
		}
		s.logger.Info("reusing existing bucket", zap.String("bucket", name))
		return existing, false, nil
	}

	return nil, false, provision.ErrProvisioning("failed to create bucket").
		WithProvider(StoreType).
		WithResource("bucket", name).
		WithCause(err)
}

// IsEmpty reports whether the bucket contains no objects.
func (s *StorageService) IsEmpty(ctx context.Context, name string) (bool, error) {
	objects, err := s.client.ListObjects(ctx, name, 1)
	if err != nil {
		return false, provision.ErrProvisioning("failed to list bucket contents").
			WithProvider(StoreType).
			WithResource("bucket", name).
			WithCause(err)
	}
	return len(objects) == 0, nil
}

// AddProviderPermissions grants the service account read/write access on the
// bucket, preserving all existing bindings.
func (s *StorageService) AddProviderPermissions(ctx context.Context, bucket *Bucket, account *ServiceAccount) error {
	policy, err := s.client.GetIamPolicy(ctx, bucket.Name)
	if err != nil {
		return provision.ErrProvisioning("failed to get bucket IAM policy").
			WithProvider(StoreType).
			WithResource("bucket", bucket.Name).
			WithCause(err)
	}

	member := fmt.Sprintf("serviceAccount:%s", account.Email)
	for _, role := range []string{readRole, writeRole} {
		addBindingMember(policy, role, member)
	}

	if err := s.client.SetIamPolicy(ctx, bucket.Name, policy); err != nil {
		return provision.ErrProvisioning("failed to set bucket IAM policy").
			WithProvider(StoreType).
			WithResource("bucket", bucket.Name).
			WithCause(err)
	}

	s.logger.Info("granted bucket access",
		zap.String("bucket", bucket.Name), zap.String("member", member))
	return nil
}

// addBindingMember merges member into the binding for role, creating the
// binding if needed.
func addBindingMember(policy *Policy, role, member string) {
	for _, binding := range policy.Bindings {
		if binding.Role != role {
			continue
		}
		for _, m := range binding.Members {
			if m == member {
				return
			}
		}
		binding.Members = append(binding.Members, member)
		return
	}
	policy.Bindings = append(policy.Bindings, &Binding{
		Role:    role,
		Members: []string{member},
	})
}
