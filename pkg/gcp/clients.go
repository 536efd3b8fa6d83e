package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	iamapi "google.golang.org/api/iam/v1"
	iamcredentials "google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
	storageapi "google.golang.org/api/storage/v1"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// restIdentityClient implements IdentityClient over the IAM and IAM
// Credentials REST APIs.
type restIdentityClient struct {
	iam   *iamapi.Service
	creds *iamcredentials.Service
}

// NewIdentityClient creates an identity client bound to the resolved
// credentials.
func NewIdentityClient(ctx context.Context, credentials *google.Credentials) (IdentityClient, error) {
	opts := []option.ClientOption{option.WithTokenSource(credentials.TokenSource)}

	iamService, err := iamapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create iam service: %w", err)
	}

	credsService, err := iamcredentials.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create iamcredentials service: %w", err)
	}

	return &restIdentityClient{iam: iamService, creds: credsService}, nil
}

// ListServiceAccounts implements IdentityClient.
func (c *restIdentityClient) ListServiceAccounts(ctx context.Context, projectID string) ([]*ServiceAccount, error) {
	var accounts []*ServiceAccount
	call := c.iam.Projects.ServiceAccounts.List("projects/" + projectID)
	err := call.Pages(ctx, func(resp *iamapi.ListServiceAccountsResponse) error {
		for _, sa := range resp.Accounts {
			accounts = append(accounts, &ServiceAccount{
				Email:       sa.Email,
				Name:        sa.DisplayName,
				Description: sa.Description,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateServiceAccount implements IdentityClient.
func (c *restIdentityClient) CreateServiceAccount(ctx context.Context, projectID, accountID, description string) (*ServiceAccount, error) {
	req := &iamapi.CreateServiceAccountRequest{
		AccountId: accountID,
		ServiceAccount: &iamapi.ServiceAccount{
			DisplayName: accountID,
			Description: description,
		},
	}

	sa, err := c.iam.Projects.ServiceAccounts.Create("projects/"+projectID, req).Context(ctx).Do()
	if err != nil {
		if apiStatus(err, http.StatusConflict) {
			return nil, provision.ErrConflict("service_account", accountID).WithCause(err)
		}
		return nil, err
	}

	return &ServiceAccount{
		Email:       sa.Email,
		Name:        sa.DisplayName,
		Description: sa.Description,
	}, nil
}

// DeleteServiceAccount implements IdentityClient.
func (c *restIdentityClient) DeleteServiceAccount(ctx context.Context, projectID, email string) error {
	name := fmt.Sprintf("projects/%s/serviceAccounts/%s", projectID, email)
	_, err := c.iam.Projects.ServiceAccounts.Delete(name).Context(ctx).Do()
	if err != nil {
		if apiStatus(err, http.StatusNotFound) {
			return provision.ErrNotFound("service_account", email).WithCause(err)
		}
		return err
	}
	return nil
}

// GenerateAccessToken implements IdentityClient.
func (c *restIdentityClient) GenerateAccessToken(ctx context.Context, email string, scopes []string, lifetime time.Duration) (*GcpAccessToken, error) {
	name := fmt.Sprintf("projects/-/serviceAccounts/%s", email)
	req := &iamcredentials.GenerateAccessTokenRequest{
		Scope:    scopes,
		Lifetime: fmt.Sprintf("%ds", int(lifetime.Seconds())),
	}

	resp, err := c.creds.Projects.ServiceAccounts.GenerateAccessToken(name, req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	expiry, err := time.Parse(time.RFC3339, resp.ExpireTime)
	if err != nil {
		return nil, fmt.Errorf("unexpected token expire time %q: %w", resp.ExpireTime, err)
	}

	return &GcpAccessToken{
		Token:      resp.AccessToken,
		Expiration: expiry.UnixMilli(),
	}, nil
}

// restStorageClient implements StorageClient over the Cloud Storage REST API.
type restStorageClient struct {
	svc *storageapi.Service
}

// NewStorageClient creates a storage client bound to the resolved
// credentials.
func NewStorageClient(ctx context.Context, credentials *google.Credentials) (StorageClient, error) {
	svc, err := storageapi.NewService(ctx, option.WithTokenSource(credentials.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &restStorageClient{svc: svc}, nil
}

// GetBucket implements StorageClient.
func (c *restStorageClient) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	bucket, err := c.svc.Buckets.Get(name).Context(ctx).Do()
	if err != nil {
		if apiStatus(err, http.StatusNotFound) {
			return nil, provision.ErrNotFound("bucket", name).WithCause(err)
		}
		return nil, err
	}
	return &Bucket{Name: bucket.Name, Location: bucket.Location}, nil
}

// InsertBucket implements StorageClient.
func (c *restStorageClient) InsertBucket(ctx context.Context, projectID string, bucket *Bucket, storageClass string) (*Bucket, error) {
	created, err := c.svc.Buckets.Insert(projectID, &storageapi.Bucket{
		Name:         bucket.Name,
		Location:     bucket.Location,
		StorageClass: storageClass,
	}).Context(ctx).Do()
	if err != nil {
		if apiStatus(err, http.StatusConflict) {
			return nil, provision.ErrConflict("bucket", bucket.Name).WithCause(err)
		}
		return nil, err
	}
	return &Bucket{Name: created.Name, Location: created.Location}, nil
}

// ListObjects implements StorageClient.
func (c *restStorageClient) ListObjects(ctx context.Context, bucket string, max int64) ([]string, error) {
	resp, err := c.svc.Objects.List(bucket).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Items))
	for _, object := range resp.Items {
		names = append(names, object.Name)
	}
	return names, nil
}

// GetIamPolicy implements StorageClient.
func (c *restStorageClient) GetIamPolicy(ctx context.Context, bucket string) (*Policy, error) {
	apiPolicy, err := c.svc.Buckets.GetIamPolicy(bucket).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	policy := &Policy{Etag: apiPolicy.Etag}
	for _, binding := range apiPolicy.Bindings {
		policy.Bindings = append(policy.Bindings, &Binding{
			Role:    binding.Role,
			Members: binding.Members,
		})
	}
	return policy, nil
}

// SetIamPolicy implements StorageClient.
func (c *restStorageClient) SetIamPolicy(ctx context.Context, bucket string, policy *Policy) error {
	apiPolicy := &storageapi.Policy{Etag: policy.Etag}
	for _, binding := range policy.Bindings {
		apiPolicy.Bindings = append(apiPolicy.Bindings, &storageapi.PolicyBindings{
			Role:    binding.Role,
			Members: binding.Members,
		})
	}

	_, err := c.svc.Buckets.SetIamPolicy(bucket, apiPolicy).Context(ctx).Do()
	return err
}

// apiStatus reports whether err is a googleapi error with the given status
// code.
func apiStatus(err error, code int) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == code
	}
	return false
}
