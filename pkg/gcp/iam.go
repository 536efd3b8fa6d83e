package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// storageScope is the scope requested for issued access tokens.
const storageScope = "https://www.googleapis.com/auth/devstorage.read_write"

// tokenLifetime is the lifetime of issued access tokens.
const tokenLifetime = time.Hour

// IdentityClient abstracts the service-account API operations the identity
// service needs, so tests can substitute fakes for the real SDK adapter.
type IdentityClient interface {
	// ListServiceAccounts returns all service accounts in the project.
	ListServiceAccounts(ctx context.Context, projectID string) ([]*ServiceAccount, error)

	// CreateServiceAccount creates a service account with the given short
	// account id and description.
	CreateServiceAccount(ctx context.Context, projectID, accountID, description string) (*ServiceAccount, error)

	// DeleteServiceAccount deletes a service account by email. A missing
	// account yields a not_found provisioning error.
	DeleteServiceAccount(ctx context.Context, projectID, email string) error

	// GenerateAccessToken issues a short-lived access token for the account.
	GenerateAccessToken(ctx context.Context, email string, scopes []string, lifetime time.Duration) (*GcpAccessToken, error)
}

// IamService idempotently creates service identities and issues short-lived
// access tokens for them.
type IamService struct {
	client    IdentityClient
	projectID string
	logger    *zap.Logger
}

// NewIamService creates an identity service bound to a project.
func NewIamService(client IdentityClient, projectID string, logger *zap.Logger) *IamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IamService{client: client, projectID: projectID, logger: logger}
}

// GetOrCreateServiceAccount looks up an existing service account whose
// description matches exactly and reuses it; otherwise it creates a new one.
// The returned bool reports whether a new account was created.
func (s *IamService) GetOrCreateServiceAccount(ctx context.Context, name, description string) (*ServiceAccount, bool, error) {
	accounts, err := s.client.ListServiceAccounts(ctx, s.projectID)
	if err != nil {
		return nil, false, provision.ErrProvisioning("failed to list service accounts").
			WithProvider(StoreType).
			WithOperation("get_or_create_service_account").
			WithCause(err)
	}

	for _, account := range accounts {
		if account.Description == description {
			s.logger.Info("reusing existing service account",
				zap.String("email", account.Email))
			return account, false, nil
		}
	}

	account, err := s.client.CreateServiceAccount(ctx, s.projectID, name, description)
	if err != nil {
		return nil, false, provision.ErrProvisioning("failed to create service account").
			WithProvider(StoreType).
			WithResource("service_account", name).
			WithCause(err)
	}

	s.logger.Info("created service account", zap.String("email", account.Email))
	return account, true, nil
}

// CreateAccessToken issues a storage-scoped access token for the account.
// Failure to issue is fatal and is not retried.
func (s *IamService) CreateAccessToken(ctx context.Context, account *ServiceAccount) (*GcpAccessToken, error) {
	token, err := s.client.GenerateAccessToken(ctx, account.Email, []string{storageScope}, tokenLifetime)
	if err != nil {
		return nil, provision.ErrProvisioning("failed to create access token").
			WithProvider(StoreType).
			WithResource("service_account", account.Email).
			WithCause(err)
	}
	return token, nil
}

// DeleteServiceAccountIfExists deletes the account; a missing account is not
// an error.
func (s *IamService) DeleteServiceAccountIfExists(ctx context.Context, account *ServiceAccount) error {
	err := s.client.DeleteServiceAccount(ctx, s.projectID, account.Email)
	if err != nil {
		if provision.IsCategory(err, provision.ErrCategoryNotFound) {
			s.logger.Info("service account already deleted",
				zap.String("email", account.Email))
			return nil
		}
		return provision.ErrProvisioning("failed to delete service account").
			WithProvider(StoreType).
			WithResource("service_account", account.Email).
			WithCause(err)
	}

	s.logger.Info("deleted service account", zap.String("email", account.Email))
	return nil
}

// SanitizeServiceAccountName derives a valid service account id from a
// transfer process id. Account ids must be 6-30 characters of lowercase
// alphanumerics and dashes; the result is deterministic for a given input.
func SanitizeServiceAccountName(transferProcessID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(transferProcessID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	stripped := b.String()
	if len(stripped) > 26 {
		stripped = stripped[:26]
	}

	name := "edc-" + stripped
	for len(name) < 6 {
		name += "0"
	}
	return name
}

// ServiceAccountDescription builds the deterministic description embedding
// the transfer process id and bucket name. Identity lookup is by this string,
// so repeated provisioning attempts for the same logical resource converge on
// the same identity.
func ServiceAccountDescription(transferProcessID, bucketName string) string {
	return fmt.Sprintf("transferProcess:%s\nbucket:%s", transferProcessID, bucketName)
}
