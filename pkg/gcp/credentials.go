package gcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// serviceAccountMarker must appear in a decoded key file for it to be
// accepted as a service-account document.
const serviceAccountMarker = "service_account"

// CredentialResolver maps a data address's properties to usable Google
// credentials via a fixed-priority fallback chain:
//
//  1. access token referenced by the address key name or the
//     access_token_key_name property, fetched from the secret store
//  2. inline base64-encoded access token (access_token_value)
//  3. service-account key file fetched from the secret store
//     (service_account_key_name)
//  4. inline base64-encoded service-account key file (service_account_value)
//  5. Application Default Credentials
//
// The first strategy that yields content wins; later strategies are never
// evaluated once one has produced a credential.
type CredentialResolver struct {
	secrets provision.SecretStore
	logger  *zap.Logger
}

// NewCredentialResolver creates a resolver backed by the given secret store.
func NewCredentialResolver(secrets provision.SecretStore, logger *zap.Logger) *CredentialResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialResolver{secrets: secrets, logger: logger}
}

// Resolve returns Google credentials for the data address. It never returns
// partially-initialized credentials; malformed input yields a credential
// error.
func (r *CredentialResolver) Resolve(ctx context.Context, address provision.DataAddress) (*google.Credentials, error) {
	strategies := []struct {
		name    string
		resolve func(context.Context, provision.DataAddress) (*google.Credentials, error)
	}{
		{"access token from secret store", r.tokenFromSecretStore},
		{"inline access token", r.tokenInline},
		{"key file from secret store", r.keyFileFromSecretStore},
		{"inline key file", r.keyFileInline},
	}

	for _, s := range strategies {
		creds, err := s.resolve(ctx, address)
		if err != nil {
			return nil, err
		}
		if creds != nil {
			r.logger.Info("resolved google credentials", zap.String("source", s.name))
			return creds, nil
		}
	}

	r.logger.Info("resolved google credentials", zap.String("source", "application default"))
	return r.applicationDefault(ctx)
}

// tokenFromSecretStore resolves an access token referenced by the address key
// name or the access_token_key_name property.
func (r *CredentialResolver) tokenFromSecretStore(ctx context.Context, address provision.DataAddress) (*google.Credentials, error) {
	key := address.KeyName
	if key == "" {
		key = address.Property(provision.PropAccessTokenKeyName)
	}
	if key == "" {
		return nil, nil
	}

	content, err := r.secrets.ResolveSecret(ctx, key)
	if err != nil {
		// An absent secret falls through to the next strategy.
		if provision.IsCategory(err, provision.ErrCategoryNotFound) {
			return nil, nil
		}
		return nil, provision.ErrCredential("failed to resolve access token from secret store").
			WithProvider(StoreType).
			WithResource("secret", key).
			WithCause(err)
	}
	if content == "" {
		return nil, nil
	}
	return credentialsFromToken(content)
}

// tokenInline resolves an inline base64-encoded access token.
func (r *CredentialResolver) tokenInline(ctx context.Context, address provision.DataAddress) (*google.Credentials, error) {
	value := address.Property(provision.PropAccessTokenValue)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, provision.ErrCredential("access token value is not valid base64").
			WithProvider(StoreType)
	}
	return credentialsFromToken(string(decoded))
}

// keyFileFromSecretStore resolves a service-account key file kept in the
// secret store.
func (r *CredentialResolver) keyFileFromSecretStore(ctx context.Context, address provision.DataAddress) (*google.Credentials, error) {
	key := address.Property(provision.PropServiceAccountKeyName)
	if key == "" {
		return nil, nil
	}

	content, err := r.secrets.ResolveSecret(ctx, key)
	if err != nil {
		if provision.IsCategory(err, provision.ErrCategoryNotFound) {
			return nil, nil
		}
		return nil, provision.ErrCredential("failed to resolve service account key file from secret store").
			WithProvider(StoreType).
			WithResource("secret", key).
			WithCause(err)
	}
	if content == "" {
		return nil, nil
	}
	return credentialsFromKeyFile(ctx, []byte(content))
}

// keyFileInline resolves an inline base64-encoded service-account key file.
func (r *CredentialResolver) keyFileInline(ctx context.Context, address provision.DataAddress) (*google.Credentials, error) {
	value := address.Property(provision.PropServiceAccountValue)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, provision.ErrCredential("service account value is not valid base64").
			WithProvider(StoreType)
	}
	if !strings.Contains(string(decoded), serviceAccountMarker) {
		return nil, provision.ErrCredential("service account value is not a valid key file").
			WithProvider(StoreType)
	}
	return credentialsFromKeyFile(ctx, decoded)
}

// applicationDefault falls back to the platform's default credential
// discovery. Failure here is a credential error, not swallowed.
func (r *CredentialResolver) applicationDefault(ctx context.Context) (*google.Credentials, error) {
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, provision.ErrCredential("failed to discover application default credentials").
			WithProvider(StoreType).
			WithCause(err)
	}
	return creds, nil
}

// credentialsFromToken parses token content into a GcpAccessToken and builds
// static credentials from it.
func credentialsFromToken(content string) (*google.Credentials, error) {
	var token GcpAccessToken
	if err := json.Unmarshal([]byte(content), &token); err != nil || token.Token == "" {
		return nil, provision.ErrCredential("access token is not in the expected format").
			WithProvider(StoreType)
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.Token,
		Expiry:      time.UnixMilli(token.Expiration),
	})
	return &google.Credentials{TokenSource: source}, nil
}

// credentialsFromKeyFile builds credentials from a JSON service-account key
// file.
func credentialsFromKeyFile(ctx context.Context, keyFile []byte) (*google.Credentials, error) {
	creds, err := google.CredentialsFromJSON(ctx, keyFile, cloudPlatformScope)
	if err != nil {
		return nil, provision.ErrCredential("failed to build credentials from key file").
			WithProvider(StoreType).
			WithCause(err)
	}
	return creds, nil
}
