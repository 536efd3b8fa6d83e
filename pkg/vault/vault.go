// Package vault provides SecretStore implementations.
package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// Memory is a map-backed secret store.
type Memory struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemory creates a new empty in-memory secret store.
func NewMemory() *Memory {
	return &Memory{secrets: make(map[string]string)}
}

// Store saves a secret under key, replacing any previous value.
func (m *Memory) Store(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
}

// StoreSecret implements provision.SecretWriter.
func (m *Memory) StoreSecret(ctx context.Context, key, value string) error {
	m.Store(key, value)
	return nil
}

// Delete removes a secret. Deleting a missing key is not an error.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, key)
}

// ResolveSecret implements provision.SecretStore.
func (m *Memory) ResolveSecret(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.secrets[key]
	if !exists {
		return "", provision.ErrNotFound("secret", key)
	}
	return value, nil
}

// Dir is a secret store backed by one file per secret under a root
// directory.
type Dir struct {
	root string
}

// NewDir creates a directory-backed secret store rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// ResolveSecret implements provision.SecretStore. Key names must not escape
// the root directory.
func (d *Dir) ResolveSecret(ctx context.Context, key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return "", provision.ErrValidation("invalid secret key name").
			WithResource("secret", key)
	}

	data, err := os.ReadFile(filepath.Join(d.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", provision.ErrNotFound("secret", key)
		}
		return "", provision.ErrInternal("failed to read secret").WithCause(err)
	}
	return strings.TrimSpace(string(data)), nil
}

// StoreSecret implements provision.SecretWriter. Key names must not escape
// the root directory.
func (d *Dir) StoreSecret(ctx context.Context, key, value string) error {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return provision.ErrValidation("invalid secret key name").
			WithResource("secret", key)
	}

	if err := os.MkdirAll(d.root, 0o700); err != nil {
		return provision.ErrInternal("failed to create secret store directory").WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(d.root, key), []byte(value), 0o600); err != nil {
		return provision.ErrInternal("failed to write secret").WithCause(err)
	}
	return nil
}
