package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

func TestMemoryStoreAndResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.Store("gcs-token", `{"token":"tkn","expiration":1000}`)

	value, err := store.ResolveSecret(ctx, "gcs-token")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"tkn","expiration":1000}`, value)
}

func TestMemoryResolveMissing(t *testing.T) {
	store := NewMemory()

	_, err := store.ResolveSecret(context.Background(), "missing")
	assert.True(t, provision.IsCategory(err, provision.ErrCategoryNotFound))
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	store := NewMemory()
	store.Store("k", "v")
	store.Delete("k")
	store.Delete("k")

	_, err := store.ResolveSecret(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryStoreSecret(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.StoreSecret(ctx, "r1", `{"token":"tkn"}`))

	value, err := store.ResolveSecret(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"tkn"}`, value)
}

func TestDirStoreSecret(t *testing.T) {
	ctx := context.Background()
	store := NewDir(filepath.Join(t.TempDir(), "secrets"))
	require.NoError(t, store.StoreSecret(ctx, "r1", `{"token":"tkn"}`))

	value, err := store.ResolveSecret(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"tkn"}`, value)

	require.NoError(t, store.StoreSecret(ctx, "r1", "replaced"))
	value, err = store.ResolveSecret(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "replaced", value)
}

func TestDirStoreSecretRejectsEscapingKeys(t *testing.T) {
	store := NewDir(t.TempDir())

	for _, key := range []string{"", "../outside", "a/b", `a\b`} {
		err := store.StoreSecret(context.Background(), key, "v")
		assert.True(t, provision.IsCategory(err, provision.ErrCategoryValidation), "key %q", key)
	}
}

func TestDirResolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sa-key"), []byte("content\n"), 0o600))

	store := NewDir(root)
	value, err := store.ResolveSecret(context.Background(), "sa-key")
	require.NoError(t, err)
	assert.Equal(t, "content", value, "surrounding whitespace is trimmed")
}

func TestDirResolveMissing(t *testing.T) {
	store := NewDir(t.TempDir())

	_, err := store.ResolveSecret(context.Background(), "missing")
	assert.True(t, provision.IsCategory(err, provision.ErrCategoryNotFound))
}

func TestDirRejectsEscapingKeys(t *testing.T) {
	store := NewDir(t.TempDir())

	for _, key := range []string{"", "../outside", "a/b", `a\b`} {
		_, err := store.ResolveSecret(context.Background(), key)
		assert.True(t, provision.IsCategory(err, provision.ErrCategoryValidation), "key %q", key)
	}
}
