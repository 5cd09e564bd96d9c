package draft

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Set(ctx, Key, []byte(`{"a":1}`)))
	got, err = store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	// Last write wins.
	require.NoError(t, store.Set(ctx, Key, []byte(`{"a":2}`)))
	got, err = store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, store.Remove(ctx, Key))
	got, err = store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Removing an absent key is not an error.
	require.NoError(t, store.Remove(ctx, Key))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, Key, value))
	value[0] = 'z'

	got, err := store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drafts")
	store, err := NewFileStore(WithDSN(dir))
	require.NoError(t, err)
	storeContract(t, store)
}

func TestFileStore_KeyMapsToSafeFileName(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(WithDSN(dir))
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), Key, []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "assessment_draft_v1.json"))
	assert.NoError(t, err)
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	store, err := NewFileStore(WithDSN(t.TempDir()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Set(context.Background(), Key, []byte{byte('a' + i)}))
		}(i)
	}
	wg.Wait()

	got, err := store.Get(context.Background(), Key)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewFileStore_RequiresDSN(t *testing.T) {
	_, err := NewFileStore()
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(WithDSN(filepath.Join(t.TempDir(), "nested", "drafts.db")))
	require.NoError(t, err)
	defer store.Close()
	storeContract(t, store)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(WithDSN(":memory:"))
	require.NoError(t, err)
	defer store.Close()
	storeContract(t, store)
}
