package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewBadgerStore(db, "training_connect", arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStoreKeepsPushOrder(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()

	// more than one sequence lease, and enough to break lexical ordering without padding
	for i := 0; i < 120; i++ {
		ok, err := store.Push(ctx, fmt.Sprintf("batch-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	length, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), length)

	for i := 0; i < 120; i++ {
		payload, ok, err := store.Pop(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("batch-%d", i), payload)
	}

	_, ok, err := store.Pop(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerStoreQueuesAreIsolated(t *testing.T) {
	store := newTestBadgerStore(t)
	other, err := NewBadgerStore(store.db, "other_queue", arbor.NewLogger())
	require.NoError(t, err)
	defer other.Close()

	ctx := context.Background()
	_, err = other.Push(ctx, "elsewhere")
	require.NoError(t, err)

	_, ok, err := store.Pop(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}
