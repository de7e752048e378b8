package store_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cachi0001/Biz-sub011/pkg/store"
)

func TestMemory_GetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	// Returned slices are copies.
	v[0] = '9'
	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), again)

	assert.ErrorIs(t, m.Set(ctx, "", []byte("x")), store.ErrEmptyKey)
	_, err = m.Get(ctx, "")
	assert.ErrorIs(t, err, store.ErrEmptyKey)
}

func TestMemory_Update(t *testing.T) {
	t.Parallel()

	t.Run("creates missing key", func(t *testing.T) {
		t.Parallel()

		m := store.NewMemory()
		v, err := m.Update(context.Background(), "k", func(cur []byte, exists bool) ([]byte, error) {
			assert.False(t, exists)
			assert.Nil(t, cur)
			return []byte("init"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("init"), v)
	})

	t.Run("error leaves value untouched", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		m := store.NewMemory()
		require.NoError(t, m.Set(ctx, "k", []byte("keep")))

		boom := errors.New("boom")
		_, err := m.Update(ctx, "k", func([]byte, bool) ([]byte, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)

		v, err := m.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("keep"), v)
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		m := store.NewMemory()

		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := m.Update(ctx, "counter", func(cur []byte, exists bool) ([]byte, error) {
					n := 0
					if exists {
						n, _ = strconv.Atoi(string(cur))
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		v, err := m.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, "100", string(v))
	})
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := store.NewMemory()
	for _, k := range []string{"usage_tracking:a", "usage_tracking:b", "fetch:status:a"} {
		require.NoError(t, m.Set(ctx, k, []byte("x")))
	}

	require.NoError(t, m.Delete(ctx, "fetch:status:a", "never-set"))
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.DeletePrefix(ctx, "usage_tracking:"))
	assert.Equal(t, 0, m.Len())
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "usage_tracking:42", store.Key("usage_tracking", "42"))
	assert.Equal(t, "single", store.Key("single"))
}
