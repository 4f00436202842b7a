// Package storetest provides a behavioural suite shared by every
// tokenstore.Store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/beezwax/fmrest-go/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the Store contract. Keys are prefixed with the
// test name so suites can share a backend.
func Run(t *testing.T, s tokenstore.Store) {
	t.Helper()
	ctx := context.Background()
	prefix := t.Name() + ":"

	t.Run("missing key is absent", func(t *testing.T) {
		token, found, err := s.Load(ctx, prefix+"missing")
		require.NoError(t, err)
		require.False(t, found)
		require.Empty(t, token)
	})

	t.Run("store then load", func(t *testing.T) {
		key := prefix + "host:db:alice"
		require.NoError(t, s.Store(ctx, key, "TOKEN-1"))

		token, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "TOKEN-1", token)
	})

	t.Run("store overwrites", func(t *testing.T) {
		key := prefix + "host:db:bob"
		require.NoError(t, s.Store(ctx, key, "old"))
		require.NoError(t, s.Store(ctx, key, "new"))

		token, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "new", token)
	})

	t.Run("delete removes and is idempotent", func(t *testing.T) {
		key := prefix + "host:db:carol"
		require.NoError(t, s.Store(ctx, key, "TOKEN"))
		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, key))

		_, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("keys are independent", func(t *testing.T) {
		a, b := prefix+"host:db:a", prefix+"host:db:b"
		require.NoError(t, s.Store(ctx, a, "A"))
		require.NoError(t, s.Store(ctx, b, "B"))
		require.NoError(t, s.Delete(ctx, a))

		token, found, err := s.Load(ctx, b)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "B", token)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("%shost:db:user%d", prefix, i)
				errs <- s.Store(ctx, key, key)
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		for i := range 8 {
			key := fmt.Sprintf("%shost:db:user%d", prefix, i)
			token, found, err := s.Load(ctx, key)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, key, token)
		}
	})
}
