// Package storagetest holds the conformance suite every storage.Store
// implementation must pass.
package storagetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/oaclient/storage"
)

// Run exercises the common storage.Store contract against s. The store must
// start empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, s.Set(t.Context(), "token", []byte("T1")))
		got, err := s.Get(t.Context(), "token")
		require.NoError(t, err)
		assert.Equal(t, []byte("T1"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(t.Context(), "no-such-key")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(t.Context(), "userInfo", []byte(`{"realname":"Alice"}`)))
		require.NoError(t, s.Set(t.Context(), "userInfo", []byte(`{"realname":"Bob"}`)))
		got, err := s.Get(t.Context(), "userInfo")
		require.NoError(t, err)
		assert.JSONEq(t, `{"realname":"Bob"}`, string(got))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Set(t.Context(), "doomed", []byte("x")))
		require.NoError(t, s.Delete(t.Context(), "doomed"))
		_, err := s.Get(t.Context(), "doomed")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		assert.NoError(t, s.Delete(t.Context(), "never-existed"))
	})

	t.Run("ReturnedValueIsACopy", func(t *testing.T) {
		require.NoError(t, s.Set(t.Context(), "copy", []byte("abc")))
		got, err := s.Get(t.Context(), "copy")
		require.NoError(t, err)
		got[0] = 'X'
		again, err := s.Get(t.Context(), "copy")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})
}
