package hashing_test

import (
	"strings"
	"testing"

	"github.com/JanssenProject/jans-sub021/internal/hashing"
	"github.com/stretchr/testify/require"
)

func TestSHA256(t *testing.T) {
	h := hashing.SHA256{}
	// sha256("abc")
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h.Hash("abc"))
	require.Equal(t, h.Hash("token"), h.Hash("token"))
	require.NotEqual(t, h.Hash("token-a"), h.Hash("token-b"))
}

func TestKeyed(t *testing.T) {
	t.Run("differs per key", func(t *testing.T) {
		a, err := hashing.NewKeyed([]byte("key-a"))
		require.NoError(t, err)
		b, err := hashing.NewKeyed([]byte("key-b"))
		require.NoError(t, err)

		require.Equal(t, a.Hash("raw"), a.Hash("raw"))
		require.NotEqual(t, a.Hash("raw"), b.Hash("raw"))
		require.Len(t, a.Hash("raw"), 64)
	})

	t.Run("rejects bad keys", func(t *testing.T) {
		_, err := hashing.NewKeyed(nil)
		require.Error(t, err)
		_, err = hashing.NewKeyed([]byte(strings.Repeat("k", 65)))
		require.Error(t, err)
	})

	t.Run("new picks implementation", func(t *testing.T) {
		h, err := hashing.New("")
		require.NoError(t, err)
		require.IsType(t, hashing.SHA256{}, h)

		h, err = hashing.New("secret")
		require.NoError(t, err)
		require.IsType(t, &hashing.Keyed{}, h)
	})
}
