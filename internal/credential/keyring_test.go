package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	s := NewStoreWithKeyring(ring)

	_, err := s.Get("gemini-api-key")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set("gemini-api-key", "first"))
	require.NoError(t, s.Set("gemini-api-key", "second"))

	got, err := s.Get("gemini-api-key")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	item, err := ring.Get("gemini-api-key")
	require.NoError(t, err)
	assert.Equal(t, "cyberguard gemini-api-key", item.Label)

	require.NoError(t, s.Delete("gemini-api-key"))
	_, err = s.Get("gemini-api-key")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete("gemini-api-key"))
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	s := NewStoreWithKeyring(keyring.NewArrayKeyring(nil))
	assert.Error(t, s.Set("", "value"))
}

func TestStoreOpenFailure(t *testing.T) {
	boom := errors.New("no backend")
	s := &Store{open: func() (keyring.Keyring, error) { return nil, boom }}

	_, err := s.Get("k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Set("k", "v"), boom)
	assert.ErrorIs(t, s.Delete("k"), boom)
}
