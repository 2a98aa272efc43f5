package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	s := NewSealer(identity)

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "hunter2")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)
}

func TestSealerOpenPassesPlaintextThrough(t *testing.T) {
	opened, err := NewSealer(nil).Open("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", opened)
}

func TestSealerWithoutIdentity(t *testing.T) {
	_, err := NewSealer(nil).Seal("x")
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = NewSealer(nil).Open("ENC[age:AAAA]")
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestLoadSealer(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "age.key")
	require.NoError(t, os.WriteFile(path, []byte("# test key\n"+identity.String()+"\n"), 0o600))

	s, err := LoadSealer(path)
	require.NoError(t, err)

	sealed, err := NewSealer(identity).Seal("pw")
	require.NoError(t, err)
	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "pw", opened)

	_, err = LoadSealer(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
