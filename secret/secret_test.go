package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	sealed, err := Seal("hunter2", "psk")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, Prefix))
	assert.NotContains(t, sealed, "hunter2")

	plain, err := Open(sealed, "psk")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	_, err = Open(sealed, "other")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Open(sealed, "")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestOpenPlain(t *testing.T) {
	plain, err := Open("not-sealed", "")
	require.NoError(t, err)
	assert.Equal(t, "not-sealed", plain)
}

func TestOpenMalformed(t *testing.T) {
	_, err := Open(Prefix+"!!!", "psk")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Open(Prefix+"AAAA", "psk")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSealNeedsKey(t *testing.T) {
	_, err := Seal("x", "")
	assert.ErrorIs(t, err, ErrNoKey)
}
