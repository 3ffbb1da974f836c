package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomBytes(t *testing.T) {
	a := RandomBytes(32)
	b := RandomBytes(32)
	require.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Empty(t, RandomBytes(0))
}

func TestWipe(t *testing.T) {
	key := []byte("derived-key")
	Wipe(key)
	assert.Equal(t, make([]byte, len("derived-key")), key)

	assert.NotPanics(t, func() { Wipe(nil) })
}
