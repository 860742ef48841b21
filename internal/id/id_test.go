package id

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDShape(t *testing.T) {
	g := New()
	got, err := g.NewID()
	require.NoError(t, err)
	assert.Len(t, got, 24)
	for _, c := range got {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'), "unexpected char %q", c)
	}
}

func TestNewIDDeterministicWithSeededInputs(t *testing.T) {
	entropy := bytes.Repeat([]byte{0xAB}, 8)
	g := New(
		WithRandomReader(bytes.NewReader(entropy)),
		WithClock(func() int64 { return 0x01020304 }),
	)
	got, err := g.NewID()
	require.NoError(t, err)
	assert.Equal(t, "01020304abababababababab", got)
}

func TestNewIDVariesAcrossCalls(t *testing.T) {
	g := New()
	first, err := g.NewID()
	require.NoError(t, err)
	second, err := g.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
