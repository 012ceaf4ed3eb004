package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretKeyCopiesInput(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5a}, SecretKeyLength)
	key, err := NewSecretKey(raw)
	require.NoError(t, err)
	defer key.Erase()

	raw[0] = 0
	assert.Equal(t, byte(0x5a), key.Bytes()[0], "key must not alias its input")

	out := key.Bytes()
	out[1] = 0
	assert.Equal(t, byte(0x5a), key.Bytes()[1], "Bytes must return a copy")
}

func TestNewSecretKeyRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := NewSecretKey(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidKeyLength, "length %d", n)
	}
}

func TestSecretKeyCopyIsIndependent(t *testing.T) {
	key, err := GenerateSecretKey(NewFortunaGenerator([]byte("copy")))
	require.NoError(t, err)

	dup := key.Copy()
	assert.True(t, key.Equal(dup))

	key.Erase()
	assert.False(t, dup.IsErased())
	assert.Len(t, dup.Bytes(), SecretKeyLength)
	dup.Erase()
}

func TestSecretKeyEraseZeroes(t *testing.T) {
	key, err := NewSecretKey(bytes.Repeat([]byte{0xff}, SecretKeyLength))
	require.NoError(t, err)

	backing := key.key
	key.Erase()

	assert.True(t, key.IsErased())
	assert.True(t, isZero(backing), "erase must zero the backing array")
	assert.Equal(t, "SecretKey(erased)", key.String())
}

func TestSecretKeyUseAfterErasePanics(t *testing.T) {
	key, err := NewSecretKey(bytes.Repeat([]byte{1}, SecretKeyLength))
	require.NoError(t, err)
	key.Erase()

	assert.PanicsWithValue(t, ErrSecretKeyErased, func() { key.Bytes() })
	assert.PanicsWithValue(t, ErrSecretKeyErased, func() { key.Copy() })
	assert.PanicsWithValue(t, ErrSecretKeyErased, func() { key.Erase() })
	assert.PanicsWithValue(t, ErrSecretKeyErased, func() {
		_, _ = DeriveTagKey(key, true)
	})
}

func TestSecretKeyEqual(t *testing.T) {
	a, err := NewSecretKey(bytes.Repeat([]byte{1}, SecretKeyLength))
	require.NoError(t, err)
	b, err := NewSecretKey(bytes.Repeat([]byte{2}, SecretKeyLength))
	require.NoError(t, err)

	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
