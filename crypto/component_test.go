package crypto

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComponent(t *testing.T) *Component {
	t.Helper()
	c, err := NewComponent(
		StaticSeedProvider(bytes.Repeat([]byte{3}, SeedLength)),
		0,
		WithPasswordEncrypter(fastEncrypter()),
	)
	require.NoError(t, err)
	return c
}

func TestComponentKeyGeneration(t *testing.T) {
	c := newTestComponent(t)

	k1, err := c.GenerateSecretKey()
	require.NoError(t, err)
	k2, err := c.GenerateSecretKey()
	require.NoError(t, err)
	assert.False(t, k1.Equal(k2))

	agreement, err := c.GenerateAgreementKeyPair()
	require.NoError(t, err)
	assert.Equal(t, KeyTypeAgreement, agreement.Type())

	signature, err := c.GenerateSignatureKeyPair()
	require.NoError(t, err)
	assert.Equal(t, KeyTypeSignature, signature.Type())

	_, err = c.AgreementKeyParser().ParsePublicKey(agreement.Public.Encoded())
	assert.NoError(t, err)
	_, err = c.SignatureKeyParser().ParsePublicKey(signature.Public.Encoded())
	assert.NoError(t, err)
}

func TestComponentInvitationCode(t *testing.T) {
	c := newTestComponent(t)
	for i := 0; i < 100; i++ {
		code, err := c.GenerateInvitationCode()
		require.NoError(t, err)
		assert.Less(t, code, uint32(1)<<CodeBits)
	}
}

func TestComponentPasswords(t *testing.T) {
	c := newTestComponent(t)

	blob, err := c.EncryptWithPassword([]byte("x"), "pw")
	require.NoError(t, err)
	got, ok := c.DecryptWithPassword(blob, "pw")
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), got)
	assert.Equal(t, 9, c.ChooseIterationCount(10))
}

func TestComponentUsesClockForCalibration(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	c, err := NewComponent(StaticSeedProvider(make([]byte, SeedLength)), 100, WithClock(clock))
	require.NoError(t, err)
	assert.Same(t, clock, c.clock)
	assert.Equal(t, 100, c.PasswordEncrypter().targetMillis)
}

func TestComponentFrameCipher(t *testing.T) {
	c := newTestComponent(t)
	assert.Equal(t, 16, c.NewFrameCipher().MacBytes())
}
