package crypto

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/securestream/limits"
)

// fastEncrypter calibrates to nine iterations without timing real work.
func fastEncrypter() *PasswordEncrypter {
	clock := NewManualClock(time.Unix(0, 0))
	calibrator := NewCalibratorWithWork(clock, linearWork(clock, time.Millisecond, time.Millisecond))
	return NewPasswordEncrypter(testRandom("password"), calibrator, 10)
}

func TestPasswordRoundTrip(t *testing.T) {
	p := fastEncrypter()
	plaintext := []byte("long-term identity key")

	blob, err := p.EncryptWithPassword(plaintext, "correct horse")
	require.NoError(t, err)
	assert.Len(t, blob, limits.PasswordBlobOverhead+len(plaintext))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(blob[16:20]))

	got, ok := p.DecryptWithPassword(blob, "correct horse")
	require.True(t, ok)
	assert.Equal(t, plaintext, got)
}

func TestPasswordEmptyPlaintext(t *testing.T) {
	p := fastEncrypter()
	blob, err := p.EncryptWithPassword(nil, "pw")
	require.NoError(t, err)
	assert.Len(t, blob, limits.PasswordBlobOverhead)

	got, ok := p.DecryptWithPassword(blob, "pw")
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestPasswordWrongPassword(t *testing.T) {
	p := fastEncrypter()
	blob, err := p.EncryptWithPassword([]byte("secret"), "right")
	require.NoError(t, err)

	got, ok := p.DecryptWithPassword(blob, "wrong")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPasswordUnicode(t *testing.T) {
	p := fastEncrypter()
	blob, err := p.EncryptWithPassword([]byte("x"), "pässwörd ✓")
	require.NoError(t, err)

	_, ok := p.DecryptWithPassword(blob, "passwort ✓")
	assert.False(t, ok)
	_, ok = p.DecryptWithPassword(blob, "pässwörd ✓")
	assert.True(t, ok)
}

func TestPasswordSaltsAreFresh(t *testing.T) {
	p := fastEncrypter()
	a, err := p.EncryptWithPassword([]byte("same"), "pw")
	require.NoError(t, err)
	b, err := p.EncryptWithPassword([]byte("same"), "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a[:16], b[:16], "salt reused")
	assert.NotEqual(t, a[20:36], b[20:36], "IV reused")
}

func TestPasswordRejectsMalformedBlobs(t *testing.T) {
	p := fastEncrypter()
	blob, err := p.EncryptWithPassword([]byte("payload"), "pw")
	require.NoError(t, err)

	withIterations := func(n uint32) []byte {
		b := append([]byte(nil), blob...)
		binary.BigEndian.PutUint32(b[16:20], n)
		return b
	}
	flipped := append([]byte(nil), blob...)
	flipped[len(flipped)-1] ^= 1
	flippedSalt := append([]byte(nil), blob...)
	flippedSalt[0] ^= 1

	tests := []struct {
		name string
		blob []byte
	}{
		{"nil", nil},
		{"short", blob[:limits.PasswordBlobOverhead-1]},
		{"zero iterations", withIterations(0)},
		{"iterations above int32", withIterations(math.MaxInt32 + 1)},
		{"max iterations", withIterations(math.MaxUint32)},
		{"tampered mac", flipped},
		{"tampered salt", flippedSalt},
		{"other iteration count", withIterations(10)},
		{"zeros", bytes.Repeat([]byte{0}, 80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, ok := p.DecryptWithPassword(tt.blob, "pw")
				assert.False(t, ok)
			})
		})
	}
}

func TestEncryptWithPasswordCalibratesOnce(t *testing.T) {
	var samples int
	p := countingEncrypter(&samples)
	for i := 0; i < 3; i++ {
		blob, err := p.EncryptWithPassword([]byte("x"), "pw")
		require.NoError(t, err)
		assert.Equal(t, uint32(9), binary.BigEndian.Uint32(blob[16:20]))
	}
	assert.Equal(t, 2*calibrationSamples, samples)
	assert.Equal(t, 9, p.IterationCount())
	assert.Equal(t, 2*calibrationSamples, samples)
}

func TestSealingKey(t *testing.T) {
	p := fastEncrypter()
	k, err := p.NewSealingKey("pw")
	require.NoError(t, err)
	defer k.Erase()

	a, err := p.Seal(k, []byte("first"))
	require.NoError(t, err)
	b, err := p.Seal(k, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, a[:20], b[:20])
	assert.NotEqual(t, a[20:36], b[20:36])

	got, ok := p.Open(k, b)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)
	got, ok = p.DecryptWithPassword(a, "pw")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got)

	other, err := p.EncryptWithPassword([]byte("other salt"), "pw")
	require.NoError(t, err)
	_, ok = p.Open(k, other)
	assert.False(t, ok)
	_, ok = p.Open(k, a[:limits.PasswordBlobOverhead-1])
	assert.False(t, ok)

	k.Erase()
	assert.NotPanics(t, k.Erase)
}
