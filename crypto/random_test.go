package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/securestream/limits"
)

// constReader returns an endless stream of one byte value.
type constReader byte

func (c constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c)
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestCombinedSourceXorsBothInputs(t *testing.T) {
	src := NewCombinedSource(constReader(0xff), NewFortunaGenerator(make([]byte, 32)))

	out := make([]byte, 16)
	_, err := src.Read(out)
	require.NoError(t, err)

	want, _ := hex.DecodeString("4bd6ea599d47e3ee9dd911833c29ca22")
	for i := range want {
		want[i] ^= 0xff
	}
	assert.Equal(t, want, out)
}

func TestCombinedSourceZeroPlatformPassesGenerator(t *testing.T) {
	src := NewCombinedSource(constReader(0), NewFortunaGenerator(make([]byte, 32)))

	out := make([]byte, 16)
	_, err := src.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "4bd6ea599d47e3ee9dd911833c29ca22", hex.EncodeToString(out))
}

func TestCombinedSourceFillsLargeRequests(t *testing.T) {
	src := NewCombinedSource(nil, NewFortunaGenerator([]byte("large")))

	out := make([]byte, 2*limits.MaxRandomRequest+7)
	n, err := src.Read(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)
	assert.False(t, isZero(out[len(out)-32:]), "tail of a large request must be filled")
}

func TestCombinedSourcePlatformFailure(t *testing.T) {
	src := NewCombinedSource(failingReader{}, NewFortunaGenerator([]byte("fail")))

	_, err := src.Read(make([]byte, 8))
	assert.Error(t, err)
}

func TestCombinedSourceReseed(t *testing.T) {
	a := NewCombinedSource(constReader(0), NewFortunaGenerator(make([]byte, 32)))
	b := NewCombinedSource(constReader(0), NewFortunaGenerator(make([]byte, 32)))
	b.Reseed([]byte("more entropy"))

	outA := make([]byte, 16)
	outB := make([]byte, 16)
	_, _ = a.Read(outA)
	_, _ = b.Read(outB)
	assert.False(t, bytes.Equal(outA, outB))
}

func TestSeedProvider(t *testing.T) {
	seed, err := NewSeedProvider().Seed()
	require.NoError(t, err)
	assert.Len(t, seed, SeedLength)
	assert.False(t, isZero(seed))
}

func TestStaticSeedProviderReturnsCopies(t *testing.T) {
	p := StaticSeedProvider{1, 2, 3}
	s, _ := p.Seed()
	s[0] = 9
	again, _ := p.Seed()
	assert.Equal(t, []byte{1, 2, 3}, again)
}

func TestNewDefaultSource(t *testing.T) {
	src, err := NewDefaultSource(StaticSeedProvider(bytes.Repeat([]byte{7}, SeedLength)))
	require.NoError(t, err)

	out := make([]byte, 64)
	_, err = src.Read(out)
	require.NoError(t, err)
	assert.False(t, isZero(out))
}
