package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/securestream/limits"
)

// RandomSource is a reseedable source of random bytes.
type RandomSource interface {
	io.Reader
	Reseed(seed []byte)
}

// CombinedSource XORs the output of a platform reader with the output of a
// reseedable generator, so the result is unpredictable as long as either
// input is.
type CombinedSource struct {
	mu        sync.Mutex
	platform  io.Reader
	generator RandomSource
}

// NewCombinedSource builds a CombinedSource. A nil platform reader means
// crypto/rand.
func NewCombinedSource(platform io.Reader, generator RandomSource) *CombinedSource {
	if platform == nil {
		platform = rand.Reader
	}
	return &CombinedSource{platform: platform, generator: generator}
}

// NewDefaultSource seeds a Fortuna generator from seeds and combines it with
// crypto/rand. The generator self-test runs first.
func NewDefaultSource(seeds SeedProvider) (*CombinedSource, error) {
	if err := FortunaSelfTest(); err != nil {
		return nil, err
	}
	seed, err := seeds.Seed()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain seed: %w", err)
	}
	defer ZeroBytes(seed)
	return NewCombinedSource(rand.Reader, NewFortunaGenerator(seed)), nil
}

// Read fills p entirely or returns an error.
func (c *CombinedSource) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scratch := make([]byte, min(len(p), limits.MaxRandomRequest))
	defer ZeroBytes(scratch)

	for off := 0; off < len(p); {
		chunk := min(len(p)-off, limits.MaxRandomRequest)
		dst := p[off : off+chunk]
		if _, err := io.ReadFull(c.generator, dst); err != nil {
			return off, fmt.Errorf("generator read failed: %w", err)
		}
		buf := scratch[:chunk]
		if _, err := io.ReadFull(c.platform, buf); err != nil {
			return off, fmt.Errorf("platform read failed: %w", err)
		}
		for i := range dst {
			dst[i] ^= buf[i]
		}
		off += chunk
	}
	return len(p), nil
}

// Reseed forwards seed to the generator. The platform reader is never seeded.
func (c *CombinedSource) Reseed(seed []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generator.Reseed(seed)
}
