package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/opd-ai/securestream/limits"
)

const (
	fortunaBlockLength = aes.BlockSize
	fortunaKeyLength   = 32
)

// ErrFortunaSelfTest is returned when the generator does not reproduce its
// known-answer outputs.
var ErrFortunaSelfTest = errors.New("fortuna generator self-test failed")

// FortunaGenerator is the generator half of the Fortuna design (Ferguson and
// Schneier): AES-256 in counter mode, rekeyed after every request.
//
// The 128-bit counter is little-endian. Reseeding replaces the key with
// SHA-256(SHA-256(key || seed)) and increments the counter; the counter being
// non-zero marks the generator as seeded.
type FortunaGenerator struct {
	mu      sync.Mutex
	key     [fortunaKeyLength]byte
	counter [fortunaBlockLength]byte
}

// NewFortunaGenerator returns a generator reseeded once with seed.
func NewFortunaGenerator(seed []byte) *FortunaGenerator {
	g := &FortunaGenerator{}
	g.Reseed(seed)
	return g
}

// Reseed mixes seed into the generator key.
func (g *FortunaGenerator) Reseed(seed []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := sha256.New()
	h.Write(g.key[:])
	h.Write(seed)
	first := h.Sum(nil)
	second := sha256.Sum256(first)
	copy(g.key[:], second[:])
	ZeroBytes(first)
	ZeroBytes(second[:])

	g.incrementCounter()
}

// Read fills p with generator output. A single call produces at most
// limits.MaxRandomRequest bytes; callers wanting more should use io.ReadFull.
// After producing output the generator derives a fresh key from two further
// counter blocks, so earlier output cannot be recomputed from current state.
func (g *FortunaGenerator) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := len(p)
	if n > limits.MaxRandomRequest {
		n = limits.MaxRandomRequest
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	block, err := aes.NewCipher(g.key[:])
	if err != nil {
		return 0, err
	}

	var out [fortunaBlockLength]byte
	for written := 0; written < n; written += fortunaBlockLength {
		block.Encrypt(out[:], g.counter[:])
		copy(p[written:n], out[:])
		g.incrementCounter()
	}

	var newKey [fortunaKeyLength]byte
	block.Encrypt(newKey[:fortunaBlockLength], g.counter[:])
	g.incrementCounter()
	block.Encrypt(newKey[fortunaBlockLength:], g.counter[:])
	g.incrementCounter()
	g.key = newKey

	ZeroBytes(newKey[:])
	ZeroBytes(out[:])
	return n, nil
}

// incrementCounter panics when the counter wraps after 2^128 blocks.
func (g *FortunaGenerator) incrementCounter() {
	for i := range g.counter {
		g.counter[i]++
		if g.counter[i] != 0 {
			return
		}
	}
	panic("fortuna: counter exhausted")
}

// fortunaVectors are the expected outputs for an all-zero 32-byte seed: two
// 16-byte reads, then a reseed with the same seed and a third read.
var fortunaVectors = [3]string{
	"4bd6ea599d47e3ee9dd911833c29ca22",
	"10984d576e6850e505ca9f42a9bfd88a",
	"1e12da166bd86dcecde50a8296018de2",
}

// FortunaSelfTest checks the generator against its known-answer vectors.
func FortunaSelfTest() error {
	seed := make([]byte, fortunaKeyLength)
	g := NewFortunaGenerator(seed)

	for i, want := range fortunaVectors {
		if i == 2 {
			g.Reseed(seed)
		}
		expected, err := hex.DecodeString(want)
		if err != nil {
			return err
		}
		got := make([]byte, fortunaBlockLength)
		if _, err := g.Read(got); err != nil {
			return err
		}
		if !bytes.Equal(got, expected) {
			return ErrFortunaSelfTest
		}
	}
	return nil
}
