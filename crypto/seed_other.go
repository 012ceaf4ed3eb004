//go:build !linux

package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

type platformSeedProvider struct{}

func (platformSeedProvider) Seed() ([]byte, error) {
	seed := make([]byte, SeedLength)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("failed to read platform entropy: %w", err)
	}
	return seed, nil
}
