//go:build linux

package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// platformSeedProvider reads the kernel pool through getrandom(2), which
// blocks until the pool is initialised and needs no file descriptor.
type platformSeedProvider struct{}

func (platformSeedProvider) Seed() ([]byte, error) {
	seed := make([]byte, SeedLength)
	for off := 0; off < len(seed); {
		n, err := unix.Getrandom(seed[off:], 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			ZeroBytes(seed)
			return nil, fmt.Errorf("getrandom failed: %w", err)
		}
		off += n
	}
	return seed, nil
}
