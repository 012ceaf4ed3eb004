package crypto

// SeedLength is the number of bytes a SeedProvider returns.
const SeedLength = 32

// SeedProvider supplies entropy for reseeding the generator.
type SeedProvider interface {
	Seed() ([]byte, error)
}

// NewSeedProvider returns the provider for the current platform.
func NewSeedProvider() SeedProvider {
	return platformSeedProvider{}
}

// StaticSeedProvider always returns the same seed. Only for tests.
type StaticSeedProvider []byte

func (s StaticSeedProvider) Seed() ([]byte, error) {
	out := make([]byte, len(s))
	copy(out, s)
	return out, nil
}
