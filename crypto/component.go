package crypto

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Component bundles the randomness source with every operation that needs
// it. Callers share one Component per process.
type Component struct {
	random    *CombinedSource
	passwords *PasswordEncrypter
	clock     Clock
}

// ComponentOption customises a Component.
type ComponentOption func(*Component)

// WithClock sets the clock used for PBKDF2 calibration.
func WithClock(clock Clock) ComponentOption {
	return func(c *Component) { c.clock = clock }
}

// WithPasswordEncrypter replaces the default password encrypter.
func WithPasswordEncrypter(p *PasswordEncrypter) ComponentOption {
	return func(c *Component) { c.passwords = p }
}

// NewComponent runs the Fortuna self-test, seeds the generator from seeds
// and returns a ready Component. targetMillis sets the PBKDF2 cost.
func NewComponent(seeds SeedProvider, targetMillis int, opts ...ComponentOption) (*Component, error) {
	random, err := NewDefaultSource(seeds)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewComponent",
			"error":    err.Error(),
		}).Error("Random source failed to start")
		return nil, err
	}

	c := &Component{random: random, clock: SystemClock{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.passwords == nil {
		c.passwords = NewPasswordEncrypter(random, NewCalibrator(c.clock), targetMillis)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "NewComponent",
		"target_millis": c.passwords.targetMillis,
	}).Info("Crypto component ready")
	return c, nil
}

// SecureRandom returns the process-wide combined random source.
func (c *Component) SecureRandom() io.Reader { return c.random }

// Reseed mixes extra entropy into the generator.
func (c *Component) Reseed(seed []byte) { c.random.Reseed(seed) }

func (c *Component) GenerateSecretKey() (*SecretKey, error) {
	return GenerateSecretKey(c.random)
}

func (c *Component) GenerateAgreementKeyPair() (*KeyPair, error) {
	return GenerateAgreementKeyPair(c.random)
}

func (c *Component) GenerateSignatureKeyPair() (*KeyPair, error) {
	return GenerateSignatureKeyPair(c.random)
}

func (c *Component) AgreementKeyParser() KeyParser { return AgreementKeyParser{} }

func (c *Component) SignatureKeyParser() KeyParser { return SignatureKeyParser{} }

// GenerateInvitationCode returns a uniformly random CodeBits-bit code.
func (c *Component) GenerateInvitationCode() (uint32, error) {
	var b [(CodeBits + 7) / 8]byte
	if _, err := io.ReadFull(c.random, b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate invitation code: %w", err)
	}
	return readCode(b[:]), nil
}

// DeriveMasterSecret see the package-level DeriveMasterSecret.
func (c *Component) DeriveMasterSecret(theirPublicKey []byte, ours *KeyPair, alice bool) (*SecretKey, error) {
	return DeriveMasterSecret(theirPublicKey, ours, alice)
}

// NewFrameCipher returns a fresh cipher for one stream.
func (c *Component) NewFrameCipher() AuthenticatedCipher { return NewGCMCipher() }

func (c *Component) EncryptWithPassword(plaintext []byte, password string) ([]byte, error) {
	return c.passwords.EncryptWithPassword(plaintext, password)
}

func (c *Component) DecryptWithPassword(blob []byte, password string) ([]byte, bool) {
	return c.passwords.DecryptWithPassword(blob, password)
}

// ChooseIterationCount runs PBKDF2 calibration on its own.
func (c *Component) ChooseIterationCount(targetMillis int) int {
	return c.passwords.calibrator.ChooseIterationCount(targetMillis)
}

// PasswordEncrypter exposes the encrypter used by the component, for
// building an EncryptedKeyStore.
func (c *Component) PasswordEncrypter() *PasswordEncrypter { return c.passwords }
