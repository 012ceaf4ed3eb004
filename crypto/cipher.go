package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/opd-ai/securestream/limits"
)

var (
	// ErrAuthenticationFailed is returned when a ciphertext or its IV has
	// been modified, or the wrong key was used.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrCipherNotInitialised is returned by Process before Init.
	ErrCipherNotInitialised = errors.New("cipher not initialised")
)

// AuthenticatedCipher is a single-shot AEAD: each Init is followed by one
// Process call covering the whole message.
type AuthenticatedCipher interface {
	Init(encrypt bool, key *SecretKey, iv []byte) error
	Process(input []byte) ([]byte, error)
	MacBytes() int
}

// gcmCipher is AES-256-GCM with the IV used both as the nonce and as
// additional authenticated data.
type gcmCipher struct {
	encrypt bool
	aead    cipher.AEAD
	iv      []byte
}

// NewGCMCipher returns an uninitialised AES-256-GCM cipher.
func NewGCMCipher() AuthenticatedCipher {
	return &gcmCipher{}
}

// Init prepares the cipher for one message. The nonce size follows len(iv),
// so the same type serves 12-byte frame IVs and 16-byte storage IVs.
func (c *gcmCipher) Init(encrypt bool, key *SecretKey, iv []byte) error {
	if len(iv) == 0 {
		return fmt.Errorf("%w: empty IV", ErrInvalidArgument)
	}
	var block cipher.Block
	err := key.use(func(k []byte) error {
		var err error
		block, err = aes.NewCipher(k)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	c.encrypt = encrypt
	c.aead = aead
	c.iv = append(c.iv[:0], iv...)
	return nil
}

// Process encrypts or decrypts input. The cipher must be initialised again
// before the next message.
func (c *gcmCipher) Process(input []byte) ([]byte, error) {
	if c.aead == nil {
		return nil, ErrCipherNotInitialised
	}
	aead, iv := c.aead, c.iv
	c.aead = nil

	if c.encrypt {
		return aead.Seal(nil, iv, input, iv), nil
	}
	if len(input) < aead.Overhead() {
		return nil, fmt.Errorf("%w: input shorter than MAC", ErrAuthenticationFailed)
	}
	plaintext, err := aead.Open(nil, iv, input, iv)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func (c *gcmCipher) MacBytes() int {
	return limits.MacLength
}
