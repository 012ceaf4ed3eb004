package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/securestream/limits"
)

const (
	passwordSaltLength = limits.PasswordSaltLength
	passwordIVLength   = limits.StorageIVLength
	passwordHeader     = passwordSaltLength + 4 + passwordIVLength
)

// PasswordEncrypter protects local secrets under a user password. Blobs have
// the layout salt(16) || uint32_be(iterations) || iv(16) || ciphertext || mac.
// The iteration count is calibrated on first use and reused afterwards.
type PasswordEncrypter struct {
	random       io.Reader
	calibrator   *Calibrator
	targetMillis int
	newCipher    func() AuthenticatedCipher

	mu         sync.Mutex
	iterations int
}

// NewPasswordEncrypter returns an encrypter drawing salts and IVs from
// random. A non-positive targetMillis selects DefaultTargetMillis.
func NewPasswordEncrypter(random io.Reader, calibrator *Calibrator, targetMillis int) *PasswordEncrypter {
	if targetMillis <= 0 {
		targetMillis = DefaultTargetMillis
	}
	if calibrator == nil {
		calibrator = NewCalibrator(SystemClock{})
	}
	return &PasswordEncrypter{
		random:       random,
		calibrator:   calibrator,
		targetMillis: targetMillis,
		newCipher:    NewGCMCipher,
	}
}

// IterationCount returns the PBKDF2 iteration count for new blobs,
// calibrating for this machine on the first call.
func (p *PasswordEncrypter) IterationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.iterations == 0 {
		p.iterations = p.calibrator.ChooseIterationCount(p.targetMillis)
		logrus.WithFields(logrus.Fields{
			"function":      "IterationCount",
			"iterations":    p.iterations,
			"target_millis": p.targetMillis,
		}).Info("PBKDF2 calibrated")
	}
	return p.iterations
}

// SealingKey is a password-derived key together with the salt and iteration
// count it was derived with. Blobs sealed under one SealingKey share a salt
// and differ in their IVs.
type SealingKey struct {
	header []byte // salt || uint32_be(iterations)
	key    *SecretKey
}

// Erase wipes the derived key. Erasing twice is a no-op.
func (k *SealingKey) Erase() {
	if k != nil && !k.key.IsErased() {
		k.key.Erase()
	}
}

// opens reports whether blob was sealed with k's salt and iteration count.
func (k *SealingKey) opens(blob []byte) bool {
	return len(blob) >= passwordHeader && bytes.Equal(blob[:passwordSaltLength+4], k.header)
}

// NewSealingKey draws a fresh salt and derives a key from password with the
// calibrated iteration count.
func (p *PasswordEncrypter) NewSealingKey(password string) (*SealingKey, error) {
	iterations := p.IterationCount()
	iterField, err := safeIntToUint32(iterations)
	if err != nil {
		return nil, err
	}
	header := make([]byte, passwordSaltLength, passwordSaltLength+4)
	if _, err := io.ReadFull(p.random, header); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	header = binary.BigEndian.AppendUint32(header, iterField)
	return &SealingKey{
		header: header,
		key:    passwordKey(password, header[:passwordSaltLength], iterations),
	}, nil
}

// sealingKeyFor derives the key a blob was sealed with. It reports false for
// blobs too short to carry a header or with an out-of-range iteration count.
func sealingKeyFor(password string, blob []byte) (*SealingKey, bool) {
	if len(blob) < limits.PasswordBlobOverhead {
		return nil, false
	}
	iterations, err := safeIterationCount(binary.BigEndian.Uint32(blob[passwordSaltLength:]))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DecryptWithPassword",
			"error":    err.Error(),
		}).Debug("Rejected password blob")
		return nil, false
	}
	header := append([]byte(nil), blob[:passwordSaltLength+4]...)
	return &SealingKey{
		header: header,
		key:    passwordKey(password, header[:passwordSaltLength], iterations),
	}, true
}

// Seal encrypts plaintext under k with a fresh IV.
func (p *PasswordEncrypter) Seal(k *SealingKey, plaintext []byte) ([]byte, error) {
	blob := make([]byte, passwordHeader, passwordHeader+len(plaintext)+limits.MacLength)
	copy(blob, k.header)
	iv := blob[passwordSaltLength+4 : passwordHeader]
	if _, err := io.ReadFull(p.random, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	c := p.newCipher()
	if err := c.Init(true, k.key, iv); err != nil {
		return nil, err
	}
	ciphertext, err := c.Process(plaintext)
	if err != nil {
		return nil, err
	}
	return append(blob, ciphertext...), nil
}

// Open decrypts a blob sealed under k. It reports false when the blob was
// sealed with another salt or iteration count, or fails authentication.
func (p *PasswordEncrypter) Open(k *SealingKey, blob []byte) ([]byte, bool) {
	if len(blob) < limits.PasswordBlobOverhead || !k.opens(blob) {
		return nil, false
	}
	c := p.newCipher()
	if err := c.Init(false, k.key, blob[passwordSaltLength+4:passwordHeader]); err != nil {
		return nil, false
	}
	plaintext, err := c.Process(blob[passwordHeader:])
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

// EncryptWithPassword encrypts plaintext under a key derived from password
// with a fresh salt.
func (p *PasswordEncrypter) EncryptWithPassword(plaintext []byte, password string) ([]byte, error) {
	k, err := p.NewSealingKey(password)
	if err != nil {
		return nil, err
	}
	defer k.Erase()

	blob, err := p.Seal(k, plaintext)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "EncryptWithPassword",
		"size":     len(plaintext),
	}).Debug("Encrypted with password")
	return blob, nil
}

// DecryptWithPassword reverses EncryptWithPassword. It reports false for a
// wrong password and for any malformed blob; it never panics on garbage.
func (p *PasswordEncrypter) DecryptWithPassword(blob []byte, password string) ([]byte, bool) {
	k, ok := sealingKeyFor(password, blob)
	if !ok {
		return nil, false
	}
	defer k.Erase()
	return p.Open(k, blob)
}

func passwordKey(password string, salt []byte, iterations int) *SecretKey {
	utf8 := []byte(password)
	defer ZeroBytes(utf8)
	return adoptSecretKey(pbkdf2.Key(utf8, salt, iterations, SecretKeyLength, sha256.New))
}
