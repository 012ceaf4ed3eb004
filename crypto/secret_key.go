package crypto

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/opd-ai/securestream/limits"
)

// SecretKeyLength is the size of every symmetric key in bytes.
const SecretKeyLength = limits.SecretKeyLength

var (
	// ErrSecretKeyErased is the panic value raised when an erased key is used.
	ErrSecretKeyErased = errors.New("secret key has been erased")

	// ErrInvalidKeyLength indicates key material of the wrong size.
	ErrInvalidKeyLength = errors.New("invalid key length")
)

// SecretKey owns 32 bytes of symmetric key material.
//
// The bytes are never aliased: NewSecretKey, Bytes and Copy all copy. Erase
// zeroes the material exactly once; reading an erased key, or erasing it a
// second time, is a programming error and panics with ErrSecretKeyErased.
// A key that is dropped without being erased is zeroed by its finalizer.
type SecretKey struct {
	mu     sync.Mutex
	key    []byte
	erased bool
}

// NewSecretKey copies b into a new SecretKey. b is left untouched; callers
// that own b should wipe it themselves.
func NewSecretKey(b []byte) (*SecretKey, error) {
	if len(b) != SecretKeyLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeyLength, len(b), SecretKeyLength)
	}
	key := make([]byte, SecretKeyLength)
	copy(key, b)
	return adoptSecretKey(key), nil
}

// GenerateSecretKey reads a fresh random key from r.
func GenerateSecretKey(r io.Reader) (*SecretKey, error) {
	key := make([]byte, SecretKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		ZeroBytes(key)
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	return adoptSecretKey(key), nil
}

// adoptSecretKey takes ownership of key without copying it.
func adoptSecretKey(key []byte) *SecretKey {
	k := &SecretKey{key: key}
	lockMemory(k.key)
	runtime.SetFinalizer(k, finalizeSecretKey)
	return k
}

func finalizeSecretKey(k *SecretKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.erased {
		ZeroBytes(k.key)
		unlockMemory(k.key)
		k.erased = true
	}
}

// Bytes returns a copy of the key material.
func (k *SecretKey) Bytes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mustBeLive()
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// Copy returns an independent SecretKey holding the same material.
func (k *SecretKey) Copy() *SecretKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mustBeLive()
	key := make([]byte, len(k.key))
	copy(key, k.key)
	return adoptSecretKey(key)
}

// Equal reports in constant time whether both keys hold the same material.
func (k *SecretKey) Equal(other *SecretKey) bool {
	if other == nil {
		return false
	}
	theirs := other.Bytes()
	defer ZeroBytes(theirs)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.mustBeLive()
	return subtle.ConstantTimeCompare(k.key, theirs) == 1
}

// Erase zeroes the key material. It must be called exactly once.
func (k *SecretKey) Erase() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mustBeLive()
	ZeroBytes(k.key)
	unlockMemory(k.key)
	k.erased = true
	runtime.SetFinalizer(k, nil)
}

// IsErased reports whether Erase has been called.
func (k *SecretKey) IsErased() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.erased
}

// use runs fn with the live key material while holding the lock. fn must not
// retain the slice.
func (k *SecretKey) use(fn func(key []byte) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mustBeLive()
	return fn(k.key)
}

func (k *SecretKey) mustBeLive() {
	if k.erased {
		panic(ErrSecretKeyErased)
	}
}

// String never prints key material.
func (k *SecretKey) String() string {
	if k.IsErased() {
		return "SecretKey(erased)"
	}
	return "SecretKey(32 bytes)"
}
