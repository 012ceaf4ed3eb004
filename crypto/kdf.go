package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/securestream/limits"
)

// CodeBits is the size of confirmation and invitation codes.
const CodeBits = 24

var (
	// ErrInvalidArgument is the parent of every argument validation error in
	// this package. Such errors indicate a caller bug and are never corrected.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMACTooShort means the PRF output cannot fill a key.
	ErrMACTooShort = errors.New("PRF output shorter than key length")

	// ErrKDFInputTooLong is returned by ConcatenationKDF for inputs that
	// cannot be length-prefixed with a single byte.
	ErrKDFInputTooLong = limits.ErrKDFInputTooLong
)

// Derivation labels. Every label carries its terminating NUL so that no
// label is a prefix of another once the context bytes follow.
var (
	labelMaster = []byte("MASTER\x00")
	labelSalt   = []byte("SALT\x00")
	labelFirst  = []byte("FIRST\x00")
	labelRotate = []byte("ROTATE\x00")
	labelCode   = []byte("CODE\x00")
	labelNonce  = []byte("NONCE\x00")
	labelATag   = []byte("A_TAG\x00")
	labelBTag   = []byte("B_TAG\x00")
	labelAFrame = []byte("A_FRAME\x00")
	labelBFrame = []byte("B_FRAME\x00")
)

// CounterModeKDF derives 32 bytes from secret following NIST SP 800-108 in
// counter mode with HMAC-SHA256 as the PRF. The PRF input is
// 0x00 || label || uint32_be(context) || 0x20.
func CounterModeKDF(secret, label []byte, context uint32) ([]byte, error) {
	if err := validateSecret(secret); err != nil {
		return nil, err
	}
	if len(label) == 0 || label[len(label)-1] != 0 {
		return nil, fmt.Errorf("%w: label must be null-terminated", ErrInvalidArgument)
	}

	prf := hmac.New(sha256.New, secret)
	if prf.Size() < SecretKeyLength {
		return nil, ErrMACTooShort
	}

	var contextBytes [4]byte
	binary.BigEndian.PutUint32(contextBytes[:], context)

	prf.Write([]byte{0})
	prf.Write(label)
	prf.Write(contextBytes[:])
	prf.Write([]byte{SecretKeyLength})
	mac := prf.Sum(nil)

	output := make([]byte, SecretKeyLength)
	copy(output, mac)
	ZeroBytes(mac)
	return output, nil
}

// ConcatenationKDF derives 32 bytes from inputs following NIST SP 800-56A
// section 5.8, hashing each input behind a one-byte length prefix.
func ConcatenationKDF(inputs ...[]byte) ([]byte, error) {
	h := sha256.New()
	if h.Size() < SecretKeyLength {
		return nil, ErrMACTooShort
	}
	for _, in := range inputs {
		if err := limits.ValidateKDFInput(in); err != nil {
			return nil, err
		}
		h.Write([]byte{byte(len(in))})
		h.Write(in)
	}
	hash := h.Sum(nil)
	output := make([]byte, SecretKeyLength)
	copy(output, hash)
	ZeroBytes(hash)
	return output, nil
}

func validateSecret(secret []byte) error {
	if len(secret) != SecretKeyLength {
		return fmt.Errorf("%w: secret must be %d bytes, got %d", ErrInvalidArgument, SecretKeyLength, len(secret))
	}
	if isZero(secret) {
		return fmt.Errorf("%w: secret is blank", ErrInvalidArgument)
	}
	return nil
}

// deriveKey runs the counter-mode KDF on secret and wraps the result.
func deriveKey(secret *SecretKey, label []byte, context uint32) (*SecretKey, error) {
	var derived []byte
	err := secret.use(func(key []byte) error {
		var err error
		derived, err = CounterModeKDF(key, label, context)
		return err
	})
	if err != nil {
		return nil, err
	}
	return adoptSecretKey(derived), nil
}

func deriveBytes(secret *SecretKey, label []byte, context uint32) ([]byte, error) {
	var derived []byte
	err := secret.use(func(key []byte) error {
		var err error
		derived, err = CounterModeKDF(key, label, context)
		return err
	})
	return derived, err
}

// DeriveGroupSalt derives the public salt shared by members of a group.
func DeriveGroupSalt(secret *SecretKey) ([]byte, error) {
	return deriveBytes(secret, labelSalt, 0)
}

// DeriveInitialSecret derives the period-zero secret for a transport.
func DeriveInitialSecret(secret *SecretKey, transportIndex uint32) (*SecretKey, error) {
	return deriveKey(secret, labelFirst, transportIndex)
}

// DeriveNextSecret derives the secret for the period after the one secret
// belongs to. period is the number of the new period.
func DeriveNextSecret(secret *SecretKey, period uint32) (*SecretKey, error) {
	return deriveKey(secret, labelRotate, period)
}

// DeriveTagKey derives the tag key for one direction of a connection.
func DeriveTagKey(secret *SecretKey, alice bool) (*SecretKey, error) {
	if alice {
		return deriveKey(secret, labelATag, 0)
	}
	return deriveKey(secret, labelBTag, 0)
}

// DeriveFrameKey derives the frame key for one direction of one stream.
func DeriveFrameKey(secret *SecretKey, streamNumber uint32, alice bool) (*SecretKey, error) {
	if alice {
		return deriveKey(secret, labelAFrame, streamNumber)
	}
	return deriveKey(secret, labelBFrame, streamNumber)
}

// DeriveConfirmationCodes derives the codes each party reads aloud after
// key agreement. Only the first CodeBits bits of each output are used.
func DeriveConfirmationCodes(secret *SecretKey) (alice, bob uint32, err error) {
	a, err := deriveBytes(secret, labelCode, 0)
	if err != nil {
		return 0, 0, err
	}
	defer ZeroBytes(a)
	b, err := deriveBytes(secret, labelCode, 1)
	if err != nil {
		return 0, 0, err
	}
	defer ZeroBytes(b)
	return readCode(a), readCode(b), nil
}

// DeriveInvitationNonces derives the nonces each party signs during an
// invitation exchange.
func DeriveInvitationNonces(secret *SecretKey) (alice, bob []byte, err error) {
	alice, err = deriveBytes(secret, labelNonce, 0)
	if err != nil {
		return nil, nil, err
	}
	bob, err = deriveBytes(secret, labelNonce, 1)
	if err != nil {
		ZeroBytes(alice)
		return nil, nil, err
	}
	return alice, bob, nil
}

// readCode returns the first CodeBits bits of b as an unsigned integer.
func readCode(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
