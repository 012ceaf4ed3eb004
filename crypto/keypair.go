package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// KeyType tells agreement keys and signature keys apart. A key of one type is
// never accepted where the other is expected.
type KeyType int

const (
	// KeyTypeAgreement marks X25519 keys.
	KeyTypeAgreement KeyType = iota + 1
	// KeyTypeSignature marks Ed25519 keys.
	KeyTypeSignature
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeAgreement:
		return "agreement"
	case KeyTypeSignature:
		return "signature"
	default:
		return "unknown"
	}
}

const (
	// AgreementKeyLength is the size of X25519 public and private keys.
	AgreementKeyLength = curve25519.PointSize
	// SignaturePublicKeyLength is the size of an Ed25519 public key.
	SignaturePublicKeyLength = ed25519.PublicKeySize
	// SignaturePrivateKeyLength is the size of an Ed25519 seed.
	SignaturePrivateKeyLength = ed25519.SeedSize
)

// ErrInvalidPublicKey is returned for malformed or degenerate public keys.
var ErrInvalidPublicKey = errors.New("invalid public key")

// ErrInvalidPrivateKey is returned for malformed private keys.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// PublicKey is an encoded public key of a fixed type.
type PublicKey struct {
	keyType KeyType
	encoded []byte
}

// Type returns the key type.
func (k *PublicKey) Type() KeyType { return k.keyType }

// Encoded returns a copy of the encoded key.
func (k *PublicKey) Encoded() []byte {
	out := make([]byte, len(k.encoded))
	copy(out, k.encoded)
	return out
}

// PrivateKey is an encoded private key of a fixed type. For signature keys
// the encoding is the 32-byte Ed25519 seed.
type PrivateKey struct {
	keyType KeyType
	encoded []byte
}

func (k *PrivateKey) Type() KeyType { return k.keyType }

// Encoded returns a copy of the encoded key.
func (k *PrivateKey) Encoded() []byte {
	out := make([]byte, len(k.encoded))
	copy(out, k.encoded)
	return out
}

// Wipe zeroes the private key material.
func (k *PrivateKey) Wipe() {
	ZeroBytes(k.encoded)
}

// KeyPair couples a public key with its private key. Both halves always have
// the same type.
type KeyPair struct {
	Public  *PublicKey
	Private *PrivateKey
}

// Type returns the type shared by both halves.
func (kp *KeyPair) Type() KeyType { return kp.Public.keyType }

// WipeKeyPair zeroes the private half of kp.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil || kp.Private == nil {
		return errors.New("cannot wipe nil key pair")
	}
	kp.Private.Wipe()
	return nil
}

// GenerateAgreementKeyPair creates an X25519 key pair using randomness from r.
func GenerateAgreementKeyPair(r io.Reader) (*KeyPair, error) {
	dh, err := noise.DH25519.GenerateKeypair(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate agreement key pair: %w", err)
	}
	defer ZeroBytes(dh.Private)

	if isZero(dh.Public) {
		return nil, fmt.Errorf("%w: generated degenerate public key", ErrInvalidPublicKey)
	}
	return &KeyPair{
		Public:  &PublicKey{keyType: KeyTypeAgreement, encoded: append([]byte(nil), dh.Public...)},
		Private: &PrivateKey{keyType: KeyTypeAgreement, encoded: append([]byte(nil), dh.Private...)},
	}, nil
}

// AgreementKeyPairFromPrivate rebuilds an X25519 key pair from a stored
// private key.
func AgreementKeyPairFromPrivate(private []byte) (*KeyPair, error) {
	priv, err := AgreementKeyParser{}.ParsePrivateKey(private)
	if err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv.encoded, curve25519.Basepoint)
	if err != nil {
		priv.Wipe()
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return &KeyPair{
		Public:  &PublicKey{keyType: KeyTypeAgreement, encoded: pub},
		Private: priv,
	}, nil
}

// GenerateSignatureKeyPair creates an Ed25519 key pair using randomness
// from r.
func GenerateSignatureKeyPair(r io.Reader) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signature key pair: %w", err)
	}
	defer ZeroBytes(priv)

	return &KeyPair{
		Public:  &PublicKey{keyType: KeyTypeSignature, encoded: []byte(pub)},
		Private: &PrivateKey{keyType: KeyTypeSignature, encoded: append([]byte(nil), priv.Seed()...)},
	}, nil
}

// KeyParser decodes keys of one type.
type KeyParser interface {
	ParsePublicKey(encoded []byte) (*PublicKey, error)
	ParsePrivateKey(encoded []byte) (*PrivateKey, error)
}

// AgreementKeyParser parses X25519 keys.
type AgreementKeyParser struct{}

// ParsePublicKey rejects keys of the wrong size and the all-zero point.
// Other low-order points are caught when the agreement yields zero.
func (AgreementKeyParser) ParsePublicKey(encoded []byte) (*PublicKey, error) {
	if len(encoded) != AgreementKeyLength {
		return nil, fmt.Errorf("%w: agreement key must be %d bytes, got %d", ErrInvalidPublicKey, AgreementKeyLength, len(encoded))
	}
	if isZero(encoded) {
		return nil, fmt.Errorf("%w: all-zero agreement key", ErrInvalidPublicKey)
	}
	return &PublicKey{keyType: KeyTypeAgreement, encoded: append([]byte(nil), encoded...)}, nil
}

func (AgreementKeyParser) ParsePrivateKey(encoded []byte) (*PrivateKey, error) {
	if len(encoded) != AgreementKeyLength {
		return nil, fmt.Errorf("%w: agreement key must be %d bytes, got %d", ErrInvalidPrivateKey, AgreementKeyLength, len(encoded))
	}
	if isZero(encoded) {
		return nil, fmt.Errorf("%w: all-zero agreement key", ErrInvalidPrivateKey)
	}
	return &PrivateKey{keyType: KeyTypeAgreement, encoded: append([]byte(nil), encoded...)}, nil
}

// SignatureKeyParser parses Ed25519 keys.
type SignatureKeyParser struct{}

func (SignatureKeyParser) ParsePublicKey(encoded []byte) (*PublicKey, error) {
	if len(encoded) != SignaturePublicKeyLength {
		return nil, fmt.Errorf("%w: signature key must be %d bytes, got %d", ErrInvalidPublicKey, SignaturePublicKeyLength, len(encoded))
	}
	return &PublicKey{keyType: KeyTypeSignature, encoded: append([]byte(nil), encoded...)}, nil
}

func (SignatureKeyParser) ParsePrivateKey(encoded []byte) (*PrivateKey, error) {
	if len(encoded) != SignaturePrivateKeyLength {
		return nil, fmt.Errorf("%w: signature seed must be %d bytes, got %d", ErrInvalidPrivateKey, SignaturePrivateKeyLength, len(encoded))
	}
	return &PrivateKey{keyType: KeyTypeSignature, encoded: append([]byte(nil), encoded...)}, nil
}
