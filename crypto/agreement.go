package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// ErrKeyAgreementFailed is returned when the peer's key cannot be used or
// the agreement produces a degenerate shared value.
var ErrKeyAgreementFailed = errors.New("key agreement failed")

// DeriveMasterSecret combines our key pair with the peer's public key into
// the master secret for the relationship. Both parties must pass opposite
// values of alice; the public-key hashes are ordered by role so neither side
// can be confused about who is who.
func DeriveMasterSecret(theirPublicKey []byte, ours *KeyPair, alice bool) (*SecretKey, error) {
	if ours == nil || ours.Type() != KeyTypeAgreement || ours.Private.keyType != KeyTypeAgreement {
		return nil, fmt.Errorf("%w: agreement needs an agreement key pair", ErrWrongKeyType)
	}

	theirs, err := AgreementKeyParser{}.ParsePublicKey(theirPublicKey)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeriveMasterSecret",
			"error":    err.Error(),
		}).Warn("Rejected peer public key")
		return nil, fmt.Errorf("%w: %w", ErrKeyAgreementFailed, err)
	}

	ourHash := sha256.Sum256(ours.Public.encoded)
	theirHash := sha256.Sum256(theirs.encoded)
	aliceInfo, bobInfo := theirHash[:], ourHash[:]
	if alice {
		aliceInfo, bobInfo = ourHash[:], theirHash[:]
	}

	raw, err := deriveSharedSecret(ours.Private, theirs)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(raw)

	cooked, err := ConcatenationKDF(raw, labelMaster, aliceInfo, bobInfo)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "DeriveMasterSecret",
		"alice":    alice,
	}).WithFields(PreviewFields(theirPublicKey, "peer_key")).Debug("Master secret derived")

	return adoptSecretKey(cooked), nil
}

// deriveSharedSecret runs X25519. Scalars are clamped, which clears the
// cofactor, and an all-zero result from a low-order point is rejected.
func deriveSharedSecret(priv *PrivateKey, pub *PublicKey) ([]byte, error) {
	start := time.Now()
	defer logDuration("deriveSharedSecret", start, SystemClock{})

	shared, err := curve25519.X25519(priv.encoded, pub.encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyAgreementFailed, err)
	}
	if isZero(shared) {
		return nil, fmt.Errorf("%w: degenerate shared secret", ErrKeyAgreementFailed)
	}
	return shared, nil
}
