package crypto

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// ErrWrongKeyType is returned when a key of one type is used for the other.
var ErrWrongKeyType = errors.New("wrong key type")

// signedData binds a label to a message by length-prefixing both, so a
// signature made for one purpose cannot be replayed for another.
func signedData(label string, message []byte) []byte {
	data := make([]byte, 0, 8+len(label)+len(message))
	data = binary.BigEndian.AppendUint32(data, uint32(len(label)))
	data = append(data, label...)
	data = binary.BigEndian.AppendUint32(data, uint32(len(message)))
	return append(data, message...)
}

// Sign creates an Ed25519 signature over label and message.
func Sign(label string, message []byte, privateKey *PrivateKey) ([]byte, error) {
	if privateKey == nil || privateKey.keyType != KeyTypeSignature {
		return nil, fmt.Errorf("%w: signing needs a signature key", ErrWrongKeyType)
	}
	if len(privateKey.encoded) != SignaturePrivateKeyLength {
		return nil, ErrInvalidPrivateKey
	}

	edPrivateKey := ed25519.NewKeyFromSeed(privateKey.encoded)
	defer ZeroBytes(edPrivateKey)

	return ed25519.Sign(edPrivateKey, signedData(label, message)), nil
}

// Verify checks an Ed25519 signature over label and message.
func Verify(label string, message, signature []byte, publicKey *PublicKey) (bool, error) {
	if publicKey == nil || publicKey.keyType != KeyTypeSignature {
		return false, fmt.Errorf("%w: verifying needs a signature key", ErrWrongKeyType)
	}
	if len(signature) != SignatureSize {
		return false, nil
	}
	return ed25519.Verify(publicKey.encoded, signedData(label, message), signature), nil
}
