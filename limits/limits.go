// Package limits provides centralized size limits for the encrypted stream
// wire protocol and the key-derivation primitives beneath it.
package limits

import (
	"errors"
	"fmt"
	"math"
)

const (
	// TagLength is the size of the optional stream-initial tag (one AES block).
	TagLength = 16

	// MacLength is the size of the authentication tag appended by the AEAD.
	MacLength = 16

	// IVLength is the size of the frame IV: uint32 frame number, one flag byte
	// and zero fill.
	IVLength = 12

	// StorageIVLength is the IV size used for password-encrypted blobs.
	StorageIVLength = 16

	// FrameHeaderPlaintext is the size of the plaintext frame header.
	FrameHeaderPlaintext = 4

	// HeaderLength is the size of the encrypted frame header on the wire.
	HeaderLength = FrameHeaderPlaintext + MacLength

	// MaxFrameLength is the largest frame, header and both MACs included.
	MaxFrameLength = 1024

	// MaxPayloadLength is the largest payload plus padding a frame may carry.
	MaxPayloadLength = MaxFrameLength - HeaderLength - MacLength

	// MaxFrameNumber is the last frame number that may be used under one key.
	MaxFrameNumber = math.MaxUint32

	// MaxKDFInputLength is the largest input accepted by the concatenation KDF,
	// whose inputs carry a single length byte.
	MaxKDFInputLength = math.MaxUint8

	// SecretKeyLength is the size of every symmetric key and derived secret.
	SecretKeyLength = 32

	// MaxRandomRequest caps the bytes a single generator request may produce.
	MaxRandomRequest = 1024 * 1024

	// PasswordSaltLength is the size of the PBKDF2 salt in a password blob.
	PasswordSaltLength = 16

	// PasswordBlobOverhead is the fixed part of a password blob: salt,
	// iteration count, IV and MAC.
	PasswordBlobOverhead = PasswordSaltLength + 4 + StorageIVLength + MacLength
)

var (
	// ErrFrameTooLarge indicates a frame declared more than MaxPayloadLength bytes.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrNegativeLength indicates a negative payload or padding length.
	ErrNegativeLength = errors.New("negative length")

	// ErrKDFInputTooLong indicates a KDF input longer than MaxKDFInputLength.
	ErrKDFInputTooLong = errors.New("kdf input too long")

	// ErrRequestTooLarge indicates a random request above MaxRandomRequest.
	ErrRequestTooLarge = errors.New("random request too large")
)

// ValidateFrameLengths checks that a payload and its padding fit in one frame.
func ValidateFrameLengths(payloadLength, paddingLength int) error {
	if payloadLength < 0 || paddingLength < 0 {
		return fmt.Errorf("%w: payload %d, padding %d", ErrNegativeLength, payloadLength, paddingLength)
	}
	if payloadLength+paddingLength > MaxPayloadLength {
		return fmt.Errorf("%w: payload %d + padding %d exceeds limit %d",
			ErrFrameTooLarge, payloadLength, paddingLength, MaxPayloadLength)
	}
	return nil
}

// ValidateKDFInput checks that a KDF input fits a one-byte length prefix.
func ValidateKDFInput(input []byte) error {
	if len(input) > MaxKDFInputLength {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrKDFInputTooLong, len(input), MaxKDFInputLength)
	}
	return nil
}

// ValidateRandomRequest checks a generator request against MaxRandomRequest.
func ValidateRandomRequest(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: request %d", ErrNegativeLength, n)
	}
	if n > MaxRandomRequest {
		return fmt.Errorf("%w: request %d exceeds limit %d", ErrRequestTooLarge, n, MaxRandomRequest)
	}
	return nil
}

// FrameLength returns the on-wire size of a frame carrying the given payload
// and padding.
func FrameLength(payloadLength, paddingLength int) int {
	return HeaderLength + payloadLength + paddingLength + MacLength
}
