// Package limits provides centralized size constants and validation functions
// for the encrypted stream wire protocol. Every component that builds or parses
// tags, frames, IVs or KDF inputs takes its sizes from here so that both peers
// agree on the exact byte layout.
//
// # Frame Size Hierarchy
//
// A frame on the wire is a header ciphertext followed by a payload ciphertext:
//
//   - FrameHeaderPlaintext (4 bytes): payload length (with the final-frame flag in
//     the high bit) and padding length, both big-endian uint16.
//
//   - HeaderLength (20 bytes): the header plaintext plus its MAC.
//
//   - MaxFrameLength (1024 bytes): the largest frame either peer may emit,
//     header and MAC included.
//
//   - MaxPayloadLength: what remains of MaxFrameLength for payload plus padding
//     once the header and the body MAC are accounted for.
//
// # Validation Functions
//
// The decrypter validates every header it authenticates:
//
//	err := limits.ValidateFrameLengths(payloadLength, paddingLength)
//	if err != nil {
//	    // ErrFrameTooLarge: the peer declared more than MaxPayloadLength bytes
//	}
//
// KDF inputs are length-prefixed with a single byte and must be validated with
// ValidateKDFInput before they are hashed.
//
// # Error Types
//
//   - ErrFrameTooLarge: declared payload plus padding exceeds MaxPayloadLength
//   - ErrNegativeLength: a negative payload or padding length was supplied
//   - ErrKDFInputTooLong: a KDF input does not fit a one-byte length prefix
//   - ErrRequestTooLarge: a random-bytes request exceeds MaxRandomRequest
//
// # Protocol Compliance
//
// These constants are part of the wire format. Changing any of them breaks
// interoperability with existing peers.
package limits
