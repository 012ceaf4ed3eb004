package transport

import (
	"encoding/binary"
	"errors"

	"github.com/opd-ai/securestream/limits"
)

var (
	// ErrFormat marks input that does not parse or authenticate as a frame.
	ErrFormat = errors.New("malformed frame")

	// ErrFrameCounterExhausted is returned once 2^32 frames have been
	// processed under one frame key. The stream must be torn down and a new
	// one started under a new stream number.
	ErrFrameCounterExhausted = errors.New("frame counter exhausted")

	// ErrStreamFinished is returned when writing after the final frame.
	ErrStreamFinished = errors.New("stream already finished")
)

// State is the position of a stream in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateStreaming
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStreaming:
		return "streaming"
	case StateFinal:
		return "final"
	default:
		return "unknown"
	}
}

const (
	finalFlag         = 0x8000
	payloadLengthMask = 0x7fff

	headerIVFlag  = 0x01
	payloadIVFlag = 0x00
)

// frameIV writes uint32_be(frameNumber) || flag || zeros into iv.
func frameIV(iv []byte, frameNumber uint32, header bool) {
	for i := range iv {
		iv[i] = 0
	}
	binary.BigEndian.PutUint32(iv, frameNumber)
	if header {
		iv[4] = headerIVFlag
	} else {
		iv[4] = payloadIVFlag
	}
}

// encodeHeader writes the plaintext frame header. Lengths must already have
// been validated against limits.MaxPayloadLength.
func encodeHeader(header []byte, payloadLength, paddingLength int, final bool) {
	field := uint16(payloadLength)
	if final {
		field |= finalFlag
	}
	binary.BigEndian.PutUint16(header[0:2], field)
	binary.BigEndian.PutUint16(header[2:4], uint16(paddingLength))
}

func decodeHeader(header []byte) (payloadLength, paddingLength int, final bool) {
	field := binary.BigEndian.Uint16(header[0:2])
	payloadLength = int(field & payloadLengthMask)
	final = field&finalFlag != 0
	paddingLength = int(binary.BigEndian.Uint16(header[2:4]))
	return payloadLength, paddingLength, final
}

// frameNumber32 converts the running counter for use in an IV. Callers
// check the counter against limits.MaxFrameNumber first.
func frameNumber32(n uint64) uint32 {
	return uint32(n & limits.MaxFrameNumber)
}
