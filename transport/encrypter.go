package transport

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securestream/crypto"
	"github.com/opd-ai/securestream/limits"
)

// StreamEncrypter turns payloads into frames on w. It is owned by a single
// goroutine and is not safe for concurrent use.
type StreamEncrypter struct {
	w           io.Writer
	cipher      crypto.AuthenticatedCipher
	frameKey    *crypto.SecretKey
	tag         []byte
	tagWritten  bool
	frameNumber uint64
	state       State

	iv     [limits.IVLength]byte
	header [limits.FrameHeaderPlaintext]byte
	body   []byte
	out    []byte
}

// NewStreamEncrypter writes frames to w under frameKey. A nil tag produces
// a tag-less stream. The encrypter does not take ownership of frameKey.
func NewStreamEncrypter(w io.Writer, cipher crypto.AuthenticatedCipher, frameKey *crypto.SecretKey, tag []byte) *StreamEncrypter {
	e := &StreamEncrypter{
		w:        w,
		cipher:   cipher,
		frameKey: frameKey,
		body:     make([]byte, 0, limits.MaxPayloadLength),
		out:      make([]byte, 0, limits.TagLength+limits.MaxFrameLength),
	}
	if tag != nil {
		e.tag = append([]byte(nil), tag...)
	} else {
		e.tagWritten = true
	}
	return e
}

// State reports where the stream is in its lifecycle.
func (e *StreamEncrypter) State() State { return e.state }

// WriteFrame encrypts payload followed by paddingLength zero bytes as one
// frame. Setting final ends the stream.
func (e *StreamEncrypter) WriteFrame(payload []byte, paddingLength int, final bool) error {
	if e.state == StateFinal {
		return ErrStreamFinished
	}
	if err := limits.ValidateFrameLengths(len(payload), paddingLength); err != nil {
		return err
	}
	if e.frameNumber > limits.MaxFrameNumber {
		logrus.WithFields(logrus.Fields{
			"function": "StreamEncrypter.WriteFrame",
		}).Warn("Frame counter exhausted, stream must be re-keyed")
		return ErrFrameCounterExhausted
	}
	frame := frameNumber32(e.frameNumber)

	out := e.out[:0]
	if !e.tagWritten {
		out = append(out, e.tag...)
	}

	encodeHeader(e.header[:], len(payload), paddingLength, final)
	frameIV(e.iv[:], frame, true)
	if err := e.cipher.Init(true, e.frameKey, e.iv[:]); err != nil {
		return err
	}
	headerCT, err := e.cipher.Process(e.header[:])
	if err != nil {
		return err
	}
	out = append(out, headerCT...)

	body := append(e.body[:0], payload...)
	for i := 0; i < paddingLength; i++ {
		body = append(body, 0)
	}
	frameIV(e.iv[:], frame, false)
	if err := e.cipher.Init(true, e.frameKey, e.iv[:]); err != nil {
		return err
	}
	bodyCT, err := e.cipher.Process(body)
	crypto.ZeroBytes(body)
	if err != nil {
		return err
	}
	out = append(out, bodyCT...)

	if _, err := e.w.Write(out); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", frame, err)
	}

	e.tagWritten = true
	e.frameNumber++
	e.state = StateStreaming
	if final {
		e.state = StateFinal
	}
	return nil
}

// Flush writes the tag if no frame has been written yet, then flushes w if
// it buffers.
func (e *StreamEncrypter) Flush() error {
	if !e.tagWritten {
		if _, err := e.w.Write(e.tag); err != nil {
			return fmt.Errorf("failed to write tag: %w", err)
		}
		e.tagWritten = true
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
