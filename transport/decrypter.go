package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securestream/crypto"
	"github.com/opd-ai/securestream/limits"
)

// StreamDecrypter reads frames from r. Any tag must already have been
// consumed. It is owned by a single goroutine and is not safe for concurrent
// use.
type StreamDecrypter struct {
	r           io.Reader
	cipher      crypto.AuthenticatedCipher
	frameKey    *crypto.SecretKey
	frameNumber uint64
	state       State

	iv     [limits.IVLength]byte
	header [limits.HeaderLength]byte
	body   []byte
}

// NewStreamDecrypter reads frames from r under frameKey. The decrypter does
// not take ownership of frameKey.
func NewStreamDecrypter(r io.Reader, cipher crypto.AuthenticatedCipher, frameKey *crypto.SecretKey) *StreamDecrypter {
	return &StreamDecrypter{
		r:        r,
		cipher:   cipher,
		frameKey: frameKey,
		body:     make([]byte, limits.MaxPayloadLength+limits.MacLength),
	}
}

// State reports where the stream is in its lifecycle.
func (d *StreamDecrypter) State() State { return d.state }

// ReadFrame decrypts the next frame into payload and returns the payload
// length. payload must hold limits.MaxPayloadLength bytes. After the final
// frame has been read it returns io.EOF. Every other failure wraps ErrFormat,
// except counter exhaustion.
func (d *StreamDecrypter) ReadFrame(payload []byte) (int, error) {
	if d.state == StateFinal {
		return 0, io.EOF
	}
	if len(payload) < limits.MaxPayloadLength {
		return 0, io.ErrShortBuffer
	}
	if d.frameNumber > limits.MaxFrameNumber {
		return 0, ErrFrameCounterExhausted
	}
	frame := frameNumber32(d.frameNumber)

	if err := d.readFull(d.header[:]); err != nil {
		return 0, err
	}
	frameIV(d.iv[:], frame, true)
	if err := d.cipher.Init(false, d.frameKey, d.iv[:]); err != nil {
		return 0, err
	}
	header, err := d.cipher.Process(d.header[:])
	if err != nil {
		return 0, d.formatError(frame, "header", err)
	}
	payloadLength, paddingLength, final := decodeHeader(header)
	if err := limits.ValidateFrameLengths(payloadLength, paddingLength); err != nil {
		return 0, d.formatError(frame, "header", err)
	}

	bodyCT := d.body[:payloadLength+paddingLength+limits.MacLength]
	if err := d.readFull(bodyCT); err != nil {
		return 0, err
	}
	frameIV(d.iv[:], frame, false)
	if err := d.cipher.Init(false, d.frameKey, d.iv[:]); err != nil {
		return 0, err
	}
	body, err := d.cipher.Process(bodyCT)
	if err != nil {
		return 0, d.formatError(frame, "payload", err)
	}
	defer crypto.ZeroBytes(body)

	for _, b := range body[payloadLength:] {
		if b != 0 {
			return 0, d.formatError(frame, "padding", errors.New("non-zero padding"))
		}
	}

	copy(payload, body[:payloadLength])
	d.frameNumber++
	d.state = StateStreaming
	if final {
		d.state = StateFinal
	}
	return payloadLength, nil
}

// readFull treats any shortfall, including a clean EOF, as truncation:
// a stream only ends after its final frame.
func (d *StreamDecrypter) readFull(buf []byte) error {
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrFormat, io.ErrUnexpectedEOF)
		}
		return err
	}
	return nil
}

func (d *StreamDecrypter) formatError(frame uint32, part string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": "StreamDecrypter.ReadFrame",
		"frame":    frame,
		"part":     part,
		"error":    err.Error(),
	}).Warn("Rejected frame")
	return fmt.Errorf("%w: frame %d %s: %w", ErrFormat, frame, part, err)
}
