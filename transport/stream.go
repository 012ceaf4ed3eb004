package transport

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securestream/crypto"
	"github.com/opd-ai/securestream/interfaces"
	"github.com/opd-ai/securestream/limits"
)

// StreamContext is the per-stream key material handed out by a key manager.
type StreamContext = interfaces.StreamContext

// CipherFactory returns a fresh cipher for one stream.
type CipherFactory func() crypto.AuthenticatedCipher

// StreamWriter buffers application bytes into full frames. Close writes the
// final frame and erases the stream's keys.
type StreamWriter struct {
	enc      *StreamEncrypter
	ctx      *StreamContext
	frameKey *crypto.SecretKey
	buf      []byte
	closed   bool
}

// NewStreamWriter keys an outgoing stream from ctx, using our direction. The
// writer takes ownership of ctx and erases it if keying fails.
func NewStreamWriter(w io.Writer, ctx *StreamContext, newCipher CipherFactory) (*StreamWriter, error) {
	if err := ctx.Validate(); err != nil {
		ctx.Erase()
		return nil, err
	}
	frameKey, err := crypto.DeriveFrameKey(ctx.FrameSecret, ctx.StreamNumber, ctx.Alice)
	if err != nil {
		ctx.Erase()
		return nil, fmt.Errorf("failed to derive frame key: %w", err)
	}

	var tag []byte
	if ctx.TagKey != nil {
		tag = make([]byte, limits.TagLength)
		if err := crypto.EncodeTag(tag, ctx.TagKey, ctx.StreamNumber); err != nil {
			frameKey.Erase()
			ctx.Erase()
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewStreamWriter",
		"contact":   ctx.ContactID,
		"transport": ctx.TransportID,
		"stream":    ctx.StreamNumber,
		"tagged":    tag != nil,
	}).Debug("Outgoing stream keyed")

	return &StreamWriter{
		enc:      NewStreamEncrypter(w, newCipher(), frameKey, tag),
		ctx:      ctx,
		frameKey: frameKey,
		buf:      make([]byte, 0, limits.MaxPayloadLength),
	}, nil
}

// Write buffers p, emitting a frame each time the buffer fills.
func (s *StreamWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamFinished
	}
	written := 0
	for len(p) > 0 {
		n := copy(s.buf[len(s.buf):cap(s.buf)], p)
		s.buf = s.buf[:len(s.buf)+n]
		p = p[n:]
		written += n
		if len(s.buf) == cap(s.buf) {
			if err := s.writeBuffered(false); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush emits any buffered bytes as a non-final frame and flushes the
// underlying writer. With nothing buffered it only makes sure the tag is out.
func (s *StreamWriter) Flush() error {
	if s.closed {
		return ErrStreamFinished
	}
	if len(s.buf) > 0 {
		if err := s.writeBuffered(false); err != nil {
			return err
		}
	}
	return s.enc.Flush()
}

// Close writes the buffered bytes as the final frame and erases the keys.
func (s *StreamWriter) Close() error {
	if s.closed {
		return nil
	}
	err := s.writeBuffered(true)
	if err == nil {
		err = s.enc.Flush()
	}
	s.closed = true
	s.frameKey.Erase()
	s.ctx.Erase()
	return err
}

func (s *StreamWriter) writeBuffered(final bool) error {
	err := s.enc.WriteFrame(s.buf, 0, final)
	crypto.ZeroBytes(s.buf)
	s.buf = s.buf[:0]
	return err
}

// StreamReader decrypts an incoming stream whose tag has already been read.
type StreamReader struct {
	dec      *StreamDecrypter
	ctx      *StreamContext
	frameKey *crypto.SecretKey
	frame    []byte
	pending  []byte
	err      error
}

// NewStreamReader keys an incoming stream from ctx, using the peer's
// direction. The reader takes ownership of ctx and erases it if keying fails.
func NewStreamReader(r io.Reader, ctx *StreamContext, newCipher CipherFactory) (*StreamReader, error) {
	if err := ctx.Validate(); err != nil {
		ctx.Erase()
		return nil, err
	}
	frameKey, err := crypto.DeriveFrameKey(ctx.FrameSecret, ctx.StreamNumber, !ctx.Alice)
	if err != nil {
		ctx.Erase()
		return nil, fmt.Errorf("failed to derive frame key: %w", err)
	}
	return &StreamReader{
		dec:      NewStreamDecrypter(r, newCipher(), frameKey),
		ctx:      ctx,
		frameKey: frameKey,
		frame:    make([]byte, limits.MaxPayloadLength),
	}, nil
}

// Read returns decrypted application bytes. It returns io.EOF after the
// final frame, and the first error it sees on every later call.
func (s *StreamReader) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.dec.ReadFrame(s.frame)
		if err != nil {
			s.fail(err)
			return 0, err
		}
		s.pending = s.frame[:n]
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close erases the stream's keys. Reads after Close fail.
func (s *StreamReader) Close() error {
	s.fail(ErrStreamFinished)
	return nil
}

func (s *StreamReader) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.pending = nil
	s.frameKey.Erase()
	s.ctx.Erase()
	crypto.ZeroBytes(s.frame)
}
