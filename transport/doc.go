// Package transport implements the encrypted stream format and the key
// rotation that feeds it.
//
// # Wire Format
//
// A stream is an optional 16-byte tag followed by frames. Each frame is an
// encrypted 4-byte header and an encrypted body:
//
//	header:  uint16 payload length (top bit marks the final frame) | uint16 padding length
//	frame:   AEAD(header) [20 bytes] | AEAD(payload | zero padding)
//
// Header and body are sealed under the stream's frame key with a 12-byte IV
// holding the frame number and a header/payload flag, so frames cannot be
// reordered, replayed within the stream or moved between streams. A frame
// never exceeds 1024 bytes. A stream that ends without a final frame is
// truncated and fails with ErrFormat.
//
//	enc := transport.NewStreamEncrypter(w, crypto.NewGCMCipher(), frameKey, tag)
//	err := enc.WriteFrame(payload, 0, true)
//
// StreamWriter and StreamReader wrap the codec as io.WriteCloser and
// io.Reader, keyed from a StreamContext.
//
// # Key Rotation
//
// KeyManager keeps, per contact and transport, the secrets of the previous,
// current and next rotation periods. Outgoing streams use the current
// period; incoming tags are looked up in a table precomputed over each
// period's ReorderingWindow, so each stream number is accepted once and
// streams may arrive somewhat out of order or across a period boundary.
// Stream counters and windows are persisted through an ISecretStore before
// they are used.
//
//	km := transport.NewKeyManager(transport.KeyManagerConfig{}, store)
//	err := km.AddEndpoint("bob", "tcp", 0, master, true, created)
//	ctx, err := km.OutgoingStreamContext("bob", "tcp")
//	w, err := transport.NewStreamWriter(conn, ctx, crypto.NewGCMCipher)
//
// # Connections
//
// Dialer opens TCP connections directly or through a SOCKS5 or HTTP CONNECT
// proxy; Listen accepts them.
package transport
