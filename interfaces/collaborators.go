package interfaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/securestream/crypto"
)

// ErrInvalidStreamContext is returned by StreamContext.Validate.
var ErrInvalidStreamContext = errors.New("invalid stream context")

// StreamContext carries everything needed to encrypt or decrypt one stream.
// It is handed out once by an IStreamContextProvider; whoever builds a
// stream from it owns the keys and must call Erase.
type StreamContext struct {
	// ContactID and TransportID identify the relationship the stream belongs to.
	ContactID   string
	TransportID string

	// TagKey encodes (outgoing) or recognised (incoming) the stream's tag.
	// A nil TagKey means the stream carries no tag.
	TagKey *crypto.SecretKey

	// FrameSecret is the period secret frame keys are derived from.
	FrameSecret *crypto.SecretKey

	StreamNumber uint32

	// Alice is our role in the relationship. Outgoing frames use our
	// direction's keys, incoming frames the peer's.
	Alice bool
}

// Validate checks that the context can key a stream.
func (c *StreamContext) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil context", ErrInvalidStreamContext)
	}
	if c.FrameSecret == nil || c.FrameSecret.IsErased() {
		return fmt.Errorf("%w: missing frame secret", ErrInvalidStreamContext)
	}
	if c.TagKey != nil && c.TagKey.IsErased() {
		return fmt.Errorf("%w: tag key erased", ErrInvalidStreamContext)
	}
	return nil
}

// Erase erases every key the context still holds. It is safe to call more
// than once and on a nil context.
func (c *StreamContext) Erase() {
	if c == nil {
		return
	}
	if c.TagKey != nil && !c.TagKey.IsErased() {
		c.TagKey.Erase()
	}
	if c.FrameSecret != nil && !c.FrameSecret.IsErased() {
		c.FrameSecret.Erase()
	}
}

// IStreamContextProvider is the key manager seen from the stream layer.
type IStreamContextProvider interface {
	// OutgoingStreamContext allocates the next outgoing stream number for
	// a contact on a transport.
	OutgoingStreamContext(contactID, transportID string) (*StreamContext, error)

	// RecogniseTag maps the tag at the start of an incoming stream to its
	// context. ok is false for unknown or already used tags.
	RecogniseTag(tag []byte) (ctx *StreamContext, ok bool, err error)
}

// ISecretStore persists raw secret bytes by name.
type ISecretStore interface {
	Put(name string, secret []byte) error
	Get(name string) ([]byte, error)
	Delete(name string) error
	Names() ([]string, error)
}

// IPasswordSource supplies the password that protects local secrets.
type IPasswordSource interface {
	// Password returns the password for purpose, for example "keystore".
	Password(ctx context.Context, purpose string) (string, error)
}

// StaticPassword is an IPasswordSource returning a fixed password.
type StaticPassword string

func (p StaticPassword) Password(context.Context, string) (string, error) {
	if p == "" {
		return "", errors.New("empty password")
	}
	return string(p), nil
}
