package securestream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securestream/config"
	"github.com/opd-ai/securestream/crypto"
	"github.com/opd-ai/securestream/interfaces"
	"github.com/opd-ai/securestream/limits"
	"github.com/opd-ai/securestream/transport"
	"github.com/opd-ai/securestream/worker"
)

// KeyStorePurpose is passed to the IPasswordSource when unlocking the key
// store.
const KeyStorePurpose = "keystore"

var (
	// ErrUnrecognisedTag is returned for incoming streams whose tag matches
	// no expected stream.
	ErrUnrecognisedTag = errors.New("unrecognised stream tag")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("core closed")
)

// Options contains everything needed to build a Core.
type Options struct {
	Config *config.Config

	// SeedProvider seeds the Fortuna generator. Nil uses the OS.
	SeedProvider crypto.SeedProvider

	// Clock drives key rotation and PBKDF2 calibration. Nil uses the system clock.
	Clock crypto.Clock

	// PasswordSource unlocks Config.KeyStoreDir. Required when it is set.
	PasswordSource interfaces.IPasswordSource

	// ComponentOptions are passed through to crypto.NewComponent.
	ComponentOptions []crypto.ComponentOption
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{Config: config.DefaultConfig()}
}

// Core wires the crypto component, the worker pool, the key store and the
// key manager together.
type Core struct {
	options   *Options
	component *crypto.Component
	pool      *worker.Pool
	store     *crypto.EncryptedKeyStore
	keys      *transport.KeyManager
	dialer    *transport.Dialer

	mu     sync.Mutex
	closed bool
}

// New builds a Core. It refuses to start if the random generator fails its
// self-test.
func New(options *Options) (*Core, error) {
	if options == nil {
		options = NewOptions()
	}
	cfg := options.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	seeds := options.SeedProvider
	if seeds == nil {
		seeds = crypto.NewSeedProvider()
	}
	clock := options.Clock
	if clock == nil {
		clock = crypto.SystemClock{}
	}

	componentOpts := append([]crypto.ComponentOption{crypto.WithClock(clock)}, options.ComponentOptions...)
	component, err := crypto.NewComponent(seeds, cfg.PBKDFTargetMillis, componentOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start crypto component: %w", err)
	}

	dialer, err := transport.NewDialer(cfg.Proxy, 0)
	if err != nil {
		return nil, err
	}

	c := &Core{
		options:   options,
		component: component,
		dialer:    dialer,
		pool:      worker.NewPool(cfg.WorkerPoolSize),
	}

	var store interfaces.ISecretStore
	if cfg.KeyStoreDir != "" {
		if options.PasswordSource == nil {
			c.pool.Shutdown()
			return nil, fmt.Errorf("%w: key_store_dir needs a password source", crypto.ErrInvalidArgument)
		}
		password, err := options.PasswordSource.Password(context.Background(), KeyStorePurpose)
		if err != nil {
			c.pool.Shutdown()
			return nil, fmt.Errorf("failed to obtain key store password: %w", err)
		}
		ks, err := crypto.NewEncryptedKeyStore(cfg.KeyStoreDir, []byte(password), component.PasswordEncrypter())
		if err != nil {
			c.pool.Shutdown()
			return nil, err
		}
		c.store = ks
		store = ks
	}

	c.keys = transport.NewKeyManager(transport.KeyManagerConfig{
		RotationPeriod: cfg.RotationPeriod,
		WindowSize:     cfg.ReorderingWindow,
		Clock:          clock,
	}, store)
	if store != nil {
		n, err := c.keys.Restore()
		if err != nil {
			c.pool.Shutdown()
			c.keys.Close()
			c.store.Close()
			return nil, fmt.Errorf("failed to restore endpoints: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"function":  "New",
			"endpoints": n,
		}).Info("Restored endpoints")

		// Derive the store key off the caller's path so the first
		// persisted stream does not pay for calibration.
		if _, err := c.pool.Submit(context.Background(), func() (any, error) {
			return nil, c.store.Prepare()
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "New",
				"error":    err.Error(),
			}).Warn("Key store warm-up not scheduled")
		}
	}
	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"workers":    c.pool.Size(),
		"proxy":      dialer.ProxyType(),
		"persistent": store != nil,
	}).Info("Core started")
	return c, nil
}

// Crypto returns the crypto component.
func (c *Core) Crypto() *crypto.Component { return c.component }

// Keys returns the key manager.
func (c *Core) Keys() *transport.KeyManager { return c.keys }

// Dialer returns the configured outbound dialer.
func (c *Core) Dialer() *transport.Dialer { return c.dialer }

func (c *Core) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// DeriveMasterSecretAsync runs key agreement on the worker pool.
func (c *Core) DeriveMasterSecretAsync(ctx context.Context, theirPublicKey []byte, ours *crypto.KeyPair, alice bool) (*crypto.SecretKey, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	v, err := c.pool.Go(ctx, func() (any, error) {
		return c.component.DeriveMasterSecret(theirPublicKey, ours, alice)
	})
	if err != nil {
		return nil, err
	}
	return v.(*crypto.SecretKey), nil
}

// SignAsync signs on the worker pool.
func (c *Core) SignAsync(ctx context.Context, label string, message []byte, key *crypto.PrivateKey) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	v, err := c.pool.Go(ctx, func() (any, error) {
		return crypto.Sign(label, message, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// ChooseIterationCountAsync runs PBKDF2 calibration on the worker pool.
func (c *Core) ChooseIterationCountAsync(ctx context.Context, targetMillis int) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	v, err := c.pool.Go(ctx, func() (any, error) {
		return c.component.ChooseIterationCount(targetMillis), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// AddContact starts key rotation for a contact on one transport. epoch is
// when the relationship was created and must match on both sides.
func (c *Core) AddContact(contactID, transportID string, transportIndex uint32, master *crypto.SecretKey, alice bool, epoch time.Time) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.keys.AddEndpoint(contactID, transportID, transportIndex, master, alice, epoch)
}

// OpenOutgoingStream starts a tagged stream to a contact on w.
func (c *Core) OpenOutgoingStream(w io.Writer, contactID, transportID string) (*transport.StreamWriter, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	ctx, err := c.keys.OutgoingStreamContext(contactID, transportID)
	if err != nil {
		return nil, err
	}
	return transport.NewStreamWriter(w, ctx, c.component.NewFrameCipher)
}

// AcceptIncomingStream reads the tag from r and returns a reader for the
// rest of the stream together with the contact and transport it belongs to.
func (c *Core) AcceptIncomingStream(r io.Reader) (*transport.StreamReader, *transport.StreamContext, error) {
	if err := c.checkOpen(); err != nil {
		return nil, nil, err
	}
	tag := make([]byte, limits.TagLength)
	if _, err := io.ReadFull(r, tag); err != nil {
		return nil, nil, fmt.Errorf("failed to read tag: %w", err)
	}
	ctx, ok, err := c.keys.RecogniseTag(tag)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrUnrecognisedTag
	}
	info := &transport.StreamContext{
		ContactID:    ctx.ContactID,
		TransportID:  ctx.TransportID,
		StreamNumber: ctx.StreamNumber,
		Alice:        ctx.Alice,
	}
	sr, err := transport.NewStreamReader(r, ctx, c.component.NewFrameCipher)
	if err != nil {
		return nil, nil, err
	}
	return sr, info, nil
}

// Close stops the worker pool and erases every secret held in memory.
func (c *Core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.pool.Shutdown()
	var errs []error
	if err := c.keys.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "Core.Close",
	}).Info("Core closed")
	return errors.Join(errs...)
}
