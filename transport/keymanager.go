package transport

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securestream/crypto"
	"github.com/opd-ai/securestream/interfaces"
	"github.com/opd-ai/securestream/limits"
)

// DefaultRotationPeriod is how long one period secret stays current.
const DefaultRotationPeriod = 24 * time.Hour

const endpointPrefix = "endpoint-"

var (
	// ErrUnknownEndpoint is returned for contact/transport pairs never added.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrDuplicateEndpoint is returned when an endpoint is added twice.
	ErrDuplicateEndpoint = errors.New("endpoint already exists")
	// ErrStreamNumbersExhausted is returned when every outgoing stream number
	// of the current period has been used.
	ErrStreamNumbersExhausted = errors.New("outgoing stream numbers exhausted for this period")
	// ErrKeyManagerClosed is returned after Close.
	ErrKeyManagerClosed = errors.New("key manager closed")
)

// KeyManagerConfig tunes rotation and recognition.
type KeyManagerConfig struct {
	RotationPeriod time.Duration
	WindowSize     int
	Clock          crypto.Clock
}

func (c *KeyManagerConfig) applyDefaults() {
	if c.RotationPeriod <= 0 {
		c.RotationPeriod = DefaultRotationPeriod
	}
	if c.WindowSize < 2 {
		c.WindowSize = DefaultWindowSize
	}
	if c.Clock == nil {
		c.Clock = crypto.SystemClock{}
	}
}

// periodState is everything held for one period of one endpoint.
type periodState struct {
	period         uint32
	secret         *crypto.SecretKey
	incomingTagKey *crypto.SecretKey
	window         *ReorderingWindow
}

func (p *periodState) erase() {
	p.secret.Erase()
	p.incomingTagKey.Erase()
}

// endpoint is one contact reachable over one transport.
type endpoint struct {
	contactID      string
	transportID    string
	transportIndex uint32
	alice          bool
	epoch          time.Time

	// periods holds the previous, current and next periods in ascending
	// order; period zero has no predecessor.
	periods  []*periodState
	current  uint32
	outgoing uint64
}

func (e *endpoint) name() string {
	return endpointPrefix + hex.EncodeToString([]byte(e.contactID)) + "-" + hex.EncodeToString([]byte(e.transportID))
}

func (e *endpoint) state(period uint32) *periodState {
	for _, p := range e.periods {
		if p.period == period {
			return p
		}
	}
	return nil
}

type endpointKey struct {
	contactID   string
	transportID string
}

type tagRef struct {
	ep     *endpoint
	period uint32
	stream uint32
}

// KeyManager derives and rotates the secrets of every endpoint and
// recognises incoming tags. It implements interfaces.IStreamContextProvider.
type KeyManager struct {
	mu        sync.Mutex
	cfg       KeyManagerConfig
	store     interfaces.ISecretStore
	endpoints map[endpointKey]*endpoint
	tags      map[[limits.TagLength]byte]tagRef
	closed    bool
}

// NewKeyManager returns an empty key manager. A nil store keeps all state in
// memory.
func NewKeyManager(cfg KeyManagerConfig, store interfaces.ISecretStore) *KeyManager {
	cfg.applyDefaults()
	return &KeyManager{
		cfg:       cfg,
		store:     store,
		endpoints: make(map[endpointKey]*endpoint),
		tags:      make(map[[limits.TagLength]byte]tagRef),
	}
}

// periodAt returns the period number in force at now for an endpoint
// created at epoch.
func (m *KeyManager) periodAt(epoch, now time.Time) uint32 {
	if now.Before(epoch) {
		return 0
	}
	p := now.Sub(epoch) / m.cfg.RotationPeriod
	if p >= math.MaxUint32 {
		return math.MaxUint32 - 1
	}
	return uint32(p)
}

// AddEndpoint starts key rotation for a contact on a transport. master is
// not retained. epoch is the start of period zero, normally the time the
// relationship was created; both sides must use the same value.
func (m *KeyManager) AddEndpoint(contactID, transportID string, transportIndex uint32, master *crypto.SecretKey, alice bool, epoch time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrKeyManagerClosed
	}
	key := endpointKey{contactID, transportID}
	if _, ok := m.endpoints[key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateEndpoint, contactID, transportID)
	}

	initial, err := crypto.DeriveInitialSecret(master, transportIndex)
	if err != nil {
		return err
	}
	ep := &endpoint{
		contactID:      contactID,
		transportID:    transportID,
		transportIndex: transportIndex,
		alice:          alice,
		epoch:          epoch,
	}
	current := m.periodAt(epoch, m.cfg.Clock.Now())
	if err := m.buildPeriods(ep, initial, 0, current, nil); err != nil {
		return err
	}
	m.endpoints[key] = ep
	m.indexEndpoint(ep)

	logrus.WithFields(logrus.Fields{
		"function":  "KeyManager.AddEndpoint",
		"contact":   contactID,
		"transport": transportID,
		"period":    current,
		"alice":     alice,
	}).Info("Endpoint added")

	return m.persist(ep)
}

// buildPeriods derives forward from secret (belonging to period from) until
// ep holds current-1, current and current+1. secret is consumed. windows
// supplies restored reordering windows by period.
func (m *KeyManager) buildPeriods(ep *endpoint, secret *crypto.SecretKey, from, current uint32, windows map[uint32]*ReorderingWindow) error {
	lowest := uint32(0)
	if current > 0 {
		lowest = current - 1
	}
	if from > lowest {
		secret.Erase()
		return fmt.Errorf("%w: stored period %d is ahead of %d", crypto.ErrInvalidArgument, from, lowest)
	}

	for p := from; ; p++ {
		if p >= lowest {
			ps, err := m.newPeriodState(ep, p, secret.Copy(), windows[p])
			if err != nil {
				secret.Erase()
				return err
			}
			ep.periods = append(ep.periods, ps)
		}
		if p == current+1 {
			secret.Erase()
			break
		}
		next, err := crypto.DeriveNextSecret(secret, p+1)
		secret.Erase()
		if err != nil {
			return err
		}
		secret = next
	}
	ep.current = current
	return nil
}

func (m *KeyManager) newPeriodState(ep *endpoint, period uint32, secret *crypto.SecretKey, window *ReorderingWindow) (*periodState, error) {
	tagKey, err := crypto.DeriveTagKey(secret, !ep.alice)
	if err != nil {
		secret.Erase()
		return nil, err
	}
	if window == nil {
		window = NewReorderingWindow(m.cfg.WindowSize)
	}
	return &periodState{period: period, secret: secret, incomingTagKey: tagKey, window: window}, nil
}

func (m *KeyManager) indexEndpoint(ep *endpoint) {
	for _, ps := range ep.periods {
		m.addTags(ep, ps, ps.window.Unseen())
	}
}

func (m *KeyManager) addTags(ep *endpoint, ps *periodState, streams []uint32) {
	var tag [limits.TagLength]byte
	for _, s := range streams {
		if err := crypto.EncodeTag(tag[:], ps.incomingTagKey, s); err != nil {
			continue
		}
		m.tags[tag] = tagRef{ep: ep, period: ps.period, stream: s}
	}
}

func (m *KeyManager) removeTags(ps *periodState, streams []uint32) {
	var tag [limits.TagLength]byte
	for _, s := range streams {
		if err := crypto.EncodeTag(tag[:], ps.incomingTagKey, s); err != nil {
			continue
		}
		delete(m.tags, tag)
	}
}

// roll advances ep to the period in force now, erasing secrets that fall
// out of the window.
func (m *KeyManager) roll(ep *endpoint, now time.Time) error {
	target := m.periodAt(ep.epoch, now)
	if target <= ep.current {
		return nil
	}

	// Derive forward from the newest held period that does not pass the new
	// previous period.
	from := ep.periods[0]
	for _, ps := range ep.periods {
		if ps.period <= target-1 {
			from = ps
		}
	}
	seed := from.secret.Copy()
	for _, ps := range ep.periods {
		m.removeTags(ps, ps.window.Unseen())
	}
	old := ep.periods
	kept := make(map[uint32]*ReorderingWindow)
	for _, ps := range old {
		if ps.period >= target-1 {
			kept[ps.period] = ps.window
		}
	}
	ep.periods = nil
	err := m.buildPeriods(ep, seed, from.period, target, kept)
	for _, ps := range old {
		ps.erase()
	}
	if err != nil {
		return err
	}
	ep.outgoing = 0
	m.indexEndpoint(ep)

	logrus.WithFields(logrus.Fields{
		"function":  "KeyManager.roll",
		"contact":   ep.contactID,
		"transport": ep.transportID,
		"period":    target,
	}).Info("Rotated period secrets")
	return m.persist(ep)
}

// Tick rotates every endpoint to the current period.
func (m *KeyManager) Tick() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrKeyManagerClosed
	}
	now := m.cfg.Clock.Now()
	var errs []error
	for _, ep := range m.endpoints {
		if err := m.roll(ep, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutgoingStreamContext allocates the next outgoing stream of the current
// period. The stream number is persisted before the context is returned so
// a crash can never cause a number to be reused.
func (m *KeyManager) OutgoingStreamContext(contactID, transportID string) (*StreamContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrKeyManagerClosed
	}
	ep, ok := m.endpoints[endpointKey{contactID, transportID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEndpoint, contactID, transportID)
	}
	if err := m.roll(ep, m.cfg.Clock.Now()); err != nil {
		return nil, err
	}
	if ep.outgoing > maxStreamNumber {
		return nil, ErrStreamNumbersExhausted
	}

	stream := uint32(ep.outgoing)
	ep.outgoing++
	if err := m.persist(ep); err != nil {
		return nil, err
	}

	cur := ep.state(ep.current)
	tagKey, err := crypto.DeriveTagKey(cur.secret, ep.alice)
	if err != nil {
		return nil, err
	}
	return &StreamContext{
		ContactID:    contactID,
		TransportID:  transportID,
		TagKey:       tagKey,
		FrameSecret:  cur.secret.Copy(),
		StreamNumber: stream,
		Alice:        ep.alice,
	}, nil
}

// RecogniseTag looks up an incoming tag. A recognised tag is consumed: the
// same tag is never recognised twice.
func (m *KeyManager) RecogniseTag(tag []byte) (*StreamContext, bool, error) {
	if len(tag) != limits.TagLength {
		return nil, false, fmt.Errorf("%w: tag must be %d bytes", ErrFormat, limits.TagLength)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrKeyManagerClosed
	}

	now := m.cfg.Clock.Now()
	for _, ep := range m.endpoints {
		if err := m.roll(ep, now); err != nil {
			return nil, false, err
		}
	}

	var key [limits.TagLength]byte
	copy(key[:], tag)
	ref, ok := m.tags[key]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "KeyManager.RecogniseTag",
		}).WithFields(crypto.PreviewFields(tag, "tag")).Debug("Unrecognised tag")
		return nil, false, nil
	}
	delete(m.tags, key)

	ps := ref.ep.state(ref.period)
	added, removed, err := ps.window.MarkSeen(ref.stream)
	if err != nil {
		return nil, false, err
	}
	m.addTags(ref.ep, ps, added)
	m.removeTags(ps, removed)
	if err := m.persist(ref.ep); err != nil {
		return nil, false, err
	}

	return &StreamContext{
		ContactID:    ref.ep.contactID,
		TransportID:  ref.ep.transportID,
		TagKey:       ps.incomingTagKey.Copy(),
		FrameSecret:  ps.secret.Copy(),
		StreamNumber: ref.stream,
		Alice:        ref.ep.alice,
	}, true, nil
}

// RemoveEndpoint erases an endpoint's secrets and its stored record.
func (m *KeyManager) RemoveEndpoint(contactID, transportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := endpointKey{contactID, transportID}
	ep, ok := m.endpoints[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownEndpoint, contactID, transportID)
	}
	m.dropEndpoint(ep)
	delete(m.endpoints, key)
	if m.store != nil {
		return m.store.Delete(ep.name())
	}
	return nil
}

func (m *KeyManager) dropEndpoint(ep *endpoint) {
	for _, ps := range ep.periods {
		m.removeTags(ps, ps.window.Unseen())
		ps.erase()
	}
	ep.periods = nil
}

// Endpoints returns the number of endpoints being managed.
func (m *KeyManager) Endpoints() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.endpoints)
}

// Close erases every secret held. Stored records are kept.
func (m *KeyManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	for _, ep := range m.endpoints {
		m.dropEndpoint(ep)
	}
	m.endpoints = nil
	m.tags = nil
	m.closed = true
	return nil
}

// Restore loads every endpoint saved in the store and rotates it to the
// current period.
func (m *KeyManager) Restore() (int, error) {
	if m.store == nil {
		return 0, nil
	}
	names, err := m.store.Names()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrKeyManagerClosed
	}
	restored := 0
	for _, name := range names {
		if !strings.HasPrefix(name, endpointPrefix) {
			continue
		}
		raw, err := m.store.Get(name)
		if err != nil {
			return restored, err
		}
		rec, err := decodeEndpointRecord(raw)
		crypto.ZeroBytes(raw)
		if err != nil {
			return restored, fmt.Errorf("endpoint %s: %w", name, err)
		}
		if err := m.restoreEndpoint(rec); err != nil {
			return restored, fmt.Errorf("endpoint %s: %w", name, err)
		}
		restored++
	}
	return restored, nil
}

func (m *KeyManager) restoreEndpoint(rec *endpointRecord) error {
	key := endpointKey{rec.contactID, rec.transportID}
	if _, ok := m.endpoints[key]; ok {
		rec.secret.Erase()
		return ErrDuplicateEndpoint
	}
	ep := &endpoint{
		contactID:      rec.contactID,
		transportID:    rec.transportID,
		transportIndex: rec.transportIndex,
		alice:          rec.alice,
		epoch:          rec.epoch,
	}
	if err := m.buildPeriods(ep, rec.secret, rec.oldestPeriod, rec.current, rec.windows); err != nil {
		return err
	}
	ep.outgoing = rec.outgoing
	m.endpoints[key] = ep
	m.indexEndpoint(ep)
	return m.roll(ep, m.cfg.Clock.Now())
}

func (m *KeyManager) persist(ep *endpoint) error {
	if m.store == nil {
		return nil
	}
	raw, err := encodeEndpointRecord(ep)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(raw)
	if err := m.store.Put(ep.name(), raw); err != nil {
		return fmt.Errorf("failed to persist endpoint: %w", err)
	}
	return nil
}
