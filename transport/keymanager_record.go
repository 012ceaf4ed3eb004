package transport

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/opd-ai/securestream/crypto"
)

const endpointRecordVersion = 1

// endpointRecord is the persisted form of an endpoint. Only the secret of
// the oldest held period is stored; later ones are derived again on load.
type endpointRecord struct {
	contactID      string
	transportID    string
	transportIndex uint32
	alice          bool
	epoch          time.Time
	current        uint32
	outgoing       uint64
	oldestPeriod   uint32
	secret         *crypto.SecretKey
	windows        map[uint32]*ReorderingWindow
}

// encodeEndpointRecord lays out:
//
//	version u8 | alice u8 | transportIndex u32 | epoch i64 (unix ns) |
//	current u32 | outgoing u64 | oldestPeriod u32 | secret [32] |
//	contactID (u16 len) | transportID (u16 len) |
//	window count u8 | { period u32 | len u16 | window }*
func encodeEndpointRecord(ep *endpoint) ([]byte, error) {
	if len(ep.contactID) > math.MaxUint16 || len(ep.transportID) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: identifier too long", crypto.ErrInvalidArgument)
	}
	oldest := ep.periods[0]

	out := make([]byte, 0, 128)
	out = append(out, endpointRecordVersion)
	if ep.alice {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, ep.transportIndex)
	out = binary.BigEndian.AppendUint64(out, uint64(ep.epoch.UnixNano()))
	out = binary.BigEndian.AppendUint32(out, ep.current)
	out = binary.BigEndian.AppendUint64(out, ep.outgoing)
	out = binary.BigEndian.AppendUint32(out, oldest.period)
	secret := oldest.secret.Bytes()
	out = append(out, secret...)
	crypto.ZeroBytes(secret)
	out = appendString(out, ep.contactID)
	out = appendString(out, ep.transportID)

	out = append(out, byte(len(ep.periods)))
	for _, ps := range ep.periods {
		w, err := ps.window.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = binary.BigEndian.AppendUint32(out, ps.period)
		out = binary.BigEndian.AppendUint16(out, uint16(len(w)))
		out = append(out, w...)
	}
	return out, nil
}

func appendString(out []byte, s string) []byte {
	out = binary.BigEndian.AppendUint16(out, uint16(len(s)))
	return append(out, s...)
}

type recordReader struct {
	b   []byte
	err error
}

func (r *recordReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: endpoint record truncated", ErrFormat)
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *recordReader) u8() byte {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *recordReader) u16() uint16 {
	if b := r.next(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *recordReader) u32() uint32 {
	if b := r.next(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *recordReader) u64() uint64 {
	if b := r.next(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *recordReader) str() string {
	return string(r.next(int(r.u16())))
}

func decodeEndpointRecord(raw []byte) (*endpointRecord, error) {
	r := &recordReader{b: raw}
	if v := r.u8(); r.err == nil && v != endpointRecordVersion {
		return nil, fmt.Errorf("%w: unsupported endpoint record version %d", ErrFormat, v)
	}
	rec := &endpointRecord{
		alice:          r.u8() == 1,
		transportIndex: r.u32(),
		epoch:          time.Unix(0, int64(r.u64())),
		current:        r.u32(),
		outgoing:       r.u64(),
		oldestPeriod:   r.u32(),
	}
	secret := r.next(crypto.SecretKeyLength)
	rec.contactID = r.str()
	rec.transportID = r.str()

	count := int(r.u8())
	rec.windows = make(map[uint32]*ReorderingWindow, count)
	for i := 0; i < count && r.err == nil; i++ {
		period := r.u32()
		data := r.next(int(r.u16()))
		if r.err != nil {
			break
		}
		w := new(ReorderingWindow)
		if err := w.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		rec.windows[period] = w
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: trailing data in endpoint record", ErrFormat)
	}
	if rec.oldestPeriod > rec.current {
		return nil, fmt.Errorf("%w: oldest period %d after current %d", ErrFormat, rec.oldestPeriod, rec.current)
	}

	key, err := crypto.NewSecretKey(secret)
	if err != nil {
		return nil, err
	}
	rec.secret = key
	return rec, nil
}
