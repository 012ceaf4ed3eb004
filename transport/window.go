package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	// Bitmap blocks are machine words, as in the RFC 6479 anti-replay layout.
	blockBits = bits.UintSize

	// DefaultWindowSize is how many incoming stream numbers per period are
	// recognised ahead of the lowest unused one.
	DefaultWindowSize = 32

	maxStreamNumber = math.MaxUint32
)

var (
	// ErrStreamReplayed is returned when a stream number is marked twice.
	ErrStreamReplayed = errors.New("stream number already seen")
	// ErrOutsideWindow is returned for stream numbers the window does not cover.
	ErrOutsideWindow = errors.New("stream number outside reordering window")
)

// ReorderingWindow tracks which incoming stream numbers of one period have
// been used. It covers [base, base+size); when a number in the upper half is
// seen the window slides so that number sits just below the middle, and it
// always slides past a seen prefix. Streams may therefore arrive up to half a
// window out of order.
type ReorderingWindow struct {
	base   uint64
	size   uint64
	blocks []uintptr
}

// NewReorderingWindow returns a window starting at stream number zero.
func NewReorderingWindow(size int) *ReorderingWindow {
	if size < 2 {
		size = DefaultWindowSize
	}
	n := (size + blockBits - 1) / blockBits
	return &ReorderingWindow{size: uint64(size), blocks: make([]uintptr, n)}
}

func (w *ReorderingWindow) capacity() uint64 { return uint64(len(w.blocks)) * blockBits }

func (w *ReorderingWindow) bit(n uint64) (block uint64, mask uintptr) {
	i := n % w.capacity()
	return i / blockBits, uintptr(1) << (i % blockBits)
}

func (w *ReorderingWindow) seen(n uint64) bool {
	b, m := w.bit(n)
	return w.blocks[b]&m != 0
}

func (w *ReorderingWindow) set(n uint64, v bool) {
	b, m := w.bit(n)
	if v {
		w.blocks[b] |= m
	} else {
		w.blocks[b] &^= m
	}
}

// top is one past the highest stream number covered.
func (w *ReorderingWindow) top() uint64 {
	return min(w.base+w.size, maxStreamNumber+1)
}

// Base returns the lowest stream number the window covers. It reaches 2^32
// once every stream number has been used.
func (w *ReorderingWindow) Base() uint64 { return w.base }

// Contains reports whether n is inside the window.
func (w *ReorderingWindow) Contains(n uint32) bool {
	v := uint64(n)
	return v >= w.base && v < w.top()
}

// Unseen lists the stream numbers in the window that have not been used.
func (w *ReorderingWindow) Unseen() []uint32 {
	var out []uint32
	for n := w.base; n < w.top(); n++ {
		if !w.seen(n) {
			out = append(out, uint32(n))
		}
	}
	return out
}

// MarkSeen records n as used and slides the window. It returns the numbers
// that entered the window and the unused numbers that left it, so callers
// can keep a tag table in step.
func (w *ReorderingWindow) MarkSeen(n uint32) (added, removed []uint32, err error) {
	if !w.Contains(n) {
		return nil, nil, fmt.Errorf("%w: %d not in [%d, %d)", ErrOutsideWindow, n, w.base, w.top())
	}
	v := uint64(n)
	if w.seen(v) {
		return nil, nil, fmt.Errorf("%w: %d", ErrStreamReplayed, n)
	}
	w.set(v, true)

	oldTop := w.top()
	newBase := w.base
	if half := w.size / 2; v >= w.base+half {
		newBase = v - half + 1
	}
	for newBase < oldTop && w.seen(newBase) {
		newBase++
	}

	for i := w.base; i < newBase; i++ {
		if !w.seen(i) {
			removed = append(removed, uint32(i))
		}
		w.set(i, false)
	}
	w.base = newBase
	for i := oldTop; i < w.top(); i++ {
		w.set(i, false)
		added = append(added, uint32(i))
	}
	return added, removed, nil
}

// MarshalBinary encodes base (u64), size (u32) and the seen bits in window
// order. The base is wider than a stream number so an exhausted window
// stays exhausted across a restore.
func (w *ReorderingWindow) MarshalBinary() ([]byte, error) {
	out := make([]byte, 12, 12+(w.size+7)/8)
	binary.BigEndian.PutUint64(out[0:8], w.base)
	binary.BigEndian.PutUint32(out[8:12], uint32(w.size))
	seenBits := make([]byte, (w.size+7)/8)
	for i := uint64(0); i < w.size; i++ {
		if w.base+i < w.top() && w.seen(w.base+i) {
			seenBits[i/8] |= 1 << (i % 8)
		}
	}
	return append(out, seenBits...), nil
}

// UnmarshalBinary restores a window produced by MarshalBinary.
func (w *ReorderingWindow) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("%w: window record too short", ErrFormat)
	}
	base := binary.BigEndian.Uint64(data[0:8])
	size := int(binary.BigEndian.Uint32(data[8:12]))
	if size < 2 || size > 1<<16 || len(data) != 12+(size+7)/8 {
		return fmt.Errorf("%w: bad window size %d", ErrFormat, size)
	}
	if base > maxStreamNumber+1 {
		return fmt.Errorf("%w: bad window base %d", ErrFormat, base)
	}
	*w = *NewReorderingWindow(size)
	w.base = base
	seenBits := data[12:]
	for i := uint64(0); i < w.size; i++ {
		if seenBits[i/8]&(1<<(i%8)) != 0 && w.base+i < w.top() {
			w.set(w.base+i, true)
		}
	}
	return nil
}
