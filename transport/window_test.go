package transport

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderingWindowSlides(t *testing.T) {
	w := NewReorderingWindow(4)
	assert.Equal(t, []uint32{0, 1, 2, 3}, w.Unseen())

	added, removed, err := w.MarkSeen(0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4}, added)
	assert.Empty(t, removed)
	assert.Equal(t, uint64(1), w.Base())

	added, removed, err = w.MarkSeen(3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5}, added)
	assert.Equal(t, []uint32{1}, removed)
	assert.Equal(t, []uint32{2, 4, 5}, w.Unseen())

	_, _, err = w.MarkSeen(3)
	assert.ErrorIs(t, err, ErrStreamReplayed)
	_, _, err = w.MarkSeen(1)
	assert.ErrorIs(t, err, ErrOutsideWindow)
	_, _, err = w.MarkSeen(6)
	assert.ErrorIs(t, err, ErrOutsideWindow)
}

func TestReorderingWindowOutOfOrderWithinHalf(t *testing.T) {
	w := NewReorderingWindow(DefaultWindowSize)
	for _, n := range []uint32{2, 0, 1, 5, 4, 3} {
		_, _, err := w.MarkSeen(n)
		require.NoError(t, err, "stream %d", n)
	}
	assert.Equal(t, uint64(6), w.Base())
	assert.Len(t, w.Unseen(), DefaultWindowSize)
}

func TestReorderingWindowLargeJump(t *testing.T) {
	w := NewReorderingWindow(128)
	added, removed, err := w.MarkSeen(127)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), w.Base())
	assert.Len(t, removed, 64)
	assert.Len(t, added, 64)
	assert.Equal(t, uint32(128), added[0])

	for _, n := range w.Unseen() {
		assert.NotEqual(t, uint32(127), n)
	}
}

func TestReorderingWindowEndOfRange(t *testing.T) {
	w := NewReorderingWindow(4)
	w.base = math.MaxUint32 - 1
	assert.Equal(t, []uint32{math.MaxUint32 - 1, math.MaxUint32}, w.Unseen())

	added, _, err := w.MarkSeen(math.MaxUint32)
	require.NoError(t, err)
	assert.Empty(t, added)
	_, _, err = w.MarkSeen(math.MaxUint32 - 1)
	require.NoError(t, err)
	assert.Empty(t, w.Unseen())
	assert.False(t, w.Contains(0))

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	restored := new(ReorderingWindow)
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Empty(t, restored.Unseen(), "an exhausted window must stay exhausted")
}

func TestReorderingWindowMarshalRoundTrip(t *testing.T) {
	w := NewReorderingWindow(100)
	for _, n := range []uint32{0, 1, 2, 60, 61, 75} {
		_, _, err := w.MarkSeen(n)
		require.NoError(t, err)
	}
	data, err := w.MarshalBinary()
	require.NoError(t, err)

	restored := new(ReorderingWindow)
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Equal(t, w.Base(), restored.Base())
	assert.Equal(t, w.Unseen(), restored.Unseen())

	_, _, err = restored.MarkSeen(75)
	assert.ErrorIs(t, err, ErrStreamReplayed)
}

func TestReorderingWindowUnmarshalRejects(t *testing.T) {
	w := new(ReorderingWindow)
	assert.ErrorIs(t, w.UnmarshalBinary(nil), ErrFormat)
	assert.ErrorIs(t, w.UnmarshalBinary(make([]byte, 12)), ErrFormat)

	good, err := NewReorderingWindow(16).MarshalBinary()
	require.NoError(t, err)
	assert.ErrorIs(t, w.UnmarshalBinary(good[:len(good)-1]), ErrFormat)
}
