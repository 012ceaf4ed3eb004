package crypto

import (
	"fmt"
	"math"
)

// safeIntToUint32 converts an int to uint32, rejecting negative values and
// values above math.MaxUint32.
//
// CWE-190: Integer Overflow or Wraparound
func safeIntToUint32(val int) (uint32, error) {
	if val < 0 {
		return 0, fmt.Errorf("cannot convert negative int to uint32: %d", val)
	}
	if uint64(val) > math.MaxUint32 {
		return 0, fmt.Errorf("int value exceeds uint32 max: %d", val)
	}
	return uint32(val), nil
}

// safeIterationCount converts an encoded iteration count to an int. Counts of
// zero or above math.MaxInt32 are rejected so a hostile blob cannot request
// unbounded work or wrap on 32-bit platforms.
func safeIterationCount(val uint32) (int, error) {
	if val == 0 {
		return 0, fmt.Errorf("iteration count must be positive")
	}
	if val > math.MaxInt32 {
		return 0, fmt.Errorf("iteration count exceeds int32 max: %d", val)
	}
	return int(val), nil
}

// clampIterations maps a computed iteration estimate into [1, math.MaxInt32].
func clampIterations(val int64) int {
	if val < 1 {
		return 1
	}
	if val > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(val)
}
