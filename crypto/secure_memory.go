package crypto

import (
	"crypto/subtle"
	"fmt"
	"runtime"
)

// SecureWipe overwrites key material in place. A nil slice is reported as
// ErrInvalidArgument so callers notice a key that was never set.
//
//go:noinline
func SecureWipe(data []byte) error {
	if data == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	clear(data)
	runtime.KeepAlive(data)
	return nil
}

// ZeroBytes is SecureWipe for buffers that may be empty.
func ZeroBytes(data []byte) {
	if len(data) > 0 {
		_ = SecureWipe(data)
	}
}

// isZero reports in constant time whether every byte of b is zero.
func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}
