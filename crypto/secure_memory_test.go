package crypto

import (
	"errors"
	"testing"
)

func TestSecureWipe(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	if err := SecureWipe(data); err != nil {
		t.Fatalf("SecureWipe failed: %v", err)
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not wiped: %d", i, b)
		}
	}

	if err := SecureWipe(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("SecureWipe(nil) = %v, want ErrInvalidArgument", err)
	}
}

func TestZeroBytes(t *testing.T) {
	ZeroBytes(nil)
	ZeroBytes([]byte{})

	data := []byte{0xff, 0xff}
	ZeroBytes(data)
	if data[0] != 0 || data[1] != 0 {
		t.Fatalf("ZeroBytes left %v", data)
	}
}

func TestIsZero(t *testing.T) {
	if !isZero(make([]byte, 32)) {
		t.Error("zero slice reported non-zero")
	}
	if !isZero(nil) {
		t.Error("nil slice reported non-zero")
	}
	b := make([]byte, 32)
	b[31] = 1
	if isZero(b) {
		t.Error("non-zero slice reported zero")
	}
}

func TestLockMemoryIsSafe(t *testing.T) {
	// Locking may fail without privileges; it must never panic.
	buf := make([]byte, 64)
	lockMemory(buf)
	unlockMemory(buf)
	lockMemory(nil)
	unlockMemory(nil)
}
