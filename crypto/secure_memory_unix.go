//go:build unix

package crypto

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// lockMemory pins the pages backing b so key material is not written to swap.
// Failure is not fatal: unprivileged processes commonly hit RLIMIT_MEMLOCK.
func lockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	if err := unix.Mlock(b); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "lockMemory",
			"size":     len(b),
			"error":    err.Error(),
		}).Debug("mlock failed, secret may be swapped")
	}
}

func unlockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}
