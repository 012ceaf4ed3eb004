package crypto

import (
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"
)

const previewBytes = 8

// PreviewFields describes public data such as a peer key or a stream tag by
// its length and the hex of its first bytes. Never pass secret material.
func PreviewFields(data []byte, name string) logrus.Fields {
	preview := "nil"
	if len(data) > 0 {
		preview = hex.EncodeToString(data[:min(len(data), previewBytes)])
		if len(data) > previewBytes {
			preview += "..."
		}
	}
	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}

// logDuration emits a debug timing trace for operation.
func logDuration(operation string, start time.Time, clock Clock) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":    operation,
		"package":     "crypto",
		"duration_ms": clock.Since(start).Milliseconds(),
	}).Debug("Operation timing")
}
