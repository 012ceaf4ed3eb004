package crypto

import (
	"crypto/sha256"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/securestream/limits"
)

const (
	// DefaultTargetMillis is how long password key derivation should take.
	DefaultTargetMillis = 500
	// DefaultIterationCount is used when timing never yields a usable estimate.
	DefaultIterationCount = 100000

	calibrationSamples   = 30
	maxCalibrationRounds = 10
)

// Calibrator estimates the PBKDF2 iteration count that costs a target
// running time on this machine.
type Calibrator struct {
	clock Clock
	work  func(iterations int)
}

// NewCalibrator times real PBKDF2-HMAC-SHA256 runs with clock.
func NewCalibrator(clock Clock) *Calibrator {
	return NewCalibratorWithWork(clock, pbkdf2Sample)
}

// NewCalibratorWithWork times work instead of PBKDF2. Used to drive
// calibration deterministically alongside a ManualClock.
func NewCalibratorWithWork(clock Clock, work func(iterations int)) *Calibrator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calibrator{clock: clock, work: work}
}

func pbkdf2Sample(iterations int) {
	password := []byte("password")
	salt := make([]byte, limits.PasswordSaltLength)
	key := pbkdf2.Key(password, salt, iterations, SecretKeyLength, sha256.New)
	ZeroBytes(key)
}

// ChooseIterationCount models the cost of n iterations as init + n*per and
// solves for the n that takes targetMillis. Both terms come from the medians
// of repeated one- and two-iteration runs; sampling repeats until both are
// positive, up to maxCalibrationRounds.
func (c *Calibrator) ChooseIterationCount(targetMillis int) int {
	quick := make([]time.Duration, 0, calibrationSamples*maxCalibrationRounds)
	slow := make([]time.Duration, 0, calibrationSamples*maxCalibrationRounds)

	var perIteration, initCost time.Duration
	for round := 0; round < maxCalibrationRounds; round++ {
		for i := 0; i < calibrationSamples; i++ {
			quick = append(quick, c.sample(1))
			slow = append(slow, c.sample(2))
		}
		quickMedian := median(quick)
		slowMedian := median(slow)
		perIteration = slowMedian - quickMedian
		initCost = quickMedian - perIteration

		logrus.WithFields(logrus.Fields{
			"function":      "ChooseIterationCount",
			"round":         round,
			"init_ns":       initCost.Nanoseconds(),
			"iteration_ns":  perIteration.Nanoseconds(),
			"target_millis": targetMillis,
		}).Debug("Calibration sample")

		if perIteration > 0 && initCost > 0 {
			target := time.Duration(targetMillis) * time.Millisecond
			iterations := clampIterations(int64((target - initCost) / perIteration))
			logrus.WithFields(logrus.Fields{
				"function":   "ChooseIterationCount",
				"iterations": iterations,
			}).Info("PBKDF2 calibrated")
			return iterations
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "ChooseIterationCount",
		"rounds":     maxCalibrationRounds,
		"iterations": DefaultIterationCount,
	}).Warn("Calibration did not converge, using default iteration count")
	return DefaultIterationCount
}

func (c *Calibrator) sample(iterations int) time.Duration {
	start := c.clock.Now()
	c.work(iterations)
	return c.clock.Since(start)
}

// median sorts samples in place and returns the middle value, or the mean
// of the two middle values for an even count.
func median(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	slices.Sort(samples)
	mid := len(samples) / 2
	if len(samples)%2 == 1 {
		return samples[mid]
	}
	return (samples[mid-1] + samples[mid]) / 2
}
