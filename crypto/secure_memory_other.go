//go:build !unix

package crypto

func lockMemory(b []byte) {}

func unlockMemory(b []byte) {}
