//go:build !linux

package shm

import "time"

// FutexWait is not implemented outside Linux.
func FutexWait(addr *uint32, val uint32, timeout time.Duration) error {
	return ErrPlatformNotSupported
}

// FutexWake is not implemented outside Linux.
func FutexWake(addr *uint32, n int) (int, error) {
	return 0, ErrPlatformNotSupported
}
