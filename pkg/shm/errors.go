package shm

import (
	"errors"

	internalshm "github.com/srediag/plugin-signal/internal/shm"
)

var (
	// ErrInvalidName is returned for names that cannot be used as a file in the shm directory.
	ErrInvalidName = errors.New("shm: invalid name")
	// ErrSegmentNotFound is returned when reading a segment nobody has written yet.
	ErrSegmentNotFound = errors.New("shm: segment not found")
	// ErrCorruptSegment is returned when a segment header does not match its payload.
	ErrCorruptSegment = errors.New("shm: corrupt segment")
	// ErrPayloadTooLarge is returned when a payload exceeds the configured maximum.
	ErrPayloadTooLarge = errors.New("shm: payload too large")
	// ErrShareMemoryHadNotLeftSpace is returned when the shm filesystem is full.
	ErrShareMemoryHadNotLeftSpace = errors.New("shm: share memory had not left space")
	// ErrClosed is returned by operations on a closed Event.
	ErrClosed = errors.New("shm: closed")
	// ErrTimeout is returned by Event.Wait when nothing was signaled in time.
	ErrTimeout = internalshm.ErrTimeout
	// ErrPlatformNotSupported is returned on hosts without shared memory files and futexes.
	ErrPlatformNotSupported = internalshm.ErrPlatformNotSupported
)
