// Package shm contains platform-specific helpers for named shared memory regions
// and the futex words the signal event is built on.
package shm

import "errors"

var (
	// ErrPlatformNotSupported is returned by every helper on hosts without
	// /dev/shm style mappings and futexes.
	ErrPlatformNotSupported = errors.New("shm: platform not supported")
	// ErrTimeout is returned by FutexWait when the timeout expires first.
	ErrTimeout = errors.New("shm: wait timed out")
	// ErrEmptyRegion is returned when mapping a zero-length file.
	ErrEmptyRegion = errors.New("shm: empty region")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Size int
	Path string
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Path string
	// Size is the length to map. Zero maps the whole existing file. When the file
	// is shorter than Size it is grown (zero filled) unless ReadOnly is set.
	Size      int
	Create    bool
	Exclusive bool
	ReadOnly  bool
	// Mode is applied to created files regardless of the process umask.
	Mode uint32
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_other.go).
