package shm

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// MaxNameLen bounds names so that prefix + name + temp suffix stays a valid file name.
const MaxNameLen = 200

// ValidateName reports whether name is usable as an event or segment name.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > MaxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLen)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidName, name)
	}
	return nil
}

// canCreateOnShm reports whether dir has at least size free bytes. Filesystems that
// cannot be inspected are assumed to have room.
func canCreateOnShm(size uint64, dir string) bool {
	stat, err := disk.Usage(dir)
	if err != nil {
		return true
	}
	return stat.Free >= size
}

// FreeBytes returns the free space of the filesystem holding dir.
func FreeBytes(dir string) (uint64, error) {
	stat, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}
