//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	prot := unix.PROT_READ | unix.PROT_WRITE
	if opts.ReadOnly {
		flags = unix.O_RDONLY | unix.O_CLOEXEC
		prot = unix.PROT_READ
	}
	if opts.Create {
		flags |= unix.O_CREAT
		if opts.Exclusive {
			flags |= unix.O_EXCL
		}
	}
	fd, err := unix.Open(opts.Path, flags, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	if opts.Create && opts.Mode != 0 {
		// only the owner may chmod, somebody else's file keeps its mode
		if err := unix.Fchmod(fd, opts.Mode); err != nil && !errors.Is(err, unix.EPERM) {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fchmod: %w", err)
		}
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	size := opts.Size
	if size == 0 {
		size = int(st.Size)
	} else if st.Size < int64(size) {
		if opts.ReadOnly {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("region %s is %d bytes, want %d", opts.Path, st.Size, size)
		}
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	}
	if size == 0 {
		_ = unix.Close(fd)
		return nil, ErrEmptyRegion
	}
	addr, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Size: size,
		Path: opts.Path,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(region.Addr); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		errs = append(errs, fmt.Errorf("close fd %d: %w", region.Fd, err))
	}
	return errors.Join(errs...)
}
