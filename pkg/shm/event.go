package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	internalshm "github.com/srediag/plugin-signal/internal/shm"
)

// event layout, all fields naturally aligned inside a page-aligned mapping
const (
	EventSize = 16

	eventWakeOffset     = 0
	eventLevelOffset    = 4
	eventSequenceOffset = 8
)

// EventConfig names an Event.
type EventConfig struct {
	Dir  string
	Name string
	Mode uint32
}

// Event is a named manual-reset wake primitive shared by every process that opens
// the same name. See the package documentation for the layout.
type Event struct {
	path   string
	region *internalshm.MappedRegion
	wake   *uint32
	level  unsafe.Pointer
	seq    unsafe.Pointer

	mu     sync.RWMutex
	closed atomic.Bool
}

// OpenEvent creates the named event or attaches to an existing one.
func OpenEvent(ctx context.Context, cfg EventConfig) (*Event, error) {
	if err := ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.Dir, cfg.Name)
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Path:   path,
		Size:   EventSize,
		Create: true,
		Mode:   cfg.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("shm: open event %s: %w", path, err)
	}
	return &Event{
		path:   path,
		region: region,
		wake:   (*uint32)(unsafe.Pointer(&region.Addr[eventWakeOffset])),
		level:  unsafe.Pointer(&region.Addr[eventLevelOffset]),
		seq:    unsafe.Pointer(&region.Addr[eventSequenceOffset]),
	}, nil
}

// Path returns the event's file path.
func (e *Event) Path() string {
	return e.path
}

// Set raises the level and wakes every waiter in every process.
func (e *Event) Set() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return ErrClosed
	}
	internalshm.AtomicStoreUint32(e.level, 1)
	internalshm.AtomicAddUint32(unsafe.Pointer(e.wake), 1)
	_, err := internalshm.FutexWake(e.wake, 1<<30)
	return err
}

// Reset lowers the level. Waiters are not affected.
func (e *Event) Reset() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return ErrClosed
	}
	internalshm.AtomicStoreUint32(e.level, 0)
	return nil
}

// IsSet reports the level.
func (e *Event) IsSet() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return false
	}
	return internalshm.AtomicLoadUint32(e.level) == 1
}

// WakeCount returns the current wake word; pass it to Wait.
func (e *Event) WakeCount() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return 0
	}
	return internalshm.AtomicLoadUint32(unsafe.Pointer(e.wake))
}

// NextSequence reserves the next publish sequence number, unique across processes.
func (e *Event) NextSequence() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return 0, ErrClosed
	}
	return internalshm.AtomicAddUint64(e.seq, 1), nil
}

// Sequence returns the last reserved sequence number.
func (e *Event) Sequence() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return 0
	}
	return internalshm.AtomicLoadUint64(e.seq)
}

// Wait blocks until the wake word differs from last and returns the new word.
// A negative timeout waits until ctx is done. It returns ErrTimeout when the
// timeout expires and ctx.Err() when ctx is done.
func (e *Event) Wait(ctx context.Context, last uint32, timeout time.Duration) (uint32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return last, ErrClosed
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if cur := internalshm.AtomicLoadUint32(unsafe.Pointer(e.wake)); cur != last {
			return cur, nil
		}
		remaining := time.Duration(-1)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return last, ErrTimeout
			}
		}
		if err := internalshm.FutexWait(e.wake, last, remaining); err != nil {
			if errors.Is(err, internalshm.ErrTimeout) {
				continue
			}
			return last, fmt.Errorf("shm: wait on %s: %w", e.path, err)
		}
	}
}

// Interrupt wakes every waiter without changing the wake word, so they re-check
// their context. Waiters in other processes go back to sleep.
func (e *Event) Interrupt() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return ErrClosed
	}
	_, err := internalshm.FutexWake(e.wake, 1<<30)
	return err
}

// Close unmaps the event. It waits for in-flight Wait calls, so interrupt them
// first. Closing twice is a no-op.
func (e *Event) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return internalshm.UnmapRegion(context.Background(), e.region)
}

// Remove deletes the event file. Processes that still have it mapped keep working
// on the old inode; new opens create a fresh event.
func (e *Event) Remove() error {
	if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
