// Package shm provides the two named, host-visible primitives a cross-process
// signal is built from.
//
// A Segment holds one framed payload in a file under a shared memory directory
// (/dev/shm by default). Every write builds a complete new file and renames it over
// the old one, so readers only ever map a whole frame: header, sequence number,
// checksum and payload, sized exactly to the payload.
//
// An Event is a 16 byte mapping containing a futex wake word, a manual-reset level
// and a publish sequence counter. Set bumps the wake word and wakes every waiter in
// every process; Wait blocks until the wake word differs from the last value the
// caller saw, so a wake can neither be missed nor observed twice.
//
// Example usage:
//
//	ev, err := shm.OpenEvent(ctx, shm.EventConfig{Dir: "/dev/shm", Name: "chan1", Mode: 0o666})
//	// ...
//	seg, err := shm.NewSegment(shm.Config{Dir: "/dev/shm", Name: "signal.chan1"})
//	seq, err := ev.NextSequence()
//	_, err = seg.Write(ctx, seq, payload)
//	err = ev.Set()
//
// Both types are instrumented with OpenTelemetry tracing and metrics; they default
// to no-op providers.
package shm
