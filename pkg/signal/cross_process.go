/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signal

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/srediag/plugin-signal/api"
	"github.com/srediag/plugin-signal/pkg/shm"
)

// CrossProcess is a broadcast signal shared by every process that opens the same
// channel name. A relay goroutine waits on the channel's event and republishes
// each new segment into a local signal, which delivers to subscribers.
type CrossProcess[T any] struct {
	name    string
	factory *Factory
	log     *logger

	local  *Local[T]
	buffer *SharedBuffer[T]
	event  *shm.Event

	sendMu         sync.Mutex
	selfOriginated atomic.Bool
	lastWake       uint32
	lastSeq        uint64

	cancel    context.CancelFunc
	relayDone chan struct{}
	closed    atomic.Bool
}

var _ api.Signal[int] = (*CrossProcess[int])(nil)

// NewCrossProcess opens channel name. If another process already published a
// value, it becomes the initial Latest.
func NewCrossProcess[T any](f *Factory, name string) (*CrossProcess[T], error) {
	f, err := resolve(f)
	if err != nil {
		return nil, err
	}
	if err := shm.ValidateName(name); err != nil {
		return nil, err
	}
	buffer, err := NewSharedBuffer[T](f, name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	event, err := shm.OpenEvent(ctx, shm.EventConfig{
		Dir:  f.cfg.ShmDir,
		Name: f.cfg.EventPrefix + name,
		Mode: f.mode,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	s := &CrossProcess[T]{
		name:      name,
		factory:   f,
		log:       f.log.with("channel", name),
		local:     newLocal[T](kindRelay, f.metrics, f.log),
		buffer:    buffer,
		event:     event,
		lastWake:  event.WakeCount(),
		cancel:    cancel,
		relayDone: make(chan struct{}),
	}
	if value, seq, err := buffer.GetBuffer(ctx); err == nil {
		s.local.seed(value)
		s.lastSeq = seq
	} else if !errors.Is(err, ErrSegmentNotFound) {
		f.reportError(name, err)
	}

	if err := f.submit(func() { s.relay(ctx) }); err != nil {
		cancel()
		return nil, multierr.Combine(err, s.local.Close(), event.Close())
	}
	s.log.debugf("opened, last sequence %d", s.lastSeq)
	return s, nil
}

// Name returns the channel name.
func (s *CrossProcess[T]) Name() string {
	return s.name
}

// Send writes value to the channel segment and wakes every relay attached to the
// channel, in this process and in others.
func (s *CrossProcess[T]) Send(value T) error {
	if s.closed.Load() {
		s.factory.metrics.send(kindCrossProcess, resultClosed)
		return ErrClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.send(value)
	if err != nil {
		if errors.Is(err, shm.ErrClosed) {
			err = ErrClosed
		}
		s.factory.metrics.send(kindCrossProcess, resultError)
		return err
	}
	s.factory.metrics.send(kindCrossProcess, resultOK)
	return nil
}

func (s *CrossProcess[T]) send(value T) error {
	seq, err := s.event.NextSequence()
	if err != nil {
		return err
	}
	if err := s.buffer.SetBuffer(context.Background(), value, seq); err != nil {
		return err
	}
	s.selfOriginated.Store(true)
	return s.event.Set()
}

// Subscribe registers a subscriber that is released by every value published on
// the channel.
func (s *CrossProcess[T]) Subscribe() (api.Subscription[T], error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.local.Subscribe()
}

// Latest returns the value most recently delivered by the relay.
func (s *CrossProcess[T]) Latest() T {
	return s.local.Latest()
}

func (s *CrossProcess[T]) relay(ctx context.Context) {
	defer close(s.relayDone)
	s.factory.relays.Add(1)
	s.factory.metrics.activeRelays.Inc()
	defer func() {
		s.factory.metrics.activeRelays.Dec()
		s.factory.relays.Add(-1)
	}()

	poll := s.factory.cfg.RelayPollInterval
	for {
		wake, err := s.event.Wait(ctx, s.lastWake, poll)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, shm.ErrTimeout):
			continue
		case err != nil:
			s.factory.reportError(s.name, err)
			if !sleep(ctx, poll) {
				return
			}
			continue
		}
		s.lastWake = wake
		s.factory.metrics.relayWakes.Inc()
		s.deliver(ctx)

		if s.selfOriginated.CompareAndSwap(true, false) {
			// let relays in this process observe the wake before the level drops
			runtime.Gosched()
			_ = s.event.Reset()
		}
	}
}

func (s *CrossProcess[T]) deliver(ctx context.Context) {
	value, seq, err := s.buffer.GetBuffer(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.factory.reportError(s.name, err)
		}
		return
	}
	if seq == s.lastSeq {
		s.factory.metrics.duplicateWakes.Inc()
		s.log.tracef("sequence %d already delivered", seq)
		return
	}
	s.lastSeq = seq
	if err := s.local.Send(value); err != nil {
		return
	}
	s.factory.metrics.relayDeliveries.Inc()
	s.log.tracef("delivered sequence %d", seq)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close stops the relay, releases pending receives with ErrClosed and unmaps the
// event. With RemoveOnClose set the channel files are deleted too. Closing twice is
// a no-op.
func (s *CrossProcess[T]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.event.Interrupt()
	<-s.relayDone
	err = multierr.Combine(err, s.local.Close(), s.event.Close())
	if s.factory.cfg.RemoveOnClose {
		err = multierr.Combine(err, s.event.Remove(), s.buffer.Remove())
	}
	s.log.debugf("closed")
	return err
}
