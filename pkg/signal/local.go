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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/plugin-signal/api"
)

// Local is an in-process broadcast signal. It holds one value slot and one binary
// wait primitive per subscriber.
type Local[T any] struct {
	kind    string
	metrics *Metrics
	log     *logger

	mu    sync.RWMutex
	value T

	subs   cmap.ConcurrentMap[uint64, *Subscriber[T]]
	nextID atomic.Uint64

	done   chan struct{}
	closed atomic.Bool
}

// Subscriber is the handle returned by Subscribe. Its wait primitive is set by
// Send and reset by a successful receive.
type Subscriber[T any] struct {
	id     uint64
	signal *Local[T]
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

var _ api.Signal[int] = (*Local[int])(nil)

// NewLocal creates an in-process signal. A nil factory means DefaultFactory().
func NewLocal[T any](f *Factory) (*Local[T], error) {
	f, err := resolve(f)
	if err != nil {
		return nil, err
	}
	return newLocal[T](kindLocal, f.metrics, f.log), nil
}

func newLocal[T any](kind string, m *Metrics, log *logger) *Local[T] {
	return &Local[T]{
		kind:    kind,
		metrics: m,
		log:     log,
		subs:    cmap.NewWithCustomShardingFunction[uint64, *Subscriber[T]](shardSubscriber),
		done:    make(chan struct{}),
	}
}

func shardSubscriber(id uint64) uint32 {
	return uint32(id ^ id>>32)
}

// Send stores value and releases every registered subscriber in one critical section.
func (s *Local[T]) Send(value T) error {
	if s.closed.Load() {
		s.metrics.send(s.kind, resultClosed)
		return ErrClosed
	}
	s.mu.Lock()
	s.value = value
	s.subs.IterCb(func(_ uint64, sub *Subscriber[T]) {
		sub.release()
	})
	s.mu.Unlock()
	s.metrics.send(s.kind, resultOK)
	return nil
}

// Subscribe registers a new subscriber.
func (s *Local[T]) Subscribe() (api.Subscription[T], error) {
	return s.subscribe()
}

func (s *Local[T]) subscribe() (*Subscriber[T], error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	sub := &Subscriber[T]{
		id:     s.nextID.Add(1),
		signal: s,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if !s.subs.SetIfAbsent(sub.id, sub) {
		return nil, fmt.Errorf("signal: subscriber %d already registered", sub.id)
	}
	s.metrics.subscribers.WithLabelValues(s.kind).Inc()
	s.log.tracef("subscriber %d registered", sub.id)
	return sub, nil
}

// Latest returns the current value.
func (s *Local[T]) Latest() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Subscribers returns the number of registered subscribers.
func (s *Local[T]) Subscribers() int {
	return s.subs.Count()
}

// seed sets the value without releasing anybody.
func (s *Local[T]) seed(value T) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

// Close unblocks every pending receive with ErrClosed and drops all subscribers.
// Closing twice is a no-op.
func (s *Local[T]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	for _, sub := range s.subs.Items() {
		_ = sub.Close()
	}
	return nil
}

// ID returns the subscriber's identity within its signal.
func (sub *Subscriber[T]) ID() uint64 {
	return sub.id
}

func (sub *Subscriber[T]) release() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// Receive blocks until released by Send, then returns the current value.
func (sub *Subscriber[T]) Receive(ctx context.Context) (T, error) {
	return sub.wait(ctx.Done(), nil, ctx.Err)
}

// ReceiveTimeout blocks for at most timeout. On expiry it returns the current value
// and ErrTimeout. A zero timeout only polls; a negative one waits forever.
func (sub *Subscriber[T]) ReceiveTimeout(timeout time.Duration) (T, error) {
	switch {
	case timeout < 0:
		return sub.Receive(context.Background())
	case timeout == 0:
		if sub.isClosed() {
			return sub.closed()
		}
		select {
		case <-sub.wake:
			return sub.received(resultOK, nil)
		default:
		}
		return sub.waitTimedOut()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return sub.wait(nil, timer.C, nil)
}

func (sub *Subscriber[T]) wait(cancel <-chan struct{}, expired <-chan time.Time, cause func() error) (T, error) {
	if sub.isClosed() {
		return sub.closed()
	}
	select {
	case <-sub.wake:
		// a wake may still be pending when Close wins the race
		if sub.isClosed() {
			return sub.closed()
		}
		return sub.received(resultOK, nil)
	case <-cancel:
		return sub.received(resultCancelled, cause())
	case <-expired:
		return sub.waitTimedOut()
	case <-sub.signal.done:
		return sub.closed()
	case <-sub.done:
		return sub.closed()
	}
}

func (sub *Subscriber[T]) waitTimedOut() (T, error) {
	if sub.isClosed() {
		return sub.closed()
	}
	return sub.received(resultTimeout, ErrTimeout)
}

func (sub *Subscriber[T]) received(result string, err error) (T, error) {
	sub.signal.metrics.receive(sub.signal.kind, result)
	return sub.signal.Latest(), err
}

func (sub *Subscriber[T]) closed() (T, error) {
	sub.signal.metrics.receive(sub.signal.kind, resultClosed)
	var zero T
	return zero, ErrClosed
}

func (sub *Subscriber[T]) isClosed() bool {
	select {
	case <-sub.done:
		return true
	case <-sub.signal.done:
		return true
	default:
		return false
	}
}

// Close unregisters the subscriber. A receive blocked on it returns ErrClosed.
func (sub *Subscriber[T]) Close() error {
	sub.once.Do(func() {
		sub.signal.subs.Remove(sub.id)
		close(sub.done)
		sub.signal.metrics.subscribers.WithLabelValues(sub.signal.kind).Dec()
	})
	return nil
}
