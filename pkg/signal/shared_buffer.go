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
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/plugin-signal/api"
	"github.com/srediag/plugin-signal/pkg/serializer"
	"github.com/srediag/plugin-signal/pkg/shm"
)

// SharedBuffer stores the serialized form of one value in a named shared memory
// segment. Every write replaces the segment as a whole.
type SharedBuffer[T any] struct {
	name       string
	segment    *shm.Segment
	serializer serializer.Serializer[T]
	fixedSize  int
	metrics    *Metrics
	retryEvery func() backoff.BackOff
}

var _ api.Buffer[int] = (*SharedBuffer[int])(nil)

// NewSharedBuffer returns a buffer for channel name. It fails with
// ErrUnsupportedType when T cannot be serialized.
func NewSharedBuffer[T any](f *Factory, name string) (*SharedBuffer[T], error) {
	f, err := resolve(f)
	if err != nil {
		return nil, err
	}
	if err := shm.ValidateName(name); err != nil {
		return nil, err
	}
	codec, err := serializer.New[T]()
	if err != nil {
		return nil, err
	}
	b := &SharedBuffer[T]{
		name:       name,
		serializer: codec,
		metrics:    f.metrics,
	}
	if strategy, _ := serializer.StrategyOf[T](); strategy == serializer.StrategyFixedWidth {
		b.fixedSize = serializer.Size[T]()
	}
	b.segment, err = shm.NewSegment(shm.Config{
		Dir:            f.cfg.ShmDir,
		Name:           f.cfg.SegmentPrefix + name,
		Mode:           f.mode,
		MaxPayloadSize: f.cfg.MaxPayloadSize,
		Meter:          f.meter,
		Tracer:         f.tracer,
	})
	if err != nil {
		return nil, err
	}
	retries, interval := f.cfg.ReadRetries, f.cfg.ReadRetryInterval
	b.retryEvery = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
	}
	return b, nil
}

// Name returns the channel name.
func (b *SharedBuffer[T]) Name() string {
	return b.name
}

// Path returns the segment file path.
func (b *SharedBuffer[T]) Path() string {
	return b.segment.Path()
}

// SetBuffer serializes value and replaces the segment with it, tagged with seq.
func (b *SharedBuffer[T]) SetBuffer(ctx context.Context, value T, seq uint64) error {
	data, err := b.serializer.Serialize(value)
	if err != nil {
		return fmt.Errorf("signal: serialize %s: %w", b.name, err)
	}
	n, err := b.segment.Write(ctx, seq, data)
	if err != nil {
		return err
	}
	b.metrics.payloadBytes.Observe(float64(n))
	return nil
}

// GetBuffer reads and deserializes the current segment. Transient read failures
// are retried; a missing segment is not.
func (b *SharedBuffer[T]) GetBuffer(ctx context.Context) (T, uint64, error) {
	var zero T
	var frame shm.Frame
	read := func() error {
		var err error
		frame, err = b.segment.Read(ctx)
		if errors.Is(err, shm.ErrSegmentNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(read, backoff.WithContext(b.retryEvery(), ctx)); err != nil {
		return zero, 0, err
	}
	if b.fixedSize > 0 && len(frame.Payload) != b.fixedSize {
		return zero, frame.Sequence, fmt.Errorf("%w: %s holds %d bytes, want %d",
			ErrDecode, b.name, len(frame.Payload), b.fixedSize)
	}
	value, err := b.serializer.Deserialize(frame.Payload)
	if err != nil {
		return zero, frame.Sequence, fmt.Errorf("%w: %s: %w", ErrDecode, b.name, err)
	}
	return value, frame.Sequence, nil
}

// Exists reports whether anything was ever written to the channel.
func (b *SharedBuffer[T]) Exists() bool {
	return b.segment.Exists()
}

// Remove deletes the segment file.
func (b *SharedBuffer[T]) Remove() error {
	return b.segment.Remove()
}
