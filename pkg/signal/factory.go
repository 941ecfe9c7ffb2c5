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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/heptiolabs/healthcheck"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/plugin-signal/api"
	"github.com/srediag/plugin-signal/pkg/shm"
)

// ErrorHandler receives errors that happen outside any caller's goroutine, such as
// a relay loop failing to read or decode a segment.
type ErrorHandler func(channel string, err error)

// Option customizes a Factory.
type Option func(*Factory)

// WithRegisterer registers the factory's collectors on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *Factory) {
		f.registerer = reg
		if g, ok := reg.(prometheus.Gatherer); ok {
			f.gatherer = g
		}
	}
}

// WithTracer sets the tracer used for shared memory reads and writes.
func WithTracer(t trace.Tracer) Option {
	return func(f *Factory) { f.tracer = t }
}

// WithMeter sets the OpenTelemetry meter used by shared memory segments.
func WithMeter(m metric.Meter) Option {
	return func(f *Factory) { f.meter = m }
}

// WithErrorHandler installs h for relay errors. Errors are always logged and counted.
func WithErrorHandler(h ErrorHandler) Option {
	return func(f *Factory) { f.onError = h }
}

// WithLogger replaces the factory's logger.
func WithLogger(zl zerolog.Logger) Option {
	return func(f *Factory) { f.log = fromZerolog(zl) }
}

// Factory creates signals sharing one configuration, one set of metrics and one
// worker pool for relay loops.
type Factory struct {
	cfg        Config
	mode       uint32
	log        *logger
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	metrics    *Metrics
	tracer     trace.Tracer
	meter      metric.Meter
	onError    ErrorHandler
	pool       *ants.Pool
	relays     atomic.Int64
	closed     atomic.Bool
}

// NewFactory verifies cfg and builds a Factory. A nil cfg means DefaultConfig().
func NewFactory(cfg *Config, opts ...Option) (*Factory, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	mode, _ := cfg.fileMode()
	f := &Factory{cfg: *cfg, mode: mode}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
		f.log = fromZerolog(internalLogger.Load().zl.Level(lvl))
	}
	if f.registerer == nil {
		reg := prometheus.NewRegistry()
		f.registerer, f.gatherer = reg, reg
	}
	f.metrics = newMetrics(f.registerer)

	pool, err := ants.NewPool(cfg.MaxRelays,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			f.log.errorf("relay panic: %v", p)
		}))
	if err != nil {
		return nil, fmt.Errorf("signal: create relay pool: %w", err)
	}
	f.pool = pool
	f.log.debugf("factory ready, shm dir %s, max relays %d", cfg.ShmDir, cfg.MaxRelays)
	return f, nil
}

var (
	defaultFactoryOnce sync.Once
	defaultFactory     *Factory
	defaultFactoryErr  error
)

// DefaultFactory returns a process-wide factory built from LoadConfig on first use.
func DefaultFactory() (*Factory, error) {
	defaultFactoryOnce.Do(func() {
		cfg, err := LoadConfig()
		if err != nil {
			defaultFactoryErr = err
			return
		}
		defaultFactory, defaultFactoryErr = NewFactory(cfg)
	})
	return defaultFactory, defaultFactoryErr
}

func resolve(f *Factory) (*Factory, error) {
	if f == nil {
		var err error
		if f, err = DefaultFactory(); err != nil {
			return nil, err
		}
	}
	if f.closed.Load() {
		return nil, ErrClosed
	}
	return f, nil
}

// Open returns an in-process signal when name is empty and a cross-process signal
// bound to name otherwise. A nil factory means DefaultFactory().
func Open[T any](f *Factory, name string) (api.Signal[T], error) {
	if name == "" {
		s, err := NewLocal[T](f)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewCrossProcess[T](f, name)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns a copy of the factory's configuration.
func (f *Factory) Config() Config {
	return f.cfg
}

// Gatherer returns the registry holding the factory's metrics, or nil when a
// registerer that is not a gatherer was supplied.
func (f *Factory) Gatherer() prometheus.Gatherer {
	return f.gatherer
}

// ActiveRelays returns the number of running relay loops.
func (f *Factory) ActiveRelays() int {
	return int(f.relays.Load())
}

// LivenessCheck fails once the factory or its relay pool is closed.
func (f *Factory) LivenessCheck() healthcheck.Check {
	return func() error {
		if f.closed.Load() || f.pool.IsClosed() {
			return errors.New("signal: factory closed")
		}
		return nil
	}
}

// ReadinessCheck fails when the shm directory cannot hold a maximum size payload.
func (f *Factory) ReadinessCheck() healthcheck.Check {
	return func() error {
		free, err := shm.FreeBytes(f.cfg.ShmDir)
		if err != nil {
			return fmt.Errorf("signal: stat %s: %w", f.cfg.ShmDir, err)
		}
		if need := uint64(f.cfg.MaxPayloadSize + shm.HeaderSize); free < need {
			return fmt.Errorf("signal: %s has %d bytes free, need %d", f.cfg.ShmDir, free, need)
		}
		return nil
	}
}

// Close releases the relay pool. Signals should be closed first; their relays keep
// running until they are. Closing twice is a no-op.
func (f *Factory) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.pool.Release()
	if n := f.relays.Load(); n > 0 {
		return fmt.Errorf("signal: factory closed with %d relays running", n)
	}
	return nil
}

func (f *Factory) submit(task func()) error {
	if err := f.pool.Submit(task); err != nil {
		return fmt.Errorf("signal: start relay: %w", err)
	}
	return nil
}

func (f *Factory) reportError(channel string, err error) {
	f.metrics.readErrors.Inc()
	f.log.warnf("channel %s: %v", channel, err)
	if f.onError != nil {
		f.onError(channel, err)
	}
}
