package shm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	internalshm "github.com/srediag/plugin-signal/internal/shm"
)

const (
	// HeaderSize is the fixed frame header: magic | length | sequence | checksum.
	HeaderSize = 4 + 4 + 8 + 8

	frameMagic     = 0x4c4e4753 // "SGNL"
	magicOffset    = 0
	lengthOffset   = magicOffset + 4
	sequenceOffset = lengthOffset + 4
	checksumOffset = sequenceOffset + 8

	// DefaultMaxPayloadSize caps a single payload at 64 MiB.
	DefaultMaxPayloadSize = 64 << 20

	instrumentationName = "github.com/srediag/plugin-signal/pkg/shm"
)

// Config holds segment creation parameters.
type Config struct {
	Dir            string // directory backing the shared memory files
	Name           string // segment file name inside Dir
	Mode           uint32 // permission bits for created files
	MaxPayloadSize int
	Meter          metric.Meter
	Tracer         trace.Tracer
}

// Frame is one decoded segment.
type Frame struct {
	Sequence uint64
	Payload  []byte
}

// Segment is a named shared memory file holding the most recently written frame.
type Segment struct {
	dir        string
	name       string
	path       string
	mode       uint32
	maxPayload int
	tracer     trace.Tracer
	sizes      metric.Int64Histogram
}

// NewSegment validates cfg and returns a handle to the named segment. Nothing is
// created until the first Write.
func NewSegment(cfg Config) (*Segment, error) {
	if err := ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, errors.New("shm: segment directory is empty")
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.Meter == nil {
		cfg.Meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	sizes, err := cfg.Meter.Int64Histogram("shm.segment.payload_size",
		metric.WithDescription("Payload bytes written to shared memory segments."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("shm: create histogram: %w", err)
	}
	return &Segment{
		dir:        cfg.Dir,
		name:       cfg.Name,
		path:       filepath.Join(cfg.Dir, cfg.Name),
		mode:       cfg.Mode,
		maxPayload: cfg.MaxPayloadSize,
		tracer:     cfg.Tracer,
		sizes:      sizes,
	}, nil
}

// Path returns the segment's file path.
func (s *Segment) Path() string {
	return s.path
}

// Write replaces the segment with a new frame. The file is always recreated with
// exactly HeaderSize+len(payload) bytes. Returns number of payload bytes written.
func (s *Segment) Write(ctx context.Context, seq uint64, payload []byte) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "shm.Segment.Write", trace.WithAttributes(
		attribute.String("shm.path", s.path),
		attribute.Int("shm.payload_bytes", len(payload)),
		attribute.Int64("shm.sequence", int64(seq)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(payload) > s.maxPayload {
		return 0, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), s.maxPayload)
	}
	size := HeaderSize + len(payload)
	if !canCreateOnShm(uint64(size), s.dir) {
		return 0, fmt.Errorf("%w: dir:%s size:%d", ErrShareMemoryHadNotLeftSpace, s.dir, size)
	}

	tmp := filepath.Join(s.dir, "."+s.name+"."+uuid.NewString()+".tmp")
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Path:      tmp,
		Size:      size,
		Create:    true,
		Exclusive: true,
		Mode:      s.mode,
	})
	if err != nil {
		return 0, fmt.Errorf("shm: create segment: %w", err)
	}
	putFrame(region.Addr, seq, payload)
	if err := internalshm.UnmapRegion(ctx, region); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("shm: unmap segment: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("shm: publish segment: %w", err)
	}
	s.sizes.Record(ctx, int64(len(payload)), metric.WithAttributes(attribute.String("shm.name", s.name)))
	return len(payload), nil
}

// Read maps the segment and returns a copy of its frame.
func (s *Segment) Read(ctx context.Context) (f Frame, err error) {
	ctx, span := s.tracer.Start(ctx, "shm.Segment.Read", trace.WithAttributes(
		attribute.String("shm.path", s.path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{Path: s.path, ReadOnly: true})
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Frame{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, s.path)
	case errors.Is(err, internalshm.ErrEmptyRegion):
		return Frame{}, fmt.Errorf("%w: %s is empty", ErrCorruptSegment, s.path)
	case err != nil:
		return Frame{}, fmt.Errorf("shm: map segment: %w", err)
	}
	defer func() {
		if uerr := internalshm.UnmapRegion(ctx, region); uerr != nil && err == nil {
			err = fmt.Errorf("shm: unmap segment: %w", uerr)
		}
	}()
	f, err = parseFrame(region.Addr)
	if err != nil {
		return Frame{}, err
	}
	span.SetAttributes(attribute.Int64("shm.sequence", int64(f.Sequence)))
	return f, nil
}

// Exists reports whether the segment has been written.
func (s *Segment) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Remove deletes the segment file. Removing a missing segment is not an error.
func (s *Segment) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func putFrame(dst []byte, seq uint64, payload []byte) {
	binary.LittleEndian.PutUint32(dst[magicOffset:], frameMagic)
	binary.LittleEndian.PutUint32(dst[lengthOffset:], uint32(len(payload)))
	binary.LittleEndian.PutUint64(dst[sequenceOffset:], seq)
	binary.LittleEndian.PutUint64(dst[checksumOffset:], xxhash.Sum64(payload))
	copy(dst[HeaderSize:], payload)
}

func parseFrame(mem []byte) (Frame, error) {
	if len(mem) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptSegment, len(mem))
	}
	if magic := binary.LittleEndian.Uint32(mem[magicOffset:]); magic != frameMagic {
		return Frame{}, fmt.Errorf("%w: bad magic %#x", ErrCorruptSegment, magic)
	}
	length := int(binary.LittleEndian.Uint32(mem[lengthOffset:]))
	if length != len(mem)-HeaderSize {
		return Frame{}, fmt.Errorf("%w: header length %d, segment holds %d", ErrCorruptSegment, length, len(mem)-HeaderSize)
	}
	payload := make([]byte, length)
	copy(payload, mem[HeaderSize:])
	if sum := xxhash.Sum64(payload); sum != binary.LittleEndian.Uint64(mem[checksumOffset:]) {
		return Frame{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptSegment)
	}
	return Frame{
		Sequence: binary.LittleEndian.Uint64(mem[sequenceOffset:]),
		Payload:  payload,
	}, nil
}
