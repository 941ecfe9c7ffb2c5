//go:build linux

package signal

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	Sensor uint16
	Value  float64
	Flags  [4]bool
}

func TestSharedBufferFixedWidth(t *testing.T) {
	f := newTestFactory(t, nil)
	b, err := NewSharedBuffer[reading](f, "reading")
	require.NoError(t, err)
	assert.False(t, b.Exists())

	want := reading{Sensor: 3, Value: 21.5, Flags: [4]bool{true, false, true, false}}
	require.NoError(t, b.SetBuffer(context.Background(), want, 11))
	assert.True(t, b.Exists())

	got, seq, err := b.GetBuffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(11), seq)
	assert.Equal(t, 1.0, metricValue(t, f.Gatherer(), "plugin_signal_payload_bytes", nil))
}

func TestSharedBufferStringShrinks(t *testing.T) {
	f := newTestFactory(t, nil)
	b, err := NewSharedBuffer[string](f, "text")
	require.NoError(t, err)

	require.NoError(t, b.SetBuffer(context.Background(), "a much longer first value", 1))
	require.NoError(t, b.SetBuffer(context.Background(), "short", 2))
	got, seq, err := b.GetBuffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short", got)
	assert.Equal(t, uint64(2), seq)
}

func TestSharedBufferObjectGraph(t *testing.T) {
	f := newTestFactory(t, nil)
	b, err := NewSharedBuffer[map[string][]int](f, "graph")
	require.NoError(t, err)

	want := map[string][]int{"a": {1, 2}, "b": nil}
	require.NoError(t, b.SetBuffer(context.Background(), want, 4))
	got, _, err := b.GetBuffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got["a"])
	assert.Contains(t, got, "a")
}

func TestSharedBufferMissing(t *testing.T) {
	f := newTestFactory(t, nil)
	b, err := NewSharedBuffer[int64](f, "missing")
	require.NoError(t, err)
	_, _, err = b.GetBuffer(context.Background())
	assert.ErrorIs(t, err, ErrSegmentNotFound)
	assert.NoError(t, b.Remove())
}

func TestSharedBufferWrongSize(t *testing.T) {
	f := newTestFactory(t, nil)
	wide, err := NewSharedBuffer[int64](f, "width")
	require.NoError(t, err)
	narrow, err := NewSharedBuffer[int16](f, "width")
	require.NoError(t, err)

	require.NoError(t, wide.SetBuffer(context.Background(), 1<<40, 1))
	_, seq, err := narrow.GetBuffer(context.Background())
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, uint64(1), seq)
}

func TestSharedBufferCorrupt(t *testing.T) {
	f := newTestFactory(t, nil)
	b, err := NewSharedBuffer[int64](f, "corrupt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(b.Path(), []byte("not a frame at all, garbage bytes"), 0o600))

	_, _, err = b.GetBuffer(context.Background())
	assert.ErrorIs(t, err, ErrCorruptSegment)
}

func TestSharedBufferTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxPayloadSize = 8
	f := newTestFactory(t, cfg)
	b, err := NewSharedBuffer[string](f, "big")
	require.NoError(t, err)
	assert.ErrorIs(t, b.SetBuffer(context.Background(), "more than eight bytes", 1), ErrPayloadTooLarge)
}

func TestSharedBufferUnsupported(t *testing.T) {
	f := newTestFactory(t, nil)
	_, err := NewSharedBuffer[func()](f, "fn")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
