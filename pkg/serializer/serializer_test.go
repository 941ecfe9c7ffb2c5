package serializer

import (
	"encoding/binary"
	"io"
	"math/big"
	"net/url"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type point struct {
	X, Y int32
	W    float64
	On   [2]bool
	Tag  struct{ Kind uint8 }
	_    uint16
}

type label string

type node struct {
	Value int
	Name  string
	Next  *node
}

type withRefs struct {
	ID    int64
	Tags  []string
	Props map[string]float64
}

type stamped struct {
	At time.Time
	V  int64
}

type hidden struct {
	Visible int32
	secret  int32
}

func roundTrip[T any](t *testing.T, want T) T {
	t.Helper()
	s, err := New[T]()
	require.NoError(t, err)
	b, err := s.Serialize(want)
	require.NoError(t, err)
	got, err := s.Deserialize(b)
	require.NoError(t, err)
	return got
}

func TestStrategySelection(t *testing.T) {
	cases := []struct {
		name string
		got  func() (Strategy, error)
		want Strategy
	}{
		{"int32", StrategyOf[int32], StrategyFixedWidth},
		{"float64", StrategyOf[float64], StrategyFixedWidth},
		{"bool", StrategyOf[bool], StrategyFixedWidth},
		{"complex128", StrategyOf[complex128], StrategyFixedWidth},
		{"array", StrategyOf[[4]uint16], StrategyFixedWidth},
		{"struct of primitives", StrategyOf[point], StrategyFixedWidth},
		{"empty struct", StrategyOf[struct{}], StrategyFixedWidth},
		{"string", StrategyOf[string], StrategyString},
		{"named string", StrategyOf[label], StrategyString},
		{"platform int", StrategyOf[int], StrategyObjectGraph},
		{"pointer graph", StrategyOf[*node], StrategyObjectGraph},
		{"struct with refs", StrategyOf[withRefs], StrategyObjectGraph},
		{"slice", StrategyOf[[]int64], StrategyObjectGraph},
		{"map", StrategyOf[map[string]int32], StrategyObjectGraph},
		{"struct with time field", StrategyOf[stamped], StrategyObjectGraph},
		{"big int", StrategyOf[*big.Int], StrategyObjectGraph},
		{"proto", StrategyOf[*wrapperspb.StringValue], StrategyProto},
		{"binary value receiver", StrategyOf[time.Time], StrategyBinary},
		{"binary pointer receiver", StrategyOf[*url.URL], StrategyBinary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.got()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "got %s", got)
		})
	}
}

func TestUnsupportedTypes(t *testing.T) {
	checks := map[string]func() (Strategy, error){
		"chan":              StrategyOf[chan int],
		"func":              StrategyOf[func()],
		"unsafe pointer":    StrategyOf[unsafe.Pointer],
		"struct with chan":  StrategyOf[struct{ C chan int }],
		"slice of funcs":    StrategyOf[[]func()],
		"map of chans":      StrategyOf[map[string]chan int],
		"unexported fields": StrategyOf[hidden],
		"interface":         StrategyOf[error],
	}
	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			_, err := check()
			assert.ErrorIs(t, err, ErrUnsupportedType)
		})
	}
	_, err := New[chan int]()
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Panics(t, func() { MustNew[func()]() })
}

func TestClassificationIsCached(t *testing.T) {
	s1, err1 := StrategyOf[*node]()
	s2, err2 := StrategyOf[*node]()
	assert.Equal(t, s1, s2)
	assert.Equal(t, err1, err2)
	_, ok := classified.Load(reflectTypeOf[*node]())
	assert.True(t, ok)
}

func TestFixedWidthRoundTrip(t *testing.T) {
	assert.Equal(t, int8(-7), roundTrip(t, int8(-7)))
	assert.Equal(t, int16(-30000), roundTrip(t, int16(-30000)))
	assert.Equal(t, int32(42), roundTrip(t, int32(42)))
	assert.Equal(t, int64(-1<<62), roundTrip(t, int64(-1<<62)))
	assert.Equal(t, uint8(255), roundTrip(t, uint8(255)))
	assert.Equal(t, uint16(65535), roundTrip(t, uint16(65535)))
	assert.Equal(t, uint32(1<<31), roundTrip(t, uint32(1<<31)))
	assert.Equal(t, uint64(1<<63), roundTrip(t, uint64(1<<63)))
	assert.Equal(t, float32(3.5), roundTrip(t, float32(3.5)))
	assert.Equal(t, 2.718281828, roundTrip(t, 2.718281828))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, complex(1, -2), roundTrip(t, complex(1, -2)))
	assert.Equal(t, [4]uint16{1, 2, 3, 4}, roundTrip(t, [4]uint16{1, 2, 3, 4}))

	p := point{X: -1, Y: 2, W: 0.5, On: [2]bool{true, false}}
	p.Tag.Kind = 9
	assert.Equal(t, p, roundTrip(t, p))
}

func TestFixedWidthLayout(t *testing.T) {
	type pair struct {
		A uint16
		B uint32
	}
	s := MustNew[pair]()
	b, err := s.Serialize(pair{A: 0x0102, B: 0x03040506})
	require.NoError(t, err)

	want := binary.NativeEndian.AppendUint16(nil, 0x0102)
	want = binary.NativeEndian.AppendUint32(want, 0x03040506)
	assert.Equal(t, want, b)
	assert.Equal(t, 6, Size[pair]())
	assert.Equal(t, -1, Size[*node]())

	_, err = s.Deserialize(b[:3])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStringRoundTrip(t *testing.T) {
	for _, v := range []string{"", "hello", "héllo wörld", "日本語テキスト", "emoji 🎉🚀 surrogate pairs"} {
		assert.Equal(t, v, roundTrip(t, v))
	}
	assert.Equal(t, label("named"), roundTrip(t, label("named")))

	b, err := MustNew[string]().Serialize("A🎉")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x00, 0x3c, 0xd8, 0x89, 0xdf}, b)

	b, err = MustNew[string]().Serialize("")
	require.NoError(t, err)
	assert.Empty(t, b)

	_, err = MustNew[string]().Serialize("a\xffb")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestObjectGraphRoundTrip(t *testing.T) {
	list := &node{Value: 1, Name: "head", Next: &node{Value: 2, Name: "tail"}}
	got := roundTrip(t, list)
	require.NotNil(t, got.Next)
	assert.Equal(t, list.Next.Name, got.Next.Name)
	assert.Equal(t, *list.Next, *got.Next)

	refs := withRefs{ID: 7, Tags: []string{"a", "b"}, Props: map[string]float64{"x": 1.5}}
	assert.Equal(t, refs, roundTrip(t, refs))
	assert.Equal(t, 12345, roundTrip(t, 12345))
	assert.Equal(t, map[string]int32{"one": 1}, roundTrip(t, map[string]int32{"one": 1}))

	_, err := MustNew[*node]().Deserialize([]byte("not gob"))
	assert.Error(t, err)
	_, err = MustNew[*node]().Deserialize(nil)
	assert.Error(t, err)

	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	got2 := roundTrip(t, stamped{At: at, V: 3})
	assert.True(t, at.Equal(got2.At))
	assert.Equal(t, int64(3), got2.V)
	assert.Equal(t, 0, big.NewInt(1<<62).Cmp(roundTrip(t, big.NewInt(1<<62))))
}

func TestObjectGraphNilValues(t *testing.T) {
	s := MustNew[*node]()
	b, err := s.Serialize(nil)
	require.NoError(t, err)
	got, err := s.Deserialize(b)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Nil(t, roundTrip[map[string]int32](t, nil))
	assert.Nil(t, roundTrip[[]int64](t, nil))
}

func TestProtoRoundTrip(t *testing.T) {
	want := wrapperspb.String("over the wire")
	got := roundTrip(t, want)
	assert.True(t, proto.Equal(want, got))

	_, err := MustNew[*wrapperspb.StringValue]().Deserialize([]byte{0xff, 0xff})
	assert.Error(t, err)
}

func TestBinaryRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 42, time.UTC)
	assert.True(t, now.Equal(roundTrip(t, now)))

	u, err := url.Parse("shm://host/chan1?x=1")
	require.NoError(t, err)
	assert.Equal(t, u.String(), roundTrip(t, u).String())
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "fixed-width", StrategyFixedWidth.String())
	assert.Equal(t, "object-graph", StrategyObjectGraph.String())
	assert.Equal(t, "unknown", Strategy(99).String())
}
