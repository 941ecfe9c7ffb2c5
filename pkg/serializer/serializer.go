package serializer

import (
	"encoding"
	"encoding/gob"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/proto"
)

var (
	// ErrUnsupportedType is returned by New for types no strategy can represent.
	ErrUnsupportedType = errors.New("serializer: unsupported type")
	// ErrInvalidUTF8 is returned when a string value holds invalid UTF-8.
	ErrInvalidUTF8 = errors.New("serializer: string is not valid UTF-8")
)

// Strategy identifies an encoding.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	StrategyProto
	StrategyBinary
	StrategyString
	StrategyFixedWidth
	StrategyObjectGraph
)

func (s Strategy) String() string {
	switch s {
	case StrategyProto:
		return "proto"
	case StrategyBinary:
		return "binary"
	case StrategyString:
		return "string"
	case StrategyFixedWidth:
		return "fixed-width"
	case StrategyObjectGraph:
		return "object-graph"
	default:
		return "unknown"
	}
}

// Serializer converts values of T to bytes and back.
type Serializer[T any] interface {
	Serialize(value T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

type classification struct {
	strategy Strategy
	err      error
}

var classified sync.Map // reflect.Type -> classification

var (
	protoMessageType      = reflect.TypeOf((*proto.Message)(nil)).Elem()
	binaryMarshalerType   = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	binaryUnmarshalerType = reflect.TypeOf((*encoding.BinaryUnmarshaler)(nil)).Elem()
	textMarshalerType     = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	gobEncoderType        = reflect.TypeOf((*gob.GobEncoder)(nil)).Elem()
)

// StrategyOf returns the cached strategy for T, classifying it on first use.
func StrategyOf[T any]() (Strategy, error) {
	t := reflectTypeOf[T]()
	if c, ok := classified.Load(t); ok {
		c := c.(classification)
		return c.strategy, c.err
	}
	s, err := classify(t)
	c, _ := classified.LoadOrStore(t, classification{strategy: s, err: err})
	return c.(classification).strategy, c.(classification).err
}

// New returns the serializer for T.
func New[T any]() (Serializer[T], error) {
	s, err := StrategyOf[T]()
	if err != nil {
		return nil, err
	}
	switch s {
	case StrategyProto:
		return newProtoSerializer[T](), nil
	case StrategyBinary:
		return binarySerializer[T]{}, nil
	case StrategyString:
		return stringSerializer[T]{}, nil
	case StrategyFixedWidth:
		return fixedWidthSerializer[T]{}, nil
	default:
		return objectGraphSerializer[T]{}, nil
	}
}

// MustNew is like New but panics on unsupported types.
func MustNew[T any]() Serializer[T] {
	s, err := New[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func classify(t reflect.Type) (Strategy, error) {
	if t.Kind() == reflect.Interface {
		return StrategyUnknown, fmt.Errorf("%w: %s is an interface", ErrUnsupportedType, t)
	}
	if t.Implements(protoMessageType) {
		if t.Kind() != reflect.Pointer {
			return StrategyUnknown, fmt.Errorf("%w: proto message %s must be a pointer", ErrUnsupportedType, t)
		}
		return StrategyProto, nil
	}
	if t.Implements(binaryMarshalerType) &&
		(reflect.PointerTo(t).Implements(binaryUnmarshalerType) ||
			t.Kind() == reflect.Pointer && t.Implements(binaryUnmarshalerType)) {
		return StrategyBinary, nil
	}
	if t.Kind() == reflect.String {
		return StrategyString, nil
	}
	fixed, err := walk(t, make(map[reflect.Type]bool))
	if err != nil {
		return StrategyUnknown, err
	}
	if fixed {
		return StrategyFixedWidth, nil
	}
	return StrategyObjectGraph, nil
}

// walk reports whether t is made only of fixed-size primitives, and fails for
// anything no strategy can carry.
func walk(t reflect.Type, seen map[reflect.Type]bool) (bool, error) {
	if marshalsItself(t) {
		return false, nil
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true, nil
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		// platform sized, no fixed layout
		return false, nil
	case reflect.Array:
		return walk(t.Elem(), seen)
	case reflect.Struct:
		if seen[t] {
			return false, nil
		}
		seen[t] = true
		fixed := true
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() && f.Name != "_" {
				return false, fmt.Errorf("%w: %s has unexported field %s", ErrUnsupportedType, t, f.Name)
			}
			ok, err := walk(f.Type, seen)
			if err != nil {
				return false, err
			}
			fixed = fixed && ok
		}
		return fixed, nil
	case reflect.String, reflect.Interface:
		return false, nil
	case reflect.Pointer, reflect.Slice:
		if _, err := walk(t.Elem(), seen); err != nil {
			return false, err
		}
		return false, nil
	case reflect.Map:
		if _, err := walk(t.Key(), seen); err != nil {
			return false, err
		}
		if _, err := walk(t.Elem(), seen); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, t, t.Kind())
	}
}

// marshalsItself reports whether gob encodes t through its own methods, so its
// fields never need to be inspected.
func marshalsItself(t reflect.Type) bool {
	if t.Kind() == reflect.Interface {
		return false
	}
	for _, m := range []reflect.Type{gobEncoderType, binaryMarshalerType, textMarshalerType} {
		if t.Implements(m) || reflect.PointerTo(t).Implements(m) {
			return true
		}
	}
	return false
}

func reflectTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
