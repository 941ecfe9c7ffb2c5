// Package serializer picks, once per Go type, how values of that type are turned
// into bytes for a shared memory segment.
//
// Strategies, in order of precedence:
//
//   - StrategyProto: the type implements proto.Message.
//   - StrategyBinary: the type implements encoding.BinaryMarshaler and its pointer
//     implements encoding.BinaryUnmarshaler.
//   - StrategyString: string kinds, encoded as UTF-16LE.
//   - StrategyFixedWidth: bools, sized integers, floats and complex numbers, and
//     arrays and structs built only from those. Encoded as a packed positional
//     layout in native byte order.
//   - StrategyObjectGraph: everything else that gob can carry (pointers, slices,
//     maps, strings inside structs, int/uint). Best effort.
//
// Channels, funcs, unsafe pointers and structs with unexported fields cannot be
// represented and make New fail with ErrUnsupportedType.
package serializer
