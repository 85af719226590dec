package iterz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// DType identifies the element type of a Value.
type DType uint8

const (
	// Int64 is a signed 64-bit integer.
	Int64 DType = iota + 1
	// Float64 is an IEEE-754 double.
	Float64
	// Bool is a single boolean.
	Bool
	// String is a UTF-8 string.
	String
	// Bytes is an opaque byte payload.
	Bytes
)

// String returns the type name for diagnostics.
func (d DType) String() string {
	switch d {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Shape describes the dimensions of a Value. A dimension of -1 is unknown.
// The zero-length shape is a scalar.
type Shape []int64

// ScalarShape returns the shape of a scalar value.
func ScalarShape() Shape { return Shape{} }

// UnknownDim marks a dimension whose extent is not statically known.
const UnknownDim int64 = -1

// Compatible reports whether a concrete shape satisfies s, treating
// unknown dimensions in s as wildcards.
func (s Shape) Compatible(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i, d := range s {
		if d != UnknownDim && other[i] != UnknownDim && d != other[i] {
			return false
		}
	}
	return true
}

// Value is one typed element of a Record: a dtype, a shape and a byte
// payload. Assigning a Value copies the header but shares the payload
// buffer, which is the ownership transfer ("move") used by short-circuit
// plans. Clone produces an independent deep copy.
//
// Values are immutable by convention: nothing in this library writes into
// a payload buffer after the Value is constructed.
type Value struct {
	shape Shape
	buf   []byte
	dtype DType
}

// Int64Value returns a scalar int64 Value.
func Int64Value(v int64) Value {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return Value{dtype: Int64, shape: ScalarShape(), buf: buf}
}

// Float64Value returns a scalar float64 Value.
func Float64Value(v float64) Value {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return Value{dtype: Float64, shape: ScalarShape(), buf: buf}
}

// BoolValue returns a scalar bool Value.
func BoolValue(v bool) Value {
	buf := make([]byte, 1)
	if v {
		buf[0] = 1
	}
	return Value{dtype: Bool, shape: ScalarShape(), buf: buf}
}

// StringValue returns a scalar string Value.
func StringValue(s string) Value {
	return Value{dtype: String, shape: ScalarShape(), buf: []byte(s)}
}

// BytesValue returns a scalar bytes Value. The payload is copied so the
// caller retains ownership of b.
func BytesValue(b []byte) Value {
	return Value{dtype: Bytes, shape: ScalarShape(), buf: slices.Clone(b)}
}

// TensorValue returns a Value with an explicit dtype, shape and raw payload.
// The payload is copied.
func TensorValue(dtype DType, shape Shape, payload []byte) Value {
	return Value{dtype: dtype, shape: slices.Clone(shape), buf: slices.Clone(payload)}
}

// DType returns the element type.
func (v Value) DType() DType { return v.dtype }

// Shape returns the value's shape. The returned slice must not be modified.
func (v Value) Shape() Shape { return v.shape }

// Len returns the payload size in bytes.
func (v Value) Len() int { return len(v.buf) }

// Int64 decodes a scalar int64 payload. The result is unspecified for
// other dtypes.
func (v Value) Int64() int64 {
	if len(v.buf) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(v.buf))
}

// Float64 decodes a scalar float64 payload.
func (v Value) Float64() float64 {
	if len(v.buf) < 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.buf))
}

// Bool decodes a scalar bool payload.
func (v Value) Bool() bool {
	return len(v.buf) > 0 && v.buf[0] != 0
}

// Str decodes a string payload.
func (v Value) Str() string { return string(v.buf) }

// Bytes returns the raw payload. The returned slice must not be modified.
func (v Value) Bytes() []byte { return v.buf }

// Clone returns a deep copy of the value with an independent payload buffer.
func (v Value) Clone() Value {
	return Value{dtype: v.dtype, shape: slices.Clone(v.shape), buf: slices.Clone(v.buf)}
}

// Equal reports whether two values have the same dtype, shape and payload.
func (v Value) Equal(other Value) bool {
	return v.dtype == other.dtype &&
		slices.Equal(v.shape, other.shape) &&
		bytes.Equal(v.buf, other.buf)
}

// String renders the value for diagnostics.
func (v Value) String() string {
	switch v.dtype {
	case Int64:
		return fmt.Sprintf("%d", v.Int64())
	case Float64:
		return fmt.Sprintf("%g", v.Float64())
	case Bool:
		return fmt.Sprintf("%t", v.Bool())
	case String:
		return fmt.Sprintf("%q", v.Str())
	default:
		return fmt.Sprintf("%s[%d bytes]", v.dtype, len(v.buf))
	}
}

// sharesBuffer reports whether two values alias the same payload storage.
func (v Value) sharesBuffer(other Value) bool {
	return len(v.buf) > 0 && len(other.buf) > 0 && &v.buf[0] == &other.buf[0]
}

// Record is an ordered tuple of values flowing through the pipeline. Arity
// and element types are fixed per dataset.
type Record []Value

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for i, v := range r {
		out[i] = v.Clone()
	}
	return out
}

// Equal reports whether two records are element-wise equal.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for i, v := range r {
		if !v.Equal(other[i]) {
			return false
		}
	}
	return true
}

// CloneValues returns a deep copy of a value slice.
func CloneValues(values []Value) []Value {
	if values == nil {
		return nil
	}
	out := make([]Value, len(values))
	for i, v := range values {
		out[i] = v.Clone()
	}
	return out
}
