package dtype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/cog-neurophys-lab/dh5io/internal/heap"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// Convert decodes n elements of dt from data into dest, a pointer to a
// slice, an array or a single value. A slice is replaced by one of length
// n; a single value receives the first element. Values convert to the
// destination's type where Go allows it, so int16 samples can be read into
// a []float64. res resolves variable length data and may be nil when dt
// has none.
func Convert(dt *message.Datatype, data []byte, n uint64, dest any, res *heap.Resolver) error {
	pv := reflect.ValueOf(dest)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dest)
	}
	size := uint64(dt.Size)
	if need := size * n; uint64(len(data)) < need {
		return fmt.Errorf("%d bytes for %d elements of %d bytes", len(data), n, size)
	}
	d := decoder{heap: res}
	v := pv.Elem()

	switch v.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(v.Type(), int(n), int(n))
		if native(dt, v.Type().Elem()) {
			if _, err := binary.Decode(data[:size*n], ByteOrder(dt), s.Interface()); err != nil {
				return err
			}
		} else {
			for i := range n {
				if err := d.into(s.Index(int(i)), dt, data[i*size:(i+1)*size]); err != nil {
					return fmt.Errorf("element %d: %w", i, err)
				}
			}
		}
		v.Set(s)
		return nil
	case reflect.Array:
		for i := range min(uint64(v.Len()), n) {
			if err := d.into(v.Index(int(i)), dt, data[i*size:(i+1)*size]); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}
	if n == 0 {
		return fmt.Errorf("no element to read into %v", v.Type())
	}
	return d.into(v, dt, data[:size])
}

// native reports whether elements of dt can be decoded straight into a
// slice of t.
func native(dt *message.Datatype, t reflect.Type) bool {
	var want reflect.Type
	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.Signed {
			want = intTypes[dt.Size]
		} else {
			want = uintTypes[dt.Size]
		}
	case message.ClassFloatPoint:
		want = floatTypes[dt.Size]
	}
	return want != nil && t == want
}

type decoder struct {
	heap *heap.Resolver
}

// into stores the element in b in v.
func (d decoder) into(v reflect.Value, dt *message.Datatype, b []byte) error {
	if dt.Class == message.ClassCompound && v.Kind() == reflect.Struct {
		for _, f := range structFields(v.Type()) {
			m, ok := dt.Member(f.name)
			if !ok {
				continue
			}
			end := int(m.ByteOffset + m.Type.Size)
			if end > len(b) {
				return fmt.Errorf("member %q overruns its compound", m.Name)
			}
			if err := d.into(v.Field(f.index), m.Type, b[m.ByteOffset:end]); err != nil {
				return fmt.Errorf("member %q: %w", m.Name, err)
			}
		}
		return nil
	}

	val, err := d.value(dt, b)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(val)
	switch {
	case v.Kind() == reflect.Interface:
		v.Set(rv)
	case v.Kind() == reflect.String && rv.Kind() != reflect.String:
		return fmt.Errorf("cannot store %v in a string", rv.Type())
	case rv.Type().ConvertibleTo(v.Type()) && rv.Kind() != reflect.Slice:
		v.Set(rv.Convert(v.Type()))
	case rv.Kind() == reflect.Slice && v.Kind() == reflect.Slice:
		out := reflect.MakeSlice(v.Type(), rv.Len(), rv.Len())
		for i := range rv.Len() {
			if err := assign(out.Index(i), rv.Index(i)); err != nil {
				return err
			}
		}
		v.Set(out)
	default:
		return fmt.Errorf("cannot store %v in %v", rv.Type(), v.Type())
	}
	return nil
}

func assign(dst, src reflect.Value) error {
	if !src.Type().ConvertibleTo(dst.Type()) {
		return fmt.Errorf("cannot store %v in %v", src.Type(), dst.Type())
	}
	dst.Set(src.Convert(dst.Type()))
	return nil
}

// value decodes one element to its natural Go value, the type GoType
// reports, except that compounds decode to map[string]any.
func (d decoder) value(dt *message.Datatype, b []byte) (any, error) {
	order := ByteOrder(dt)
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassBitfield:
		signed := dt.Signed && dt.Class == message.ClassFixedPoint
		switch dt.Size {
		case 1:
			if signed {
				return int8(b[0]), nil
			}
			return b[0], nil
		case 2:
			if signed {
				return int16(order.Uint16(b)), nil
			}
			return order.Uint16(b), nil
		case 4:
			if signed {
				return int32(order.Uint32(b)), nil
			}
			return order.Uint32(b), nil
		case 8:
			if signed {
				return int64(order.Uint64(b)), nil
			}
			return order.Uint64(b), nil
		}
	case message.ClassFloatPoint:
		switch dt.Size {
		case 4:
			return math.Float32frombits(order.Uint32(b)), nil
		case 8:
			return math.Float64frombits(order.Uint64(b)), nil
		}
	case message.ClassString:
		return fixedString(b, dt.StringPadding), nil
	case message.ClassOpaque:
		return bytes.Clone(b), nil
	case message.ClassEnum:
		return d.value(dt.BaseType, b)
	case message.ClassArray:
		return d.sequence(dt.BaseType, b)
	case message.ClassCompound:
		out := make(map[string]any, len(dt.Members))
		for _, m := range dt.Members {
			if int(m.ByteOffset+m.Type.Size) > len(b) {
				return nil, fmt.Errorf("member %q overruns its compound", m.Name)
			}
			v, err := d.value(m.Type, b[m.ByteOffset:m.ByteOffset+m.Type.Size])
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			out[m.Name] = v
		}
		return out, nil
	case message.ClassVarLen:
		return d.varLen(dt, b)
	}
	return nil, fmt.Errorf("cannot decode %d byte %v", dt.Size, dt.Class)
}

// sequence decodes consecutive elements of base into a typed slice.
func (d decoder) sequence(base *message.Datatype, b []byte) (any, error) {
	t, err := GoType(base)
	if err != nil {
		return nil, err
	}
	size := int(base.Size)
	if size == 0 {
		return nil, fmt.Errorf("zero sized %v element", base.Class)
	}
	out := reflect.MakeSlice(reflect.SliceOf(t), len(b)/size, len(b)/size)
	for i := range out.Len() {
		if err := d.into(out.Index(i), base, b[i*size:(i+1)*size]); err != nil {
			return nil, err
		}
	}
	return out.Interface(), nil
}

// varLen resolves a variable length element: a 4 byte element count
// followed by a global heap id.
func (d decoder) varLen(dt *message.Datatype, b []byte) (any, error) {
	if d.heap == nil {
		return nil, fmt.Errorf("variable length data needs the file's global heap")
	}
	id, err := d.heap.Parse(b[4:])
	if err != nil {
		return nil, err
	}
	if dt.IsVarLenString {
		return d.heap.String(id)
	}
	obj, err := d.heap.Object(id)
	if err != nil {
		return nil, err
	}
	return d.sequence(dt.BaseType, obj)
}

// fixedString cuts b at its first NUL and trims space padding.
func fixedString(b []byte, pad message.StringPadding) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if pad == message.PadSpacePad {
		b = bytes.TrimRight(b, " ")
	}
	return string(b)
}
