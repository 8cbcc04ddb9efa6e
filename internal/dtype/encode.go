package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// Encode converts src, a value, a slice or nested slices of values, to
// elements of dt in row-major order.
func Encode(dt *message.Datatype, src any) ([]byte, error) {
	v := flatten(reflect.Indirect(reflect.ValueOf(src)))
	if !v.IsValid() {
		return nil, fmt.Errorf("nothing to encode")
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		one := reflect.New(reflect.SliceOf(v.Type())).Elem()
		v = reflect.Append(one, v)
	}
	if native(dt, v.Type().Elem()) && v.Kind() == reflect.Slice {
		return binary.Append(nil, ByteOrder(dt), v.Interface())
	}

	size := int(dt.Size)
	out := make([]byte, v.Len()*size)
	for i := range v.Len() {
		if err := put(out[i*size:(i+1)*size], dt, v.Index(i)); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

// put encodes v as one element of dt into b, which is dt.Size long.
func put(b []byte, dt *message.Datatype, v reflect.Value) error {
	order := ByteOrder(dt)
	switch dt.Class {
	case message.ClassFixedPoint:
		var x uint64
		switch {
		case v.CanInt():
			x = uint64(v.Int())
		case v.CanUint():
			x = v.Uint()
		default:
			return fmt.Errorf("cannot store %v as an integer", v.Type())
		}
		putUint(b, order, x)
	case message.ClassFloatPoint:
		if !v.CanFloat() && !v.CanInt() {
			return fmt.Errorf("cannot store %v as a float", v.Type())
		}
		f := v.Convert(reflect.TypeFor[float64]()).Float()
		if dt.Size == 4 {
			putUint(b, order, uint64(math.Float32bits(float32(f))))
		} else {
			putUint(b, order, math.Float64bits(f))
		}
	case message.ClassString:
		if v.Kind() != reflect.String {
			return fmt.Errorf("cannot store %v as a string", v.Type())
		}
		n := copy(b, v.String())
		if dt.StringPadding == message.PadSpacePad {
			for i := n; i < len(b); i++ {
				b[i] = ' '
			}
		}
	case message.ClassCompound:
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("cannot store %v as a compound", v.Type())
		}
		for _, f := range structFields(v.Type()) {
			m, ok := dt.Member(f.name)
			if !ok {
				continue
			}
			if err := put(b[m.ByteOffset:m.ByteOffset+m.Type.Size], m.Type, v.Field(f.index)); err != nil {
				return fmt.Errorf("member %q: %w", m.Name, err)
			}
		}
	default:
		return fmt.Errorf("writing %v elements is not supported", dt.Class)
	}
	return nil
}

func putUint(b []byte, order binary.ByteOrder, x uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(x)
	case 2:
		order.PutUint16(b, uint16(x))
	case 4:
		order.PutUint32(b, uint32(x))
	case 8:
		order.PutUint64(b, x)
	}
}

// flatten turns nested slices or arrays into one row-major slice of the
// innermost element type. Other values come back unchanged.
func flatten(v reflect.Value) reflect.Value {
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return v
	}
	leaf := v.Type().Elem()
	if leaf.Kind() != reflect.Slice && leaf.Kind() != reflect.Array {
		return v
	}
	for leaf.Kind() == reflect.Slice || leaf.Kind() == reflect.Array {
		leaf = leaf.Elem()
	}
	out := reflect.MakeSlice(reflect.SliceOf(leaf), 0, v.Len())
	var walk func(reflect.Value)
	walk = func(x reflect.Value) {
		if x.Kind() != reflect.Slice && x.Kind() != reflect.Array {
			out = reflect.Append(out, x)
			return
		}
		for i := range x.Len() {
			walk(x.Index(i))
		}
	}
	walk(v)
	return out
}
