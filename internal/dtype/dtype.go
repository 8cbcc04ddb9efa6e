// Package dtype maps HDF5 datatypes to Go types and converts elements
// between their file encoding and Go values.
//
// Integers and floats map to the Go type of the same size and sign.
// Fixed and variable length strings both map to string. Compounds map to
// structs whose fields carry an `h5:"member"` tag, arrays to flat slices
// of their base type.
package dtype

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// StructTag is the struct tag key naming a compound member.
const StructTag = "h5"

var (
	intTypes = map[uint32]reflect.Type{
		1: reflect.TypeFor[int8](), 2: reflect.TypeFor[int16](),
		4: reflect.TypeFor[int32](), 8: reflect.TypeFor[int64](),
	}
	uintTypes = map[uint32]reflect.Type{
		1: reflect.TypeFor[uint8](), 2: reflect.TypeFor[uint16](),
		4: reflect.TypeFor[uint32](), 8: reflect.TypeFor[uint64](),
	}
	floatTypes = map[uint32]reflect.Type{
		4: reflect.TypeFor[float32](), 8: reflect.TypeFor[float64](),
	}
)

// GoType returns the Go type a value of dt decodes to.
func GoType(dt *message.Datatype) (reflect.Type, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	var t reflect.Type
	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.Signed {
			t = intTypes[dt.Size]
		} else {
			t = uintTypes[dt.Size]
		}
	case message.ClassBitfield:
		t = uintTypes[dt.Size]
	case message.ClassFloatPoint:
		t = floatTypes[dt.Size]
	case message.ClassString:
		return reflect.TypeFor[string](), nil
	case message.ClassOpaque:
		return reflect.TypeFor[[]byte](), nil
	case message.ClassEnum:
		return GoType(dt.BaseType)
	case message.ClassArray:
		elem, err := GoType(dt.BaseType)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case message.ClassVarLen:
		if dt.IsVarLenString {
			return reflect.TypeFor[string](), nil
		}
		elem, err := GoType(dt.BaseType)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case message.ClassCompound:
		return structOf(dt)
	default:
		return nil, fmt.Errorf("%v datatypes have no Go counterpart", dt.Class)
	}
	if t == nil {
		return nil, fmt.Errorf("no Go type for %d byte %v", dt.Size, dt.Class)
	}
	return t, nil
}

// structOf builds a struct type with one tagged field per member.
func structOf(dt *message.Datatype) (reflect.Type, error) {
	fields := make([]reflect.StructField, len(dt.Members))
	for i, m := range dt.Members {
		t, err := GoType(m.Type)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		fields[i] = reflect.StructField{
			Name: fieldName(m.Name, i),
			Type: t,
			Tag:  reflect.StructTag(fmt.Sprintf(`%s:%q`, StructTag, m.Name)),
		}
	}
	return reflect.StructOf(fields), nil
}

// fieldName turns a member name into an exported identifier.
func fieldName(member string, i int) string {
	var b strings.Builder
	for j, r := range member {
		switch {
		case j == 0 && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		name = fmt.Sprintf("F%d%s", i, name)
	}
	return name
}

// field maps a compound member to a struct field index.
type field struct {
	name  string
	index int
}

// structFields lists the exported fields of t in declaration order. A
// field tagged `h5:"-"` is skipped; an untagged field uses its Go name.
func structFields(t reflect.Type) []field {
	var out []field
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup(StructTag); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		out = append(out, field{name: name, index: i})
	}
	return out
}

// Of returns the little endian datatype stored for values of Go type t.
// Slices and arrays map to their innermost element type. Structs become
// compounds packed in field order, the layout numpy record dtypes use.
// Strings have no fixed size; use [OfValue].
func Of(t reflect.Type) (*message.Datatype, error) {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return message.NewFixedPointDatatype(uint32(t.Size()), true, message.OrderLE), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return message.NewFixedPointDatatype(uint32(t.Size()), false, message.OrderLE), nil
	case reflect.Float32, reflect.Float64:
		return message.NewFloatDatatype(uint32(t.Size()), message.OrderLE), nil
	case reflect.Struct:
		return compoundOf(t)
	}
	return nil, fmt.Errorf("no datatype for Go type %v", t)
}

func compoundOf(t reflect.Type) (*message.Datatype, error) {
	fields := structFields(t)
	if len(fields) == 0 {
		return nil, fmt.Errorf("struct %v has no exported fields", t)
	}
	members := make([]message.CompoundMember, len(fields))
	var offset uint32
	for i, f := range fields {
		ft := t.Field(f.index).Type
		switch ft.Kind() {
		case reflect.Struct, reflect.Slice, reflect.Array, reflect.Pointer, reflect.String:
			return nil, fmt.Errorf("member %q: field type %v cannot be packed", f.name, ft)
		}
		mt, err := Of(ft)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", f.name, err)
		}
		members[i] = message.CompoundMember{Name: f.name, ByteOffset: offset, Type: mt}
		offset += mt.Size
	}
	return message.NewCompoundDatatype(offset, members), nil
}

// OfValue is [Of] for a value. Strings and string slices become null
// terminated ASCII strings wide enough for the longest one.
func OfValue(v any) (*message.Datatype, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, fmt.Errorf("no datatype for nil")
	}
	switch {
	case rv.Kind() == reflect.String:
		return message.NewStringDatatype(uint32(rv.Len()+1), message.PadNullTerm, message.CharsetASCII), nil
	case (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() == reflect.String:
		width := 1
		for i := range rv.Len() {
			width = max(width, rv.Index(i).Len()+1)
		}
		return message.NewStringDatatype(uint32(width), message.PadNullTerm, message.CharsetASCII), nil
	}
	return Of(rv.Type())
}

// ByteOrder returns the byte order of dt's elements.
func ByteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// MemberNames lists the members of a compound, or nil for other classes.
func MemberNames(dt *message.Datatype) []string {
	if dt == nil || dt.Class != message.ClassCompound {
		return nil
	}
	names := make([]string, len(dt.Members))
	for i, m := range dt.Members {
		names[i] = m.Name
	}
	return names
}
