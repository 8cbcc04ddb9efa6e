package message

import (
	"fmt"
	"math/bits"
)

// DatatypeClass is the class field of a datatype message.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

// ByteOrder is the byte order of a numeric datatype.
type ByteOrder uint8

const (
	OrderLE ByteOrder = 0
	OrderBE ByteOrder = 1
)

// StringPadding says how a fixed length string fills unused bytes.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharacterSet is the encoding of string data.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype describes the layout of one element.
type Datatype struct {
	Class   DatatypeClass
	Version uint8
	Size    uint32

	ByteOrder     ByteOrder
	Signed        bool
	StringPadding StringPadding
	CharSet       CharacterSet

	Members []CompoundMember

	// BaseType is the element of an array or variable length type and the
	// storage type of an enum.
	BaseType       *Datatype
	ArrayDims      []uint32
	IsVarLenString bool

	EnumNames  []string
	EnumValues [][]byte

	bits  uint32
	props []byte
}

// CompoundMember is one field of a compound datatype.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

func (dt *Datatype) Type() Type { return TypeDatatype }

// IsVarLen reports whether elements are variable length sequences or
// strings stored in the global heap.
func (dt *Datatype) IsVarLen() bool { return dt.Class == ClassVarLen }

// Member returns the compound member called name.
func (dt *Datatype) Member(name string) (CompoundMember, bool) {
	for _, m := range dt.Members {
		if m.Name == name {
			return m, true
		}
	}
	return CompoundMember{}, false
}

// memberOffsetWidth is the width of a member offset in a version 3 compound
// of the given size.
func memberOffsetWidth(size uint32) int {
	return (bits.Len32(size)-1)/8 + 1
}

func decodeDatatype(d *decoder) *Datatype {
	cv := d.u8()
	dt := &Datatype{Class: DatatypeClass(cv & 0x0F), Version: cv >> 4}
	dt.bits = uint32(d.uint(3))
	dt.Size = d.u32()
	if d.err != nil {
		return dt
	}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(dt.bits & 0x01)
		dt.Signed = dt.Class == ClassFixedPoint && dt.bits&0x08 != 0
		dt.props = append([]byte(nil), d.take(4)...)
	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(dt.bits & 0x01)
		dt.props = append([]byte(nil), d.take(12)...)
	case ClassTime:
		dt.ByteOrder = ByteOrder(dt.bits & 0x01)
		dt.props = append([]byte(nil), d.take(2)...)
	case ClassString:
		dt.StringPadding = StringPadding(dt.bits & 0x0F)
		dt.CharSet = CharacterSet(dt.bits >> 4 & 0x0F)
	case ClassOpaque:
		dt.props = append([]byte(nil), d.take(int(dt.bits&0xFF))...)
	case ClassReference:
	case ClassCompound:
		decodeMembers(d, dt)
	case ClassEnum:
		decodeEnum(d, dt)
	case ClassVarLen:
		dt.IsVarLenString = dt.bits&0x0F == 1
		dt.StringPadding = StringPadding(dt.bits >> 4 & 0x0F)
		dt.CharSet = CharacterSet(dt.bits >> 8 & 0x0F)
		dt.BaseType = decodeDatatype(d)
	case ClassArray:
		n := int(d.u8())
		if dt.Version < 3 {
			d.skip(3)
		}
		dt.ArrayDims = make([]uint32, n)
		for i := range dt.ArrayDims {
			dt.ArrayDims[i] = d.u32()
		}
		if dt.Version < 3 {
			d.skip(4 * n)
		}
		dt.BaseType = decodeDatatype(d)
	default:
		d.fail(fmt.Errorf("unsupported datatype class %d", dt.Class))
	}
	return dt
}

func decodeMembers(d *decoder, dt *Datatype) {
	n := int(dt.bits & 0xFFFF)
	for range n {
		start := d.pos
		m := CompoundMember{Name: d.cstring()}
		if dt.Version < 3 {
			d.alignFrom(start, 8)
			m.ByteOffset = d.u32()
			if dt.Version == 1 {
				// dimensionality, reserved, permutation, reserved, four dimension sizes
				d.skip(28)
			}
		} else {
			m.ByteOffset = uint32(d.uint(memberOffsetWidth(dt.Size)))
		}
		m.Type = decodeDatatype(d)
		if d.err != nil {
			return
		}
		dt.Members = append(dt.Members, m)
	}
}

func decodeEnum(d *decoder, dt *Datatype) {
	dt.BaseType = decodeDatatype(d)
	if d.err != nil {
		return
	}
	n := int(dt.bits & 0xFFFF)
	dt.EnumNames = make([]string, n)
	for i := range dt.EnumNames {
		start := d.pos
		dt.EnumNames[i] = d.cstring()
		if dt.Version < 3 {
			d.alignFrom(start, 8)
		}
	}
	dt.EnumValues = make([][]byte, n)
	for i := range dt.EnumValues {
		dt.EnumValues[i] = append([]byte(nil), d.take(int(dt.BaseType.Size))...)
	}
}

func (dt *Datatype) encode(e *encoder) {
	version := uint8(1)
	classBits := dt.bits
	switch dt.Class {
	case ClassCompound:
		version = 3
		classBits = uint32(len(dt.Members))
	case ClassEnum:
		version = 3
		classBits = uint32(len(dt.EnumNames))
	case ClassArray:
		version = 3
	case ClassString:
		classBits = uint32(dt.StringPadding) | uint32(dt.CharSet)<<4
	}

	e.u8(uint8(dt.Class) | version<<4)
	e.uint(uint64(classBits), 3)
	e.u32(dt.Size)

	switch dt.Class {
	case ClassCompound:
		width := memberOffsetWidth(dt.Size)
		for _, m := range dt.Members {
			e.cstring(m.Name)
			e.uint(uint64(m.ByteOffset), width)
			m.Type.encode(e)
		}
	case ClassEnum:
		dt.BaseType.encode(e)
		for _, name := range dt.EnumNames {
			e.cstring(name)
		}
		for _, v := range dt.EnumValues {
			e.bytes(v)
		}
	case ClassVarLen:
		dt.BaseType.encode(e)
	case ClassArray:
		e.u8(uint8(len(dt.ArrayDims)))
		for _, n := range dt.ArrayDims {
			e.u32(n)
		}
		dt.BaseType.encode(e)
	case ClassString:
	default:
		e.bytes(dt.props)
	}
}

// NewFixedPointDatatype returns an integer type of size bytes.
func NewFixedPointDatatype(size uint32, signed bool, order ByteOrder) *Datatype {
	classBits := uint32(order)
	if signed {
		classBits |= 0x08
	}
	precision := uint16(size * 8)
	return &Datatype{
		Class:     ClassFixedPoint,
		Size:      size,
		ByteOrder: order,
		Signed:    signed,
		bits:      classBits,
		props:     []byte{0, 0, byte(precision), byte(precision >> 8)},
	}
}

// NewFloatDatatype returns an IEEE 754 float of 4 or 8 bytes.
func NewFloatDatatype(size uint32, order ByteOrder) *Datatype {
	var sign uint32
	var props []byte
	switch size {
	case 4:
		sign = 31
		props = []byte{0, 0, 32, 0, 23, 8, 0, 23, 127, 0, 0, 0}
	default:
		size, sign = 8, 63
		props = []byte{0, 0, 64, 0, 52, 11, 0, 52, 0xFF, 0x03, 0, 0}
	}
	// bit 5: mantissa normalized with an implied leading one
	return &Datatype{
		Class:     ClassFloatPoint,
		Size:      size,
		ByteOrder: order,
		bits:      uint32(order) | 1<<5 | sign<<8,
		props:     props,
	}
}

// NewStringDatatype returns a fixed length string type.
func NewStringDatatype(size uint32, padding StringPadding, charset CharacterSet) *Datatype {
	return &Datatype{
		Class:         ClassString,
		Size:          size,
		StringPadding: padding,
		CharSet:       charset,
	}
}

// NewVarLenStringDatatype returns a variable length string type. Elements
// are heap references of 4 + offset size + 4 bytes; the size assumes 8
// byte offsets.
func NewVarLenStringDatatype(charset CharacterSet) *Datatype {
	return &Datatype{
		Class:          ClassVarLen,
		Size:           16,
		CharSet:        charset,
		IsVarLenString: true,
		bits:           1 | uint32(charset)<<8,
		BaseType:       NewStringDatatype(1, PadNullTerm, charset),
	}
}

// NewCompoundDatatype returns a compound type of size bytes.
func NewCompoundDatatype(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{Class: ClassCompound, Size: size, Members: members}
}

// NewArrayDatatype returns a fixed size array of base.
func NewArrayDatatype(dims []uint32, base *Datatype) *Datatype {
	size := base.Size
	for _, n := range dims {
		size *= n
	}
	return &Datatype{Class: ClassArray, Size: size, ArrayDims: dims, BaseType: base}
}
