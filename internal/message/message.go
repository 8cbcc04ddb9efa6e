// Package message decodes and encodes the header messages stored in HDF5
// object headers: dataspaces, datatypes, storage layouts, filter pipelines,
// links and attributes. Message bodies are always little endian.
package message

import (
	"errors"
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
)

// Type is a header message type number.
type Type uint16

const (
	TypeNIL                      Type = 0x00
	TypeDataspace                Type = 0x01
	TypeLinkInfo                 Type = 0x02
	TypeDatatype                 Type = 0x03
	TypeFillValueOld             Type = 0x04
	TypeFillValue                Type = 0x05
	TypeLink                     Type = 0x06
	TypeExternalDataFiles        Type = 0x07
	TypeDataLayout               Type = 0x08
	TypeGroupInfo                Type = 0x0A
	TypeFilterPipeline           Type = 0x0B
	TypeAttribute                Type = 0x0C
	TypeObjectComment            Type = 0x0D
	TypeObjectHeaderContinuation Type = 0x10
	TypeSymbolTable              Type = 0x11
	TypeModificationTime         Type = 0x12
	TypeAttributeInfo            Type = 0x15
)

var typeNames = map[Type]string{
	TypeNIL:                      "nil",
	TypeDataspace:                "dataspace",
	TypeLinkInfo:                 "link info",
	TypeDatatype:                 "datatype",
	TypeFillValue:                "fill value",
	TypeLink:                     "link",
	TypeDataLayout:               "data layout",
	TypeGroupInfo:                "group info",
	TypeFilterPipeline:           "filter pipeline",
	TypeAttribute:                "attribute",
	TypeObjectHeaderContinuation: "continuation",
	TypeSymbolTable:              "symbol table",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type 0x%04x", uint16(t))
}

// Message is a decoded header message.
type Message interface {
	Type() Type
}

// FlagShared marks a message whose body is a reference to a shared copy.
const FlagShared = 0x02

var errTruncated = errors.New("truncated")

// Parse decodes the body of a header message. Types this package does not
// interpret come back as *Unknown with the raw body preserved.
func Parse(typ Type, data []byte, flags uint8, cfg binary.Config) (Message, error) {
	d := &decoder{buf: data, cfg: cfg}
	var m Message
	switch {
	case flags&FlagShared != 0 && typ != TypeObjectHeaderContinuation:
		m = decodeShared(d, typ)
	case typ == TypeDataspace:
		m = decodeDataspace(d)
	case typ == TypeDatatype:
		m = decodeDatatype(d)
	case typ == TypeDataLayout:
		m = decodeLayout(d)
	case typ == TypeFillValue:
		m = decodeFillValue(d)
	case typ == TypeFilterPipeline:
		m = decodeFilterPipeline(d)
	case typ == TypeAttribute:
		m = decodeAttribute(d)
	case typ == TypeLink:
		m = decodeLink(d)
	case typ == TypeLinkInfo:
		m = decodeLinkInfo(d)
	case typ == TypeSymbolTable:
		m = &SymbolTable{BTreeAddress: d.offset(), LocalHeapAddress: d.offset()}
	case typ == TypeObjectHeaderContinuation:
		m = &Continuation{Offset: d.offset(), Length: d.length()}
	default:
		return &Unknown{MsgType: typ, Raw: append([]byte(nil), data...)}, nil
	}
	if d.err != nil {
		return nil, fmt.Errorf("%v message: %w", typ, d.err)
	}
	return m, nil
}

// Unknown holds the raw body of a message type that is not interpreted.
type Unknown struct {
	MsgType Type
	Raw     []byte
}

func (m *Unknown) Type() Type { return m.MsgType }

func (m *Unknown) encode(e *encoder) { e.bytes(m.Raw) }

// Continuation points at the next block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

// SymbolTable locates the B-tree and local heap of an old style group.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

type encodable interface {
	Message
	encode(e *encoder)
}

// Marshal encodes the body of m. It fails for messages that are only ever
// read.
func Marshal(m Message, cfg binary.Config) ([]byte, error) {
	em, ok := m.(encodable)
	if !ok {
		return nil, fmt.Errorf("%v message cannot be written", m.Type())
	}
	e := &encoder{cfg: cfg}
	em.encode(e)
	if e.err != nil {
		return nil, fmt.Errorf("encoding %v message: %w", m.Type(), e.err)
	}
	return e.buf, nil
}

// decoder walks a message body. The first out of range read sets err and
// turns every later read into a zero value.
type decoder struct {
	buf []byte
	pos int
	cfg binary.Config
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.fail(errTruncated)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) uint(n int) uint64 {
	var v uint64
	b := d.take(n)
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (d *decoder) u8() uint8      { return uint8(d.uint(1)) }
func (d *decoder) u16() uint16    { return uint16(d.uint(2)) }
func (d *decoder) u32() uint32    { return uint32(d.uint(4)) }
func (d *decoder) u64() uint64    { return d.uint(8) }
func (d *decoder) offset() uint64 { return d.uint(d.cfg.OffsetSize) }
func (d *decoder) length() uint64 { return d.uint(d.cfg.LengthSize) }
func (d *decoder) skip(n int)     { d.take(n) }

// alignFrom skips to the next multiple of n counted from start.
func (d *decoder) alignFrom(start, n int) {
	if rel := d.pos - start; rel%n != 0 {
		d.skip(n - rel%n)
	}
}

// cstring reads up to and including a NUL terminator.
func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	for i := d.pos; i < len(d.buf); i++ {
		if d.buf[i] == 0 {
			s := string(d.buf[d.pos:i])
			d.pos = i + 1
			return s
		}
	}
	d.fail(errors.New("unterminated string"))
	return ""
}

// fixedString reads n bytes and drops everything from the first NUL.
func (d *decoder) fixedString(n int) string {
	b := d.take(n)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (d *decoder) rest() []byte {
	if d.err != nil {
		return nil
	}
	b := append([]byte(nil), d.buf[d.pos:]...)
	d.pos = len(d.buf)
	return b
}

type encoder struct {
	buf []byte
	cfg binary.Config
	err error
}

func (e *encoder) uint(v uint64, n int) {
	for i := range n {
		e.buf = append(e.buf, byte(v>>(8*i)))
	}
}

func (e *encoder) u8(v uint8)       { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16)     { e.uint(uint64(v), 2) }
func (e *encoder) u32(v uint32)     { e.uint(uint64(v), 4) }
func (e *encoder) offset(v uint64)  { e.uint(v, e.cfg.OffsetSize) }
func (e *encoder) length(v uint64)  { e.uint(v, e.cfg.LengthSize) }
func (e *encoder) bytes(b []byte)   { e.buf = append(e.buf, b...) }
func (e *encoder) zeros(n int)      { e.buf = append(e.buf, make([]byte, n)...) }
func (e *encoder) cstring(s string) { e.buf = append(append(e.buf, s...), 0) }

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// sizeBytes returns the narrowest of 1, 2, 4 or 8 bytes that holds v.
func sizeBytes(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	}
	return 8
}
