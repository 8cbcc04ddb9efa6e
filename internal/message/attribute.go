package message

import "fmt"

// Attribute is a small named value attached to an object header.
type Attribute struct {
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte

	// SharedType is set instead of Datatype when the attribute refers to a
	// committed datatype. Header reading resolves it.
	SharedType *Shared
}

func (m *Attribute) Type() Type { return TypeAttribute }

func decodeAttribute(d *decoder) *Attribute {
	version := d.u8()
	if version < 1 || version > 3 {
		d.fail(fmt.Errorf("unsupported attribute version %d", version))
		return nil
	}
	flags := d.u8()
	nameSize := int(d.u16())
	typeSize := int(d.u16())
	spaceSize := int(d.u16())
	if version == 3 {
		d.skip(1)
	}

	// version 1 pads each field to a multiple of 8 bytes
	field := func(n int) *decoder {
		sub := &decoder{buf: d.take(n), cfg: d.cfg}
		if version == 1 && n%8 != 0 {
			d.skip(8 - n%8)
		}
		return sub
	}

	m := &Attribute{}
	m.Name = field(nameSize).fixedString(nameSize)
	td := field(typeSize)
	if flags&0x01 != 0 {
		m.SharedType = decodeShared(td, TypeDatatype)
	} else {
		m.Datatype = decodeDatatype(td)
	}
	if td.err != nil {
		d.fail(fmt.Errorf("attribute %q datatype: %w", m.Name, td.err))
	}
	sd := field(spaceSize)
	m.Dataspace = decodeDataspace(sd)
	if sd.err != nil {
		d.fail(fmt.Errorf("attribute %q dataspace: %w", m.Name, sd.err))
	}
	m.Data = d.rest()
	return m
}

func (m *Attribute) encode(e *encoder) {
	if m.Datatype == nil {
		e.fail(fmt.Errorf("attribute %q has no datatype", m.Name))
		return
	}
	dt := &encoder{cfg: e.cfg}
	m.Datatype.encode(dt)
	ds := &encoder{cfg: e.cfg}
	m.Dataspace.encode(ds)

	e.u8(3)
	e.u8(0)
	e.u16(uint16(len(m.Name) + 1))
	e.u16(uint16(len(dt.buf)))
	e.u16(uint16(len(ds.buf)))
	e.u8(uint8(CharsetUTF8))
	e.cstring(m.Name)
	e.bytes(dt.buf)
	e.bytes(ds.buf)
	e.bytes(m.Data)
}

// NewAttribute returns an attribute over an explicit dataspace.
func NewAttribute(name string, dt *Datatype, space *Dataspace, data []byte) *Attribute {
	return &Attribute{Name: name, Datatype: dt, Dataspace: space, Data: data}
}

// NewScalarAttribute returns an attribute holding one element.
func NewScalarAttribute(name string, dt *Datatype, data []byte) *Attribute {
	return NewAttribute(name, dt, NewScalarDataspace(), data)
}
