package message

import "fmt"

// Space allocation times.
const (
	AllocEarly       = 1
	AllocLate        = 2
	AllocIncremental = 3
)

// FillValue says when dataset storage is allocated and what unwritten
// elements read as. A nil Value means the library default of zeros.
type FillValue struct {
	AllocTime uint8
	WriteTime uint8
	Value     []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

func decodeFillValue(d *decoder) *FillValue {
	m := &FillValue{}
	switch v := d.u8(); v {
	case 1, 2:
		m.AllocTime = d.u8()
		m.WriteTime = d.u8()
		defined := d.u8() != 0
		if v == 1 || defined {
			if n := int(d.u32()); n > 0 {
				m.Value = append([]byte(nil), d.take(n)...)
			}
		}
	case 3:
		flags := d.u8()
		m.AllocTime = flags & 0x03
		m.WriteTime = flags >> 2 & 0x03
		if flags&0x20 != 0 {
			m.Value = append([]byte(nil), d.take(int(d.u32()))...)
		}
	default:
		d.fail(fmt.Errorf("unsupported fill value version %d", v))
	}
	return m
}

func (m *FillValue) encode(e *encoder) {
	flags := m.AllocTime&0x03 | (m.WriteTime&0x03)<<2
	if m.Value != nil {
		flags |= 0x20
	}
	e.u8(3)
	e.u8(flags)
	if m.Value != nil {
		e.u32(uint32(len(m.Value)))
		e.bytes(m.Value)
	}
}

// NewFillValue returns the default fill for a dataset whose storage is
// allocated at alloc: zeros written only when the application sets a
// value.
func NewFillValue(alloc uint8) *FillValue {
	return &FillValue{AllocTime: alloc, WriteTime: 2}
}
