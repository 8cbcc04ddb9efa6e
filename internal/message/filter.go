package message

// Registered filter identifiers.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// IsOptional reports whether chunks may skip this filter.
func (f *FilterInfo) IsOptional() bool { return f.Flags&0x01 != 0 }

// FilterPipeline lists the filters applied to each chunk, in write order.
type FilterPipeline struct {
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

func decodeFilterPipeline(d *decoder) *FilterPipeline {
	version := d.u8()
	n := int(d.u8())
	if version == 1 {
		d.skip(6)
	}
	m := &FilterPipeline{Filters: make([]FilterInfo, 0, n)}
	for range n {
		var f FilterInfo
		f.ID = d.u16()
		var nameLen int
		if version == 1 || f.ID >= 256 {
			nameLen = int(d.u16())
		}
		f.Flags = d.u16()
		values := int(d.u16())
		if nameLen > 0 {
			start := d.pos
			f.Name = d.fixedString(nameLen)
			if version == 1 {
				d.alignFrom(start, 8)
			}
		}
		f.ClientData = make([]uint32, values)
		for i := range f.ClientData {
			f.ClientData[i] = d.u32()
		}
		if version == 1 && values%2 != 0 {
			d.skip(4)
		}
		if d.err != nil {
			return m
		}
		m.Filters = append(m.Filters, f)
	}
	return m
}

func (m *FilterPipeline) encode(e *encoder) {
	e.u8(2)
	e.u8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		e.u16(f.ID)
		if f.ID >= 256 {
			e.u16(uint16(len(f.Name) + 1))
		}
		e.u16(f.Flags)
		e.u16(uint16(len(f.ClientData)))
		if f.ID >= 256 {
			e.cstring(f.Name)
		}
		for _, v := range f.ClientData {
			e.u32(v)
		}
	}
}
