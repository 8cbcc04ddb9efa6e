package message

import "fmt"

// DataspaceType distinguishes scalar, simple and null dataspaces.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Dataspace is the shape of a dataset or attribute.
type Dataspace struct {
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // nil when equal to Dimensions
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// Rank returns the number of dimensions.
func (m *Dataspace) Rank() int { return len(m.Dimensions) }

// NumElements returns the element count: 1 for scalars, 0 for null spaces.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
	return 0
}

func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }
func (m *Dataspace) IsNull() bool   { return m.SpaceType == DataspaceNull }

func decodeDataspace(d *decoder) *Dataspace {
	version := d.u8()
	rank := int(d.u8())
	flags := d.u8()
	m := &Dataspace{SpaceType: DataspaceSimple}
	switch version {
	case 1:
		d.skip(5)
		if rank == 0 {
			m.SpaceType = DataspaceScalar
		}
	case 2:
		m.SpaceType = DataspaceType(d.u8())
	default:
		d.fail(fmt.Errorf("unsupported dataspace version %d", version))
		return m
	}
	if m.SpaceType != DataspaceSimple {
		return m
	}
	m.Dimensions = make([]uint64, rank)
	for i := range m.Dimensions {
		m.Dimensions[i] = d.length()
	}
	if flags&0x01 != 0 {
		m.MaxDims = make([]uint64, rank)
		for i := range m.MaxDims {
			m.MaxDims[i] = d.length()
		}
	}
	return m
}

func (m *Dataspace) encode(e *encoder) {
	var flags uint8
	if len(m.MaxDims) > 0 {
		flags = 0x01
	}
	e.u8(2)
	e.u8(uint8(len(m.Dimensions)))
	e.u8(flags)
	e.u8(uint8(m.SpaceType))
	for _, n := range m.Dimensions {
		e.length(n)
	}
	if flags != 0 {
		for _, n := range m.MaxDims {
			e.length(n)
		}
	}
}

// NewDataspace returns a simple dataspace. maxDims may be nil.
func NewDataspace(dims, maxDims []uint64) *Dataspace {
	return &Dataspace{SpaceType: DataspaceSimple, Dimensions: dims, MaxDims: maxDims}
}

func NewScalarDataspace() *Dataspace { return &Dataspace{SpaceType: DataspaceScalar} }
func NewNullDataspace() *Dataspace   { return &Dataspace{SpaceType: DataspaceNull} }
