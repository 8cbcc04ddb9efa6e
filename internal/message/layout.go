package message

import "fmt"

// LayoutClass says where raw data is stored.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType is the index structure of a chunked dataset. Layouts
// before version 4 always use a version 1 B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingle          ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

func (t ChunkIndexType) String() string {
	switch t {
	case ChunkIndexBTreeV1:
		return "v1 B-tree"
	case ChunkIndexSingle:
		return "single chunk"
	case ChunkIndexImplicit:
		return "implicit"
	case ChunkIndexFixedArray:
		return "fixed array"
	case ChunkIndexExtensibleArray:
		return "extensible array"
	case ChunkIndexBTreeV2:
		return "v2 B-tree"
	}
	return fmt.Sprintf("index type %d", uint8(t))
}

// DataLayout is the storage layout message.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	CompactData []byte

	// Address is the contiguous data or the chunk index; Size is only
	// recorded for contiguous data from version 3 on.
	Address uint64
	Size    uint64

	// ChunkDims has one entry per dataset dimension plus a trailing entry
	// holding the element size.
	ChunkDims []uint32
	IndexType ChunkIndexType

	// Filtered single chunks record their stored size and filter mask.
	SingleChunkSize uint64
	SingleChunkMask uint32
	PageBits        uint8
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func decodeLayout(d *decoder) *DataLayout {
	m := &DataLayout{Version: d.u8()}
	switch m.Version {
	case 1, 2:
		decodeLayoutV1(d, m)
	case 3, 4:
		m.Class = LayoutClass(d.u8())
		switch m.Class {
		case LayoutCompact:
			m.CompactData = append([]byte(nil), d.take(int(d.u16()))...)
		case LayoutContiguous:
			m.Address = d.offset()
			m.Size = d.length()
		case LayoutChunked:
			if m.Version == 3 {
				n := int(d.u8())
				m.Address = d.offset()
				m.ChunkDims = make([]uint32, n)
				for i := range m.ChunkDims {
					m.ChunkDims[i] = d.u32()
				}
			} else {
				decodeChunkedV4(d, m)
			}
		default:
			d.fail(fmt.Errorf("unsupported layout class %d", m.Class))
		}
	default:
		d.fail(fmt.Errorf("unsupported layout version %d", m.Version))
	}
	return m
}

func decodeLayoutV1(d *decoder, m *DataLayout) {
	n := int(d.u8())
	m.Class = LayoutClass(d.u8())
	d.skip(5)
	if m.Class != LayoutCompact {
		m.Address = d.offset()
	}
	dims := make([]uint32, n)
	for i := range dims {
		dims[i] = d.u32()
	}
	switch m.Class {
	case LayoutChunked:
		m.ChunkDims = dims
	case LayoutCompact:
		m.CompactData = append([]byte(nil), d.take(int(d.u32()))...)
	}
}

func decodeChunkedV4(d *decoder, m *DataLayout) {
	flags := d.u8()
	n := int(d.u8())
	width := int(d.u8())
	m.ChunkDims = make([]uint32, n)
	for i := range m.ChunkDims {
		m.ChunkDims[i] = uint32(d.uint(width))
	}
	m.IndexType = ChunkIndexType(d.u8())
	switch m.IndexType {
	case ChunkIndexSingle:
		if flags&0x02 != 0 {
			m.SingleChunkSize = d.length()
			m.SingleChunkMask = d.u32()
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		m.PageBits = d.u8()
	case ChunkIndexExtensibleArray:
		d.skip(5)
	case ChunkIndexBTreeV2:
		d.skip(6)
	default:
		d.fail(fmt.Errorf("unknown chunk index type %d", m.IndexType))
	}
	m.Address = d.offset()
}

func (m *DataLayout) encode(e *encoder) {
	switch m.Class {
	case LayoutCompact:
		e.u8(3)
		e.u8(uint8(m.Class))
		e.u16(uint16(len(m.CompactData)))
		e.bytes(m.CompactData)
	case LayoutContiguous:
		e.u8(3)
		e.u8(uint8(m.Class))
		e.offset(m.Address)
		e.length(m.Size)
	case LayoutChunked:
		e.u8(4)
		e.u8(uint8(m.Class))
		var flags uint8
		if m.IndexType == ChunkIndexSingle && m.SingleChunkSize > 0 {
			flags = 0x02
		}
		var largest uint32
		for _, n := range m.ChunkDims {
			largest = max(largest, n)
		}
		width := sizeBytes(uint64(largest))
		e.u8(flags)
		e.u8(uint8(len(m.ChunkDims)))
		e.u8(uint8(width))
		for _, n := range m.ChunkDims {
			e.uint(uint64(n), width)
		}
		e.u8(uint8(m.IndexType))
		switch m.IndexType {
		case ChunkIndexSingle:
			if flags != 0 {
				e.length(m.SingleChunkSize)
				e.u32(m.SingleChunkMask)
			}
		case ChunkIndexImplicit:
		case ChunkIndexFixedArray:
			e.u8(m.PageBits)
		default:
			e.fail(fmt.Errorf("writing a %v chunk index is not supported", m.IndexType))
		}
		e.offset(m.Address)
	default:
		e.fail(fmt.Errorf("writing layout class %d is not supported", m.Class))
	}
}

// NewCompactLayout stores data inside the object header.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data}
}

// NewContiguousLayout stores size bytes at address.
func NewContiguousLayout(address, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: address, Size: size}
}

// NewChunkedLayout describes chunks of chunkDims elements of elementSize
// bytes. The index address is filled in once the index is written.
func NewChunkedLayout(chunkDims []uint32, elementSize uint32, index ChunkIndexType) *DataLayout {
	dims := append(append([]uint32(nil), chunkDims...), elementSize)
	return &DataLayout{Version: 4, Class: LayoutChunked, ChunkDims: dims, IndexType: index, PageBits: 10}
}
