package btree

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
)

// Version 2 B-tree record types that index dataset chunks.
const (
	v2RawChunks      = 10
	v2FilteredChunks = 11
)

// v2tree holds the node geometry of a version 2 B-tree. Every node is
// nodeSize bytes but only the used prefix is checksummed.
type v2tree struct {
	r        *binary.Reader
	typ      uint8
	rrec     int // record size
	nrecSize int // width of a child's record count
	cumSize  []int
	chunk    []uint64
}

// encSize is the number of bytes needed to store counts up to n.
func encSize(n uint64) int {
	return (bits.Len64(n)-1)/8 + 1
}

// checked reads n bytes at addr, verifies the checksum that follows them
// and returns them as a reader.
func checked(r *binary.Reader, addr uint64, n int, sig string) (*binary.Reader, error) {
	b, err := r.At(int64(addr)).ReadBytes(n + 4)
	if err != nil {
		return nil, fmt.Errorf("%s at %#x: %w", sig, addr, err)
	}
	if string(b[:4]) != sig {
		return nil, fmt.Errorf("no %s signature at %#x", sig, addr)
	}
	stored := uint32(b[n]) | uint32(b[n+1])<<8 | uint32(b[n+2])<<16 | uint32(b[n+3])<<24
	if binary.Lookup3Checksum(b[:n]) != stored {
		return nil, fmt.Errorf("%s at %#x: checksum mismatch", sig, addr)
	}
	return binary.NewReader(bytes.NewReader(b[:n]), r.Config()), nil
}

// ChunkEntriesV2 returns the chunks indexed by the version 2 B-tree whose
// header is at addr. chunk is the chunk shape; records store offsets in
// chunk units. Unallocated chunks are omitted.
func ChunkEntriesV2(r *binary.Reader, addr uint64, chunk []uint64) ([]Chunk, error) {
	osz, lsz := r.OffsetSize(), r.LengthSize()
	hr, err := checked(r, addr, 18+osz+lsz, "BTHD")
	if err != nil {
		return nil, err
	}
	hr.Skip(4)
	version, _ := hr.ReadUint8()
	typ, _ := hr.ReadUint8()
	nodeSize, _ := hr.ReadUint32()
	rrec, _ := hr.ReadUint16()
	depth, _ := hr.ReadUint16()
	hr.Skip(2)
	root, _ := hr.ReadOffset()
	rootN, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("v2 B-tree header version %d", version)
	}

	ndims := len(chunk)
	switch typ {
	case v2RawChunks:
		if int(rrec) != osz+8*ndims {
			return nil, fmt.Errorf("v2 B-tree record size %d for a rank %d dataset", rrec, ndims)
		}
	case v2FilteredChunks:
		if n := int(rrec) - osz - 4 - 8*ndims; n < 1 || n > 8 {
			return nil, fmt.Errorf("v2 B-tree record size %d for a rank %d dataset", rrec, ndims)
		}
	default:
		return nil, fmt.Errorf("v2 B-tree record type %d is not a chunk index", typ)
	}
	if int(nodeSize) <= 10+int(rrec) {
		return nil, fmt.Errorf("v2 B-tree node size %d too small", nodeSize)
	}

	t := &v2tree{r: r, typ: typ, rrec: int(rrec), chunk: chunk}
	leafMax := uint64((int(nodeSize) - 10) / int(rrec))
	t.nrecSize = encSize(leafMax)
	t.cumSize = make([]int, int(depth)+1)
	cum := leafMax
	for d := 1; d <= int(depth); d++ {
		ptr := t.pointerSize(d)
		n := (int(nodeSize) - 10 - ptr) / (int(rrec) + ptr)
		if n < 1 {
			return nil, fmt.Errorf("v2 B-tree node size %d too small for depth %d", nodeSize, depth)
		}
		cum = (uint64(n)+1)*cum + uint64(n)
		t.cumSize[d] = encSize(cum)
	}

	if r.IsUndefinedOffset(root) || rootN == 0 {
		return nil, nil
	}
	var out []Chunk
	if err := t.node(root, int(depth), uint64(rootN), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// pointerSize is the size of a child pointer in an internal node at depth d.
func (t *v2tree) pointerSize(d int) int {
	n := t.r.OffsetSize() + t.nrecSize
	if d > 1 {
		n += t.cumSize[d-1]
	}
	return n
}

// node appends the records of the node at addr and of its children. An
// internal node stores all of its records before its child pointers.
func (t *v2tree) node(addr uint64, depth int, nrec uint64, out *[]Chunk) error {
	sig, size := "BTLF", 6+int(nrec)*t.rrec
	if depth > 0 {
		sig = "BTIN"
		size += int(nrec+1) * t.pointerSize(depth)
	}
	nr, err := checked(t.r, addr, size, sig)
	if err != nil {
		return err
	}
	nr.Skip(4)
	version, _ := nr.ReadUint8()
	typ, _ := nr.ReadUint8()
	if version != 0 || typ != t.typ {
		return fmt.Errorf("%s at %#x: version %d type %d", sig, addr, version, typ)
	}
	for range nrec {
		c, err := t.record(nr)
		if err != nil {
			return err
		}
		if !t.r.IsUndefinedOffset(c.Address) {
			*out = append(*out, c)
		}
	}
	if depth == 0 {
		return nil
	}
	for range nrec + 1 {
		child, err := nr.ReadOffset()
		if err != nil {
			return err
		}
		n, err := nr.ReadUintN(t.nrecSize)
		if err != nil {
			return err
		}
		if depth > 1 {
			nr.Skip(int64(t.cumSize[depth-1]))
		}
		if err := t.node(child, depth-1, n, out); err != nil {
			return err
		}
	}
	return nil
}

func (t *v2tree) record(r *binary.Reader) (Chunk, error) {
	var c Chunk
	var err error
	if c.Address, err = r.ReadOffset(); err != nil {
		return c, err
	}
	if t.typ == v2FilteredChunks {
		size, err := r.ReadUintN(t.rrec - r.OffsetSize() - 4 - 8*len(t.chunk))
		if err != nil {
			return c, err
		}
		c.Size = uint32(size)
		if c.FilterMask, err = r.ReadUint32(); err != nil {
			return c, err
		}
	}
	c.Offset = make([]uint64, len(t.chunk))
	for i := range c.Offset {
		scaled, err := r.ReadUint64()
		if err != nil {
			return c, err
		}
		c.Offset[i] = scaled * t.chunk[i]
	}
	return c, nil
}
