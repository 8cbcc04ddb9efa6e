// Package btree reads version 1 B-trees: the name index of symbol table
// groups and the chunk index of chunked datasets written by the HDF5
// library's default format.
package btree

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/heap"
)

const (
	groupNode = 0
	chunkNode = 1
)

// node reads the header of the "TREE" node at addr and returns a reader
// positioned at its first key.
func node(r *binary.Reader, addr uint64, kind uint8) (nr *binary.Reader, level uint8, entries uint16, err error) {
	nr = r.At(int64(addr))
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("B-tree node at %#x: %w", addr, err)
	}
	if string(sig) != "TREE" {
		return nil, 0, 0, fmt.Errorf("B-tree node at %#x: signature %q", addr, sig)
	}
	hdr, err := nr.ReadBytes(4)
	if err != nil {
		return nil, 0, 0, err
	}
	if hdr[0] != kind {
		return nil, 0, 0, fmt.Errorf("B-tree node at %#x has type %d, want %d", addr, hdr[0], kind)
	}
	nr.Skip(int64(2 * nr.OffsetSize())) // siblings
	return nr, hdr[1], uint16(hdr[2]) | uint16(hdr[3])<<8, nil
}

// GroupEntry is a link stored in a symbol table group.
type GroupEntry struct {
	Name    string
	Address uint64 // object header of a hard link
	Soft    bool
	Target  string // path of a soft link
}

// GroupEntries returns the links of the symbol table group whose B-tree
// is at addr and whose names live in names.
func GroupEntries(r *binary.Reader, addr uint64, names *heap.Local) ([]GroupEntry, error) {
	nr, level, n, err := node(r, addr, groupNode)
	if err != nil {
		return nil, err
	}
	var out []GroupEntry
	for range n {
		nr.Skip(int64(nr.LengthSize())) // key
		child, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		var entries []GroupEntry
		if level == 0 {
			entries, err = symbolNode(r, child, names)
		} else {
			entries, err = GroupEntries(r, child, names)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// symbolNode reads the entries of the "SNOD" node at addr.
func symbolNode(r *binary.Reader, addr uint64, names *heap.Local) ([]GroupEntry, error) {
	nr := r.At(int64(addr))
	hdr, err := nr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("symbol node at %#x: %w", addr, err)
	}
	if string(hdr[:4]) != "SNOD" || hdr[4] != 1 {
		return nil, fmt.Errorf("symbol node at %#x: bad header %q version %d", addr, hdr[:4], hdr[4])
	}
	n := int(hdr[6]) | int(hdr[7])<<8

	var out []GroupEntry
	for range n {
		nameOff, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		objAddr, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		cacheType, err := nr.ReadUint32()
		if err != nil {
			return nil, err
		}
		nr.Skip(4)
		scratch, err := nr.ReadBytes(16)
		if err != nil {
			return nil, err
		}
		e := GroupEntry{Name: names.String(nameOff), Address: objAddr}
		if e.Name == "" {
			continue
		}
		if cacheType == 2 {
			e.Soft = true
			e.Address = 0
			e.Target = names.String(uint64(nr.ByteOrder().Uint32(scratch)))
		}
		out = append(out, e)
	}
	return out, nil
}

// Chunk locates one stored chunk.
type Chunk struct {
	Offset     []uint64 // element coordinates of the chunk's first element
	FilterMask uint32   // bit i set: filter i was skipped
	Size       uint32   // stored size in bytes
	Address    uint64
}

// ChunkEntries returns the chunks of the chunk B-tree at addr for a
// dataset of rank ndims. Unallocated chunks are omitted.
func ChunkEntries(r *binary.Reader, addr uint64, ndims int) ([]Chunk, error) {
	nr, level, n, err := node(r, addr, chunkNode)
	if err != nil {
		return nil, err
	}
	var out []Chunk
	for range n {
		key, err := chunkKey(nr, ndims)
		if err != nil {
			return nil, err
		}
		child, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		if level > 0 {
			sub, err := ChunkEntries(r, child, ndims)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if key.Size > 0 && !r.IsUndefinedOffset(child) {
			key.Address = child
			out = append(out, key)
		}
	}
	return out, nil
}

// chunkKey reads a key: size, filter mask and ndims+1 offsets, the last
// being the element byte offset, which is always 0.
func chunkKey(r *binary.Reader, ndims int) (Chunk, error) {
	var c Chunk
	var err error
	if c.Size, err = r.ReadUint32(); err != nil {
		return c, err
	}
	if c.FilterMask, err = r.ReadUint32(); err != nil {
		return c, err
	}
	c.Offset = make([]uint64, ndims)
	for i := range c.Offset {
		if c.Offset[i], err = r.ReadUint64(); err != nil {
			return c, err
		}
	}
	r.Skip(8)
	return c, nil
}
