// Package heap reads the two heaps of HDF5 metadata: local heaps, which
// hold the link names of symbol table groups, and global heap collections,
// which hold variable-length data such as string attributes.
package heap

import (
	"bytes"
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
)

// Local is a local heap data segment.
type Local struct {
	data []byte
}

// ReadLocal reads the local heap at addr.
func ReadLocal(r *binary.Reader, addr uint64) (*Local, error) {
	hr := r.At(int64(addr))
	if err := expect(hr, "HEAP", 0); err != nil {
		return nil, fmt.Errorf("local heap at %#x: %w", addr, err)
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	if _, err := hr.ReadLength(); err != nil { // free list head
		return nil, err
	}
	dataAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	data, err := r.At(int64(dataAddr)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading local heap data: %w", err)
	}
	return &Local{data: data}, nil
}

// String returns the NUL terminated string at off, or "" when off is
// outside the heap.
func (h *Local) String(off uint64) string {
	if off >= uint64(len(h.data)) {
		return ""
	}
	return cstring(h.data[off:])
}

// Global is a global heap collection.
type Global struct {
	objects map[uint16][]byte
}

// ReadGlobal reads the collection at addr.
func ReadGlobal(r *binary.Reader, addr uint64) (*Global, error) {
	if addr == 0 || r.IsUndefinedOffset(addr) {
		return nil, fmt.Errorf("invalid global heap address %#x", addr)
	}
	hr := r.At(int64(addr))
	if err := expect(hr, "GCOL", 1); err != nil {
		return nil, fmt.Errorf("global heap at %#x: %w", addr, err)
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}

	g := &Global{objects: make(map[uint16][]byte)}
	end := int64(addr) + int64(size)
	objHeader := int64(8 + r.LengthSize())
	for hr.Pos()+objHeader <= end {
		index, err := hr.ReadUint16()
		if err != nil || index == 0 { // index 0 is free space
			break
		}
		hr.Skip(6) // reference count, reserved
		n, err := hr.ReadLength()
		if err != nil {
			return nil, err
		}
		obj, err := hr.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		g.objects[index] = obj
		hr.Skip(int64((8 - n%8) % 8))
	}
	return g, nil
}

// Object returns a copy of object index.
func (g *Global) Object(index uint16) ([]byte, error) {
	obj, ok := g.objects[index]
	if !ok {
		return nil, fmt.Errorf("global heap object %d not found", index)
	}
	return bytes.Clone(obj), nil
}

// ID locates an object in a global heap collection.
type ID struct {
	Collection uint64
	Index      uint32
}

// IDSize is the encoded size of an ID.
func IDSize(offsetSize int) int {
	return offsetSize + 4
}

// ParseID decodes an ID: collection address then 4 byte object index.
func ParseID(b []byte, r *binary.Reader) (ID, error) {
	n := r.OffsetSize()
	if len(b) < IDSize(n) {
		return ID{}, fmt.Errorf("global heap id needs %d bytes, have %d", IDSize(n), len(b))
	}
	order := r.ByteOrder()
	var addr uint64
	switch n {
	case 2:
		addr = uint64(order.Uint16(b))
	case 4:
		addr = uint64(order.Uint32(b))
	case 8:
		addr = order.Uint64(b)
	default:
		return ID{}, fmt.Errorf("unsupported offset size %d", n)
	}
	return ID{Collection: addr, Index: order.Uint32(b[n:])}, nil
}

// Resolver reads global heap objects, caching collections by address.
type Resolver struct {
	r           *binary.Reader
	collections map[uint64]*Global
}

// NewResolver returns a Resolver reading through r.
func NewResolver(r *binary.Reader) *Resolver {
	return &Resolver{r: r, collections: make(map[uint64]*Global)}
}

// Parse decodes an ID stored in the file res reads.
func (res *Resolver) Parse(b []byte) (ID, error) {
	return ParseID(b, res.r)
}

// Object returns the object id refers to. A zero collection address is a
// null reference and yields nil.
func (res *Resolver) Object(id ID) ([]byte, error) {
	if id.Collection == 0 {
		return nil, nil
	}
	g, ok := res.collections[id.Collection]
	if !ok {
		var err error
		if g, err = ReadGlobal(res.r, id.Collection); err != nil {
			return nil, err
		}
		res.collections[id.Collection] = g
	}
	return g.Object(uint16(id.Index))
}

// String returns the object id refers to as a string, cut at the first NUL.
func (res *Resolver) String(id ID) (string, error) {
	obj, err := res.Object(id)
	if err != nil {
		return "", err
	}
	return cstring(obj), nil
}

func expect(r *binary.Reader, sig string, version uint8) error {
	got, err := r.ReadBytes(4)
	if err != nil {
		return err
	}
	if string(got) != sig {
		return fmt.Errorf("signature %q, want %q", got, sig)
	}
	v, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if v != version {
		return fmt.Errorf("unsupported version %d", v)
	}
	r.Skip(3)
	return nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
