package layout

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/btree"
)

// Fixed array client ids.
const (
	faRawChunks      = 0
	faFilteredChunks = 1
)

// block reads n bytes at addr that are followed by a lookup3 checksum and
// returns them as a reader.
func block(r *binary.Reader, addr uint64, n int, sig string) (*binary.Reader, error) {
	b, err := r.At(int64(addr)).ReadBytes(n + 4)
	if err != nil {
		return nil, fmt.Errorf("reading %s at %d: %w", sig, addr, err)
	}
	if sig != "" && string(b[:4]) != sig {
		return nil, fmt.Errorf("no %s signature at %d", sig, addr)
	}
	stored := uint32(b[n]) | uint32(b[n+1])<<8 | uint32(b[n+2])<<16 | uint32(b[n+3])<<24
	if binary.Lookup3Checksum(b[:n]) != stored {
		return nil, fmt.Errorf("%s at %d: checksum mismatch", sig, addr)
	}
	return binary.NewReader(bytes.NewReader(b[:n]), r.Config()), nil
}

// fixedArray reads a fixed array chunk index. Entry k belongs to the k-th
// chunk in row-major order over the maximum dimensions. Large arrays are split into pages, each
// with its own checksum; pages never written are absent from the bitmap.
func (c *chunked) fixedArray() ([]btree.Chunk, error) {
	osz, lsz := c.r.OffsetSize(), c.r.LengthSize()
	hr, err := block(c.r, c.msg.Address, 8+lsz+osz, "FAHD")
	if err != nil {
		return nil, err
	}
	hr.Skip(5)
	client, _ := hr.ReadUint8()
	entrySize, _ := hr.ReadUint8()
	pageBits, _ := hr.ReadUint8()
	total, _ := hr.ReadLength()
	dblk, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if client != faRawChunks && client != faFilteredChunks {
		return nil, fmt.Errorf("fixed array client %d is not a chunk index", client)
	}

	esz := uint64(entrySize)
	prefix := 6 + osz
	perPage := uint64(1) << pageBits
	grid, lead := c.indexGrid()
	var out []btree.Chunk
	decode := func(er *binary.Reader, first, n uint64) error {
		for k := first; k < first+n; k++ {
			ch, err := readEntry(er, client == faFilteredChunks, int(entrySize))
			if err != nil {
				return err
			}
			if !c.r.IsUndefinedOffset(ch.Address) {
				ch.Offset = c.origin(k, grid, lead)
				out = append(out, ch)
			}
		}
		return nil
	}

	if total <= perPage {
		dr, err := block(c.r, dblk, prefix+int(total*esz), "FADB")
		if err != nil {
			return nil, err
		}
		dr.Skip(int64(prefix))
		if err := decode(dr, 0, total); err != nil {
			return nil, err
		}
		return out, nil
	}

	pages := (total + perPage - 1) / perPage
	bitmap := int(pages+7) / 8
	dr, err := block(c.r, dblk, prefix+bitmap, "FADB")
	if err != nil {
		return nil, err
	}
	dr.Skip(int64(prefix))
	init, _ := dr.ReadBytes(bitmap)
	addr := dblk + uint64(prefix+bitmap+4)
	for p := range pages {
		n := min(perPage, total-p*perPage)
		if init[p/8]&(0x80>>(p%8)) != 0 {
			pr, err := block(c.r, addr, int(n*esz), "")
			if err != nil {
				return nil, fmt.Errorf("fixed array page %d: %w", p, err)
			}
			if err := decode(pr, p*perPage, n); err != nil {
				return nil, err
			}
		}
		addr += perPage*esz + 4
	}
	return out, nil
}

// readEntry reads a chunk address entry of an array index. Filtered
// entries add the stored size and the filter mask.
func readEntry(r *binary.Reader, filtered bool, size int) (btree.Chunk, error) {
	var ch btree.Chunk
	var err error
	if ch.Address, err = r.ReadOffset(); err != nil {
		return ch, err
	}
	if filtered {
		n, err := r.ReadUintN(size - r.OffsetSize() - 4)
		if err != nil {
			return ch, err
		}
		ch.Size = uint32(n)
		if ch.FilterMask, err = r.ReadUint32(); err != nil {
			return ch, err
		}
	}
	return ch, nil
}

func appendUint(b []byte, v uint64, n int) []byte {
	for i := range n {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func appendChecksum(b []byte) []byte {
	return appendUint(b, uint64(binary.Lookup3Checksum(b)), 4)
}

// writeFixedArray stores the addresses of unfiltered chunks, in row-major
// grid order, as a fixed array whose single data block is never paged. It
// returns the header address and the page bits recorded in the header.
func writeFixedArray(w *binary.Writer, alloc func(uint64) uint64, addrs []uint64) (uint64, uint8, error) {
	osz, lsz := w.OffsetSize(), w.LengthSize()
	pageBits := uint8(max(10, bits.Len64(uint64(len(addrs)))))

	hdrAddr := alloc(uint64(8 + lsz + osz + 4))
	dblkAddr := alloc(uint64(6 + osz + len(addrs)*osz + 4))

	dblk := append([]byte("FADB"), 0, faRawChunks)
	dblk = appendUint(dblk, hdrAddr, osz)
	for _, a := range addrs {
		dblk = appendUint(dblk, a, osz)
	}
	if err := w.At(int64(dblkAddr)).WriteBytes(appendChecksum(dblk)); err != nil {
		return 0, 0, err
	}

	hdr := append([]byte("FAHD"), 0, faRawChunks, byte(osz), pageBits)
	hdr = appendUint(hdr, uint64(len(addrs)), lsz)
	hdr = appendUint(hdr, dblkAddr, osz)
	if err := w.At(int64(hdrAddr)).WriteBytes(appendChecksum(hdr)); err != nil {
		return 0, 0, err
	}
	return hdrAddr, pageBits, nil
}
