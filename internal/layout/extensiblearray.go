package layout

import (
	"fmt"
	"math/bits"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/btree"
)

// extensibleArray reads the chunk index of a dataset with one unlimited
// dimension. Element k belongs to the k-th chunk counted with the
// unlimited dimension slowest. The first elements sit in the index block;
// the rest fill data blocks grouped into super blocks, where block sizes
// and counts double every second super block.
func (c *chunked) extensibleArray() ([]btree.Chunk, error) {
	osz, lsz := c.r.OffsetSize(), c.r.LengthSize()
	hr, err := block(c.r, c.msg.Address, 12+6*lsz+osz, "EAHD")
	if err != nil {
		return nil, err
	}
	hr.Skip(5)
	client, _ := hr.ReadUint8()
	entrySize, _ := hr.ReadUint8()
	maxBits, _ := hr.ReadUint8()
	ibElmts, _ := hr.ReadUint8()
	dblkMin, _ := hr.ReadUint8()
	sblkMinPtrs, _ := hr.ReadUint8()
	pageBits, _ := hr.ReadUint8()
	hr.Skip(int64(4 * lsz))
	maxIdx, _ := hr.ReadLength()
	hr.Skip(int64(lsz))
	iblk, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if client != faRawChunks && client != faFilteredChunks {
		return nil, fmt.Errorf("extensible array client %d is not a chunk index", client)
	}
	if bits.OnesCount8(dblkMin) != 1 || bits.OnesCount8(sblkMinPtrs) != 1 || maxBits >= 64 {
		return nil, fmt.Errorf("extensible array header at %d: bad creation parameters", c.msg.Address)
	}
	if c.r.IsUndefinedOffset(iblk) || maxIdx == 0 {
		return nil, nil
	}

	nsblks := 1 + int(maxBits) - (bits.Len8(dblkMin) - 1)
	ibSblks := 2 * (bits.Len8(sblkMinPtrs) - 1)
	if nsblks < ibSblks {
		return nil, fmt.Errorf("extensible array header at %d: %d super blocks", c.msg.Address, nsblks)
	}
	ndblkAddrs := 2 * (int(sblkMinPtrs) - 1)
	esz := int(entrySize)
	prefix := 6 + osz
	arrOff := (int(maxBits) + 7) / 8
	perPage := uint64(1) << pageBits

	grid, lead := c.indexGrid()
	var out []btree.Chunk
	decode := func(er *binary.Reader, first, n uint64) error {
		for k := first; k < first+n; k++ {
			ch, err := readEntry(er, client == faFilteredChunks, esz)
			if err != nil {
				return err
			}
			if k < maxIdx && !c.r.IsUndefinedOffset(ch.Address) {
				ch.Offset = c.origin(k, grid, lead)
				out = append(out, ch)
			}
		}
		return nil
	}

	ir, err := block(c.r, iblk, prefix+int(ibElmts)*esz+(ndblkAddrs+nsblks-ibSblks)*osz, "EAIB")
	if err != nil {
		return nil, err
	}
	ir.Skip(int64(prefix))
	if err := decode(ir, 0, uint64(ibElmts)); err != nil {
		return nil, err
	}
	addrs := func(r *binary.Reader, n int) ([]uint64, error) {
		a := make([]uint64, n)
		for i := range a {
			var err error
			if a[i], err = r.ReadOffset(); err != nil {
				return nil, err
			}
		}
		return a, nil
	}
	dblks, err := addrs(ir, ndblkAddrs)
	if err != nil {
		return nil, err
	}
	sblks, err := addrs(ir, nsblks-ibSblks)
	if err != nil {
		return nil, err
	}

	// dataBlock decodes the n elements from first on held by the data
	// block at addr. A paged block keeps its pages after its own header;
	// init marks the pages that were written.
	dataBlock := func(addr, first, n uint64, init []byte) error {
		if init == nil {
			dr, err := block(c.r, addr, prefix+arrOff+int(n)*esz, "EADB")
			if err != nil {
				return err
			}
			dr.Skip(int64(prefix + arrOff))
			return decode(dr, first, n)
		}
		if _, err := block(c.r, addr, prefix+arrOff, "EADB"); err != nil {
			return err
		}
		page := addr + uint64(prefix+arrOff+4)
		for p := range n / perPage {
			if init[p/8]&(0x80>>(p%8)) != 0 {
				pr, err := block(c.r, page, int(perPage)*esz, "")
				if err != nil {
					return fmt.Errorf("extensible array page %d at %d: %w", p, addr, err)
				}
				if err := decode(pr, first+p*perPage, perPage); err != nil {
					return err
				}
			}
			page += perPage*uint64(esz) + 4
		}
		return nil
	}

	k := uint64(ibElmts)
	next := 0
	for s := 0; s < nsblks && k < maxIdx; s++ {
		ndblks := 1 << (s / 2)
		n := uint64(dblkMin) << ((s + 1) / 2)
		if s < ibSblks {
			for range ndblks {
				if n > perPage {
					return nil, fmt.Errorf("extensible array data block %d is paged", next)
				}
				if addr := dblks[next]; !c.r.IsUndefinedOffset(addr) && k < maxIdx {
					if err := dataBlock(addr, k, n, nil); err != nil {
						return nil, err
					}
				}
				next++
				k += n
			}
			continue
		}

		addr := sblks[s-ibSblks]
		if c.r.IsUndefinedOffset(addr) {
			k += uint64(ndblks) * n
			continue
		}
		initSize := 0
		if n > perPage {
			initSize = int(n/perPage+7) / 8
		}
		sr, err := block(c.r, addr, prefix+arrOff+ndblks*(initSize+osz), "EASB")
		if err != nil {
			return nil, err
		}
		sr.Skip(int64(prefix + arrOff))
		init, err := sr.ReadBytes(ndblks * initSize)
		if err != nil {
			return nil, err
		}
		sdblks, err := addrs(sr, ndblks)
		if err != nil {
			return nil, err
		}
		for d, daddr := range sdblks {
			if !c.r.IsUndefinedOffset(daddr) && k < maxIdx {
				var bitmap []byte
				if initSize > 0 {
					bitmap = init[d*initSize : (d+1)*initSize]
				}
				if err := dataBlock(daddr, k, n, bitmap); err != nil {
					return nil, err
				}
			}
			k += n
		}
	}
	return out, nil
}
