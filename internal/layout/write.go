package layout

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// Split cuts data, the row-major elements of a dataset shaped dims, into
// chunks of chunkDims, whose last entry is the element size. Chunks come
// in row-major grid order and edge chunks are padded with zeros.
func Split(data []byte, dims []uint64, chunkDims []uint32) ([][]byte, error) {
	if len(chunkDims) != len(dims)+1 {
		return nil, fmt.Errorf("%d chunk dimensions for a rank %d dataset", len(chunkDims)-1, len(dims))
	}
	c := &chunked{extent: extent{dims: dims, esize: uint64(chunkDims[len(dims)])}, chunk: make([]uint64, len(dims))}
	for i := range dims {
		if c.chunk[i] = uint64(chunkDims[i]); c.chunk[i] == 0 {
			return nil, fmt.Errorf("chunk dimension %d is zero", i)
		}
	}
	if uint64(len(data)) != c.bytes() {
		return nil, fmt.Errorf("%d bytes of data for %d elements of %d bytes", len(data), c.elements(), c.esize)
	}
	if c.elements() == 0 {
		return nil, nil
	}

	grid := c.grid()
	total := uint64(1)
	for _, g := range grid {
		total *= g
	}
	chunks := make([][]byte, total)
	size := make([]uint64, len(dims))
	for k := range total {
		origin := c.origin(k, grid, 0)
		for i := range size {
			size[i] = min(c.chunk[i], dims[i]-origin[i])
		}
		chunks[k] = make([]byte, c.chunkBytes())
		copyBox(chunks[k], c.chunk, make([]uint64, len(dims)), data, dims, origin, size, c.esize)
	}
	return chunks, nil
}

// WriteChunked writes data as chunks of msg.ChunkDims and points msg at
// their index: the single chunk index when one chunk holds everything, a
// fixed array otherwise. Chunks are stored unfiltered.
func WriteChunked(w *binary.Writer, alloc func(uint64) uint64, msg *message.DataLayout, dims []uint64, data []byte) error {
	chunks, err := Split(data, dims, msg.ChunkDims)
	if err != nil {
		return err
	}
	addrs := make([]uint64, len(chunks))
	for i, ch := range chunks {
		addrs[i] = alloc(uint64(len(ch)))
		if err := w.At(int64(addrs[i])).WriteBytes(ch); err != nil {
			return fmt.Errorf("writing chunk %d: %w", i, err)
		}
	}

	switch len(addrs) {
	case 0:
		msg.IndexType, msg.Address = message.ChunkIndexFixedArray, w.UndefinedOffset()
	case 1:
		msg.IndexType, msg.Address = message.ChunkIndexSingle, addrs[0]
		msg.SingleChunkSize, msg.SingleChunkMask = 0, 0
	default:
		addr, pageBits, err := writeFixedArray(w, alloc, addrs)
		if err != nil {
			return fmt.Errorf("writing chunk index: %w", err)
		}
		msg.IndexType, msg.Address, msg.PageBits = message.ChunkIndexFixedArray, addr, pageBits
	}
	return nil
}
