package layout

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/btree"
	"github.com/cog-neurophys-lab/dh5io/internal/filter"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// chunked stores its elements in equally shaped chunks. Chunks that were
// never written read as zeros.
type chunked struct {
	extent
	r     *binary.Reader
	msg   *message.DataLayout
	chunk []uint64 // chunk shape in elements
	pipe  *filter.Pipeline
}

func newChunked(r *binary.Reader, msg *message.DataLayout, ext extent, pipe *filter.Pipeline) (*chunked, error) {
	if len(msg.ChunkDims) != len(ext.dims)+1 {
		return nil, fmt.Errorf("%d chunk dimensions for a rank %d dataset", len(msg.ChunkDims)-1, len(ext.dims))
	}
	c := &chunked{extent: ext, r: r, msg: msg, pipe: pipe, chunk: make([]uint64, len(ext.dims))}
	for i := range c.chunk {
		if c.chunk[i] = uint64(msg.ChunkDims[i]); c.chunk[i] == 0 {
			return nil, fmt.Errorf("chunk dimension %d is zero", i)
		}
	}
	return c, nil
}

func (c *chunked) Class() message.LayoutClass { return message.LayoutChunked }

func (c *chunked) Read() ([]byte, error) {
	return c.ReadSlice(make([]uint64, len(c.dims)), c.dims)
}

func (c *chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	n, err := c.check(start, count)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	chunks, err := c.index()
	if err != nil {
		return nil, err
	}

	lo, hi := make([]uint64, len(c.dims)), make([]uint64, len(c.dims))
	for _, ch := range chunks {
		if !c.overlap(ch.Offset, start, count, lo, hi) {
			continue
		}
		data, err := c.load(ch)
		if err != nil {
			return nil, err
		}
		size := make([]uint64, len(lo))
		in, at := make([]uint64, len(lo)), make([]uint64, len(lo))
		for i := range lo {
			size[i] = hi[i] - lo[i]
			in[i] = lo[i] - ch.Offset[i]
			at[i] = lo[i] - start[i]
		}
		copyBox(out, count, at, data, c.chunk, in, size, c.esize)
	}
	return out, nil
}

// overlap intersects the chunk at origin with the selection and the
// dataset bounds, leaving the result in lo and hi.
func (c *chunked) overlap(origin, start, count, lo, hi []uint64) bool {
	for i := range c.dims {
		lo[i] = max(origin[i], start[i])
		hi[i] = min(origin[i]+c.chunk[i], start[i]+count[i], c.dims[i])
		if lo[i] >= hi[i] {
			return false
		}
	}
	return true
}

// chunkBytes is the unfiltered size of one chunk.
func (c *chunked) chunkBytes() uint64 {
	n := c.esize
	for _, d := range c.chunk {
		n *= d
	}
	return n
}

// load reads and unfilters one chunk.
func (c *chunked) load(ch btree.Chunk) ([]byte, error) {
	size := uint64(ch.Size)
	if size == 0 {
		size = c.chunkBytes()
	}
	raw, err := c.r.At(int64(ch.Address)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading chunk %v: %w", ch.Offset, err)
	}
	data, err := c.pipe.Decode(raw, ch.FilterMask)
	if err != nil {
		return nil, fmt.Errorf("chunk %v: %w", ch.Offset, err)
	}
	if uint64(len(data)) < c.chunkBytes() {
		return nil, fmt.Errorf("chunk %v holds %d of %d bytes", ch.Offset, len(data), c.chunkBytes())
	}
	return data, nil
}

// grid returns the number of chunks along each dimension.
func (c *chunked) grid() []uint64 {
	g := make([]uint64, len(c.dims))
	for i, d := range c.dims {
		g[i] = (d + c.chunk[i] - 1) / c.chunk[i]
	}
	return g
}

// indexGrid returns the chunk counts used to number chunks in array
// indexes. They follow the maximum dimensions. lead is the unlimited
// dimension, or 0 when there is none; its count is left at 0.
func (c *chunked) indexGrid() (grid []uint64, lead int) {
	grid = make([]uint64, len(c.dims))
	for i, d := range c.dims {
		if c.maxDims != nil {
			if c.r.IsUndefinedLength(c.maxDims[i]) {
				lead = i
				continue
			}
			d = max(d, c.maxDims[i])
		}
		grid[i] = (d + c.chunk[i] - 1) / c.chunk[i]
	}
	return grid, lead
}

// origin converts a linear chunk number into the coordinates of the
// chunk's first element. Chunks are counted in row-major order over grid,
// except that dimension lead varies slowest and is unbounded.
func (c *chunked) origin(k uint64, grid []uint64, lead int) []uint64 {
	o := make([]uint64, len(grid))
	for i := len(grid) - 1; i > 0; i-- {
		d := i
		if i <= lead {
			d = i - 1
		}
		o[d] = k % grid[d] * c.chunk[d]
		k /= grid[d]
	}
	o[lead] = k * c.chunk[lead]
	return o
}

// index lists the allocated chunks.
func (c *chunked) index() ([]btree.Chunk, error) {
	if c.r.IsUndefinedOffset(c.msg.Address) {
		return nil, nil
	}
	switch c.msg.IndexType {
	case message.ChunkIndexBTreeV1:
		return btree.ChunkEntries(c.r, c.msg.Address, len(c.dims))
	case message.ChunkIndexSingle:
		return []btree.Chunk{{
			Offset:     make([]uint64, len(c.dims)),
			FilterMask: c.msg.SingleChunkMask,
			Size:       uint32(c.msg.SingleChunkSize),
			Address:    c.msg.Address,
		}}, nil
	case message.ChunkIndexImplicit:
		grid := c.grid()
		total := uint64(1)
		for _, g := range grid {
			total *= g
		}
		out := make([]btree.Chunk, total)
		for k := range total {
			out[k] = btree.Chunk{Offset: c.origin(k, grid, 0), Address: c.msg.Address + k*c.chunkBytes()}
		}
		return out, nil
	case message.ChunkIndexFixedArray:
		return c.fixedArray()
	case message.ChunkIndexExtensibleArray:
		return c.extensibleArray()
	case message.ChunkIndexBTreeV2:
		return btree.ChunkEntriesV2(c.r, c.msg.Address, c.chunk)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedIndex, c.msg.IndexType)
}
