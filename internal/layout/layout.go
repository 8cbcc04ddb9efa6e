// Package layout moves dataset elements between a file and memory for the
// three storage layouts: compact data in the object header, one contiguous
// block, or fixed size chunks located through an index.
//
// Every layout hands out row-major bytes in the file's element encoding;
// conversion to Go values is left to package dtype.
package layout

import (
	"errors"
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/filter"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

var (
	ErrUnsupportedIndex = errors.New("unsupported chunk index")
	ErrSelection        = errors.New("selection outside dataset")
)

// Layout reads the elements of one dataset.
type Layout interface {
	// Read returns every element.
	Read() ([]byte, error)
	// ReadSlice returns the block of count elements per dimension that
	// starts at start.
	ReadSlice(start, count []uint64) ([]byte, error)
	Class() message.LayoutClass
}

// New returns the reader for a dataset whose elements are elemSize bytes.
// filters may be nil.
func New(r *binary.Reader, msg *message.DataLayout, space *message.Dataspace, elemSize uint32, filters *message.FilterPipeline) (Layout, error) {
	if msg == nil || space == nil {
		return nil, errors.New("dataset has no layout or dataspace")
	}
	dims := space.Dimensions
	if space.IsScalar() {
		dims = []uint64{1}
	}
	ext := extent{dims: dims, esize: uint64(elemSize)}
	if len(space.MaxDims) == len(dims) {
		ext.maxDims = space.MaxDims
	}

	switch msg.Class {
	case message.LayoutCompact:
		return &compact{extent: ext, data: msg.CompactData}, nil
	case message.LayoutContiguous:
		size := msg.Size
		if size == 0 {
			size = ext.bytes()
		}
		return &contiguous{extent: ext, r: r, addr: msg.Address, size: size}, nil
	case message.LayoutChunked:
		pipe, err := filter.NewPipeline(filters)
		if err != nil {
			return nil, fmt.Errorf("chunked dataset: %w", err)
		}
		return newChunked(r, msg, ext, pipe)
	}
	return nil, fmt.Errorf("layout class %d is not supported", msg.Class)
}

// extent is the shape of a dataset in memory.
type extent struct {
	dims    []uint64
	maxDims []uint64 // nil when fixed at dims
	esize   uint64
}

func (e extent) elements() uint64 {
	n := uint64(1)
	for _, d := range e.dims {
		n *= d
	}
	return n
}

func (e extent) bytes() uint64 { return e.elements() * e.esize }

// check validates a selection and returns the size of its result.
func (e extent) check(start, count []uint64) (uint64, error) {
	if len(start) != len(e.dims) || len(count) != len(e.dims) {
		return 0, fmt.Errorf("%w: rank %d selection of a rank %d dataset", ErrSelection, len(start), len(e.dims))
	}
	n := e.esize
	for i, d := range e.dims {
		if start[i]+count[i] > d {
			return 0, fmt.Errorf("%w: [%d:%d] along dimension %d of %d", ErrSelection, start[i], start[i]+count[i], i, d)
		}
		n *= count[i]
	}
	return n, nil
}

// strides returns the byte step of each dimension of a row-major array.
func strides(dims []uint64, esize uint64) []uint64 {
	s := make([]uint64, len(dims))
	step := esize
	for i := len(dims) - 1; i >= 0; i-- {
		s[i] = step
		step *= dims[i]
	}
	return s
}

// copyBox copies a block of size elements per dimension from src, an array
// shaped srcDims, starting at srcAt, into dst, shaped dstDims, at dstAt.
// Rows are copied whole; the outer dimensions are walked like an odometer.
func copyBox(dst []byte, dstDims, dstAt []uint64, src []byte, srcDims, srcAt []uint64, size []uint64, esize uint64) {
	n := len(size)
	for _, s := range size {
		if s == 0 {
			return
		}
	}
	ds, ss := strides(dstDims, esize), strides(srcDims, esize)
	row := size[n-1] * esize
	idx := make([]uint64, n)
	for {
		var d, s uint64
		for i := range n {
			d += (dstAt[i] + idx[i]) * ds[i]
			s += (srcAt[i] + idx[i]) * ss[i]
		}
		copy(dst[d:d+row], src[s:s+row])

		i := n - 2
		for ; i >= 0; i-- {
			if idx[i]++; idx[i] < size[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// compact holds its elements in the layout message.
type compact struct {
	extent
	data []byte
}

func (c *compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *compact) Read() ([]byte, error) {
	return append([]byte(nil), c.data...), nil
}

func (c *compact) ReadSlice(start, count []uint64) ([]byte, error) {
	n, err := c.check(start, count)
	if err != nil {
		return nil, err
	}
	if uint64(len(c.data)) < c.bytes() {
		return nil, fmt.Errorf("compact data holds %d of %d bytes", len(c.data), c.bytes())
	}
	out := make([]byte, n)
	copyBox(out, count, make([]uint64, len(count)), c.data, c.dims, start, count, c.esize)
	return out, nil
}

// contiguous stores its elements in one block of the file.
type contiguous struct {
	extent
	r    *binary.Reader
	addr uint64
	size uint64
}

func (c *contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

// Read returns zeros for storage that was never allocated.
func (c *contiguous) Read() ([]byte, error) {
	if c.r.IsUndefinedOffset(c.addr) {
		return make([]byte, c.size), nil
	}
	data, err := c.r.At(int64(c.addr)).ReadBytes(int(c.size))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data at %d: %w", c.addr, err)
	}
	return data, nil
}

// ReadSlice reads only the rows of the slowest dimension that the
// selection spans.
func (c *contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	n, err := c.check(start, count)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 || c.r.IsUndefinedOffset(c.addr) {
		return out, nil
	}
	row := strides(c.dims, c.esize)[0]
	rows, err := c.r.At(int64(c.addr + start[0]*row)).ReadBytes(int(count[0] * row))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data at %d: %w", c.addr, err)
	}
	shape := append([]uint64{count[0]}, c.dims[1:]...)
	at := append([]uint64{0}, start[1:]...)
	copyBox(out, count, make([]uint64, len(count)), rows, shape, at, count, c.esize)
	return out, nil
}
