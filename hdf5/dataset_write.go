package hdf5

import (
	"fmt"
	"reflect"

	"github.com/cog-neurophys-lab/dh5io/internal/dtype"
	"github.com/cog-neurophys-lab/dh5io/internal/layout"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
	"github.com/cog-neurophys-lab/dh5io/internal/object"
)

// CreateDataset creates the dataset name holding data. Nested slices give
// the shape, their innermost element the datatype: numbers, strings
// (null terminated, sized to the longest) or structs (compounds). Any
// other value is stored as a scalar.
func (g *Group) CreateDataset(name string, data any, opts ...DatasetOption) (*Dataset, error) {
	if err := g.canAdd(name); err != nil {
		return nil, err
	}
	o := datasetOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	rv := reflect.Indirect(reflect.ValueOf(data))
	if !rv.IsValid() {
		return nil, fmt.Errorf("%s: no data", childPath(g.path, name))
	}
	dt, err := dtype.OfValue(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", childPath(g.path, name), err)
	}
	raw, err := dtype.Encode(dt, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", childPath(g.path, name), err)
	}

	space := message.NewScalarDataspace()
	dims := []uint64{1}
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		dims, _ = shapeOf(rv)
		space = message.NewDataspace(dims, nil)
	}
	if want := space.NumElements() * uint64(dt.Size); uint64(len(raw)) != want {
		return nil, fmt.Errorf("%s: shape %v needs %d bytes, got %d (ragged slices?)", childPath(g.path, name), dims, want, len(raw))
	}

	var lay *message.DataLayout
	if o.chunks != nil {
		if lay, err = g.writeChunks(dims, dt, o.chunks, raw); err != nil {
			return nil, fmt.Errorf("%s: %w", childPath(g.path, name), err)
		}
	} else {
		lay = g.file.contiguous(uint64(len(raw)))
		if len(raw) > 0 {
			if err := g.file.w.At(int64(lay.Address)).WriteBytes(raw); err != nil {
				return nil, fmt.Errorf("%s: writing data: %w", childPath(g.path, name), err)
			}
		}
	}
	return g.linkDataset(name, space, dt, lay)
}

func (g *Group) writeChunks(dims []uint64, dt *message.Datatype, chunks []uint64, raw []byte) (*message.DataLayout, error) {
	if len(chunks) != len(dims) {
		return nil, fmt.Errorf("chunk rank %d for a dataset of rank %d", len(chunks), len(dims))
	}
	chunkDims := make([]uint32, len(chunks))
	for i, c := range chunks {
		if c == 0 || c > 1<<32-1 {
			return nil, fmt.Errorf("invalid chunk dimension %d", c)
		}
		chunkDims[i] = uint32(c)
	}
	lay := message.NewChunkedLayout(chunkDims, dt.Size, message.ChunkIndexFixedArray)
	if err := layout.WriteChunked(g.file.w, g.file.space.Alloc, lay, dims, raw); err != nil {
		return nil, err
	}
	return lay, nil
}

// CreateDatasetWithType creates the dataset name with the given shape and
// element type. Storage is contiguous and reads as zeros until written
// with [Dataset.Write] or [Dataset.WriteAt].
func (g *Group) CreateDatasetWithType(name string, dims []uint64, dt *message.Datatype) (*Dataset, error) {
	if err := g.canAdd(name); err != nil {
		return nil, err
	}
	space := message.NewDataspace(dims, nil)
	size := space.NumElements() * uint64(dt.Size)
	lay := g.file.contiguous(size)
	if size > 0 {
		// space past the end of the file reads as zeros
		if err := g.file.w.At(int64(lay.Address + size - 1)).WriteBytes([]byte{0}); err != nil {
			return nil, fmt.Errorf("%s: allocating data: %w", childPath(g.path, name), err)
		}
	}
	return g.linkDataset(name, space, dt, lay)
}

// contiguous reserves size bytes of contiguous storage. Empty datasets
// get no storage.
func (f *File) contiguous(size uint64) *message.DataLayout {
	if size == 0 {
		return message.NewContiguousLayout(f.w.UndefinedOffset(), 0)
	}
	return message.NewContiguousLayout(f.space.Alloc(size), size)
}

func (g *Group) linkDataset(name string, space *message.Dataspace, dt *message.Datatype, lay *message.DataLayout) (*Dataset, error) {
	p := childPath(g.path, name)
	addr, err := g.file.writeHeader(object.DatasetMessages(space, dt, lay, nil, nil), 0)
	if err != nil {
		return nil, fmt.Errorf("%s: writing header: %w", p, err)
	}
	if err := g.addLink(message.NewHardLink(name, addr)); err != nil {
		return nil, err
	}
	n, err := g.file.node(addr)
	if err != nil {
		return nil, err
	}
	return g.file.dataset(p, n)
}

// Write replaces every element of a contiguous dataset. data must hold
// exactly NumElements elements.
func (d *Dataset) Write(data any) error {
	return d.write(0, data, true)
}

// WriteAt writes data over the elements starting at elementOffset,
// counted in row-major order. A [][]T value writes whole rows. Chunked
// datasets cannot be written after creation.
func (d *Dataset) WriteAt(elementOffset uint64, data any) error {
	return d.write(elementOffset, data, false)
}

func (d *Dataset) write(elementOffset uint64, data any, whole bool) error {
	if err := d.file.writable(); err != nil {
		return err
	}
	if d.lay.Class != message.LayoutContiguous {
		return fmt.Errorf("%s: writing %v storage: %w", d.path, d.lay.Class, ErrUnsupported)
	}
	raw, err := dtype.Encode(d.dt, data)
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	esize := uint64(d.dt.Size)
	n := uint64(len(raw)) / esize
	if uint64(len(raw))%esize != 0 || elementOffset+n > d.NumElements() {
		return fmt.Errorf("%s: %d elements at %d do not fit %d", d.path, n, elementOffset, d.NumElements())
	}
	if whole && n != d.NumElements() {
		return fmt.Errorf("%s: %d elements written over %d", d.path, n, d.NumElements())
	}
	if n == 0 {
		return nil
	}
	if err := d.file.w.At(int64(d.lay.Address + elementOffset*esize)).WriteBytes(raw); err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	return nil
}

// shapeOf returns the lengths of nested slices or arrays, following the
// first element at each level, and the innermost element type.
func shapeOf(v reflect.Value) ([]uint64, reflect.Type) {
	var dims []uint64
	t := v.Type()
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		if v.IsValid() {
			dims = append(dims, uint64(v.Len()))
			if v.Len() > 0 {
				v = v.Index(0)
			} else {
				v = reflect.Value{}
			}
		} else {
			dims = append(dims, 0)
		}
		t = t.Elem()
	}
	return dims, t
}
