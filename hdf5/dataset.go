package hdf5

import (
	"fmt"
	"path"
	"reflect"

	"github.com/cog-neurophys-lab/dh5io/internal/dtype"
	"github.com/cog-neurophys-lab/dh5io/internal/layout"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// Dataset is an HDF5 dataset.
type Dataset struct {
	file  *File
	path  string
	space *message.Dataspace
	dt    *message.Datatype
	lay   *message.DataLayout
	data  layout.Layout
	attrs []*message.Attribute
}

func (f *File) dataset(p string, n node) (*Dataset, error) {
	hdr := n.hdr
	d := &Dataset{
		file:  f,
		path:  p,
		space: hdr.Dataspace(),
		dt:    hdr.Datatype(),
		lay:   hdr.Layout(),
		attrs: hdr.Attributes(),
	}
	if d.dt == nil {
		return nil, fmt.Errorf("%s: dataset has no datatype", p)
	}
	var err error
	if d.data, err = layout.New(f.r, d.lay, d.space, d.dt.Size, hdr.Filters()); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return d, nil
}

// Name returns the last component of the dataset's path.
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the absolute path of the dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Shape returns the dimensions, nil for a scalar.
func (d *Dataset) Shape() []uint64 {
	if d.space.IsScalar() {
		return nil
	}
	return d.space.Dimensions
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.space.Rank()
}

// NumElements returns the number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.space.NumElements()
}

// DtypeSize returns the size of one element in bytes.
func (d *Dataset) DtypeSize() int {
	return int(d.dt.Size)
}

// DtypeClass returns the class of the element datatype.
func (d *Dataset) DtypeClass() message.DatatypeClass {
	return d.dt.Class
}

// GoType returns the Go type one element decodes to.
func (d *Dataset) GoType() (reflect.Type, error) {
	return dtype.GoType(d.dt)
}

// CompoundFields returns the member names of a compound dataset, or nil.
func (d *Dataset) CompoundFields() []string {
	return dtype.MemberNames(d.dt)
}

// Chunked reports whether the dataset is stored in chunks.
func (d *Dataset) Chunked() bool {
	return d.lay.Class == message.LayoutChunked
}

// Read decodes every element into dest, a pointer to a slice. Elements
// arrive in row-major order.
func (d *Dataset) Read(dest any) error {
	raw, err := d.data.Read()
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	if err := dtype.Convert(d.dt, raw, d.NumElements(), dest, d.file.res); err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	return nil
}

// ReadSlice decodes the block of count elements per dimension starting at
// start into dest, a pointer to a slice, in row-major order.
func (d *Dataset) ReadSlice(start, count []uint64, dest any) error {
	if len(start) != d.Rank() || len(count) != d.Rank() {
		return fmt.Errorf("%s: selection of rank %d on a dataset of rank %d", d.path, len(start), d.Rank())
	}
	raw, err := d.data.ReadSlice(start, count)
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	n := uint64(1)
	for _, c := range count {
		n *= c
	}
	if err := dtype.Convert(d.dt, raw, n, dest, d.file.res); err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	return nil
}

// ReadFloat64 reads every element as a float64.
func (d *Dataset) ReadFloat64() ([]float64, error) {
	var v []float64
	err := d.Read(&v)
	return v, err
}

// ReadInt64 reads every element as an int64.
func (d *Dataset) ReadInt64() ([]int64, error) {
	var v []int64
	err := d.Read(&v)
	return v, err
}

// ReadInt32 reads every element as an int32.
func (d *Dataset) ReadInt32() ([]int32, error) {
	var v []int32
	err := d.Read(&v)
	return v, err
}

// ReadInt16 reads every element as an int16.
func (d *Dataset) ReadInt16() ([]int16, error) {
	var v []int16
	err := d.Read(&v)
	return v, err
}

// ReadString reads every element as a string.
func (d *Dataset) ReadString() ([]string, error) {
	var v []string
	err := d.Read(&v)
	return v, err
}

// Attrs returns the attribute names in storage order.
func (d *Dataset) Attrs() []string {
	return attrNames(d.attrs)
}

// Attr returns the attribute called name, or nil.
func (d *Dataset) Attr(name string) *Attribute {
	for _, a := range d.attrs {
		if a.Name == name {
			return d.file.attribute(a)
		}
	}
	return nil
}

// HasAttr reports whether the dataset has an attribute called name.
func (d *Dataset) HasAttr(name string) bool {
	return d.Attr(name) != nil
}
