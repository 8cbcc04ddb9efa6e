package hdf5

import (
	"fmt"
	"reflect"

	"github.com/cog-neurophys-lab/dh5io/internal/dtype"
	"github.com/cog-neurophys-lab/dh5io/internal/heap"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// Attribute is a named value attached to a group or dataset.
type Attribute struct {
	msg *message.Attribute
	res *heap.Resolver
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the value, nil for a scalar.
func (a *Attribute) Shape() []uint64 {
	if a.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// IsScalar reports whether the value is a single element.
func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar()
}

// NumElements returns the number of elements in the value.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// DtypeClass returns the class of the attribute's datatype.
func (a *Attribute) DtypeClass() message.DatatypeClass {
	return a.msg.Datatype.Class
}

// CompoundFields returns the member names of a compound attribute, or nil.
func (a *Attribute) CompoundFields() []string {
	return dtype.MemberNames(a.msg.Datatype)
}

// Read decodes the value into dest, a pointer to a slice, an array or a
// single value. A struct destination picks compound members by their h5
// tag or field name.
func (a *Attribute) Read(dest any) error {
	if a.msg.Datatype == nil {
		return fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	if err := dtype.Convert(a.msg.Datatype, a.msg.Data, a.NumElements(), dest, a.res); err != nil {
		return fmt.Errorf("attribute %q: %w", a.msg.Name, err)
	}
	return nil
}

// ReadFloat64 reads the value as float64s.
func (a *Attribute) ReadFloat64() ([]float64, error) {
	var v []float64
	err := a.Read(&v)
	return v, err
}

// ReadInt64 reads the value as int64s.
func (a *Attribute) ReadInt64() ([]int64, error) {
	var v []int64
	err := a.Read(&v)
	return v, err
}

// ReadString reads the value as strings.
func (a *Attribute) ReadString() ([]string, error) {
	var v []string
	err := a.Read(&v)
	return v, err
}

// ReadScalarInt64 reads the first element as an int64.
func (a *Attribute) ReadScalarInt64() (int64, error) {
	var v int64
	err := a.Read(&v)
	return v, err
}

// ReadScalarFloat64 reads the first element as a float64.
func (a *Attribute) ReadScalarFloat64() (float64, error) {
	var v float64
	err := a.Read(&v)
	return v, err
}

// ReadScalarString reads the first element as a string.
func (a *Attribute) ReadScalarString() (string, error) {
	var v string
	err := a.Read(&v)
	return v, err
}

// Value decodes the attribute to its natural Go type: the type
// [dtype.GoType] names for the datatype, or map[string]any for compound
// elements. Scalars come back as one value, everything else as a slice.
func (a *Attribute) Value() (any, error) {
	dt := a.msg.Datatype
	if dt == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	elem := reflect.TypeFor[any]()
	if dt.Class != message.ClassCompound {
		t, err := dtype.GoType(dt)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.msg.Name, err)
		}
		elem = t
	}
	vals := reflect.New(reflect.SliceOf(elem))
	if err := a.Read(vals.Interface()); err != nil {
		return nil, err
	}
	s := vals.Elem()
	if a.IsScalar() && s.Len() == 1 {
		return s.Index(0).Interface(), nil
	}
	return s.Interface(), nil
}

// newAttribute encodes value as the attribute name.
func newAttribute(name string, value any) (*message.Attribute, error) {
	rv := reflect.Indirect(reflect.ValueOf(value))
	if !rv.IsValid() {
		return nil, fmt.Errorf("no value")
	}
	dt, err := dtype.OfValue(value)
	if err != nil {
		return nil, err
	}
	data, err := dtype.Encode(dt, value)
	if err != nil {
		return nil, err
	}

	space := message.NewScalarDataspace()
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		dims, _ := shapeOf(rv)
		space = message.NewDataspace(dims, nil)
	}
	if n := space.NumElements() * uint64(dt.Size); uint64(len(data)) != n {
		return nil, fmt.Errorf("%d bytes encoded for shape %v, want %d", len(data), space.Dimensions, n)
	}
	return message.NewAttribute(name, dt, space, data), nil
}
