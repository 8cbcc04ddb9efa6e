package hdf5

import (
	"path"

	"github.com/cog-neurophys-lab/dh5io/internal/dtype"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// NamedDatatype is a datatype committed to a group, such as DH5's
// CONT_INDEX_ITEM record type.
type NamedDatatype struct {
	path string
	dt   *message.Datatype
}

func (t *NamedDatatype) Name() string                 { return path.Base(t.path) }
func (t *NamedDatatype) Path() string                 { return t.path }
func (t *NamedDatatype) Class() message.DatatypeClass { return t.dt.Class }
func (t *NamedDatatype) Size() int                    { return int(t.dt.Size) }

// CompoundFields returns the member names of a compound, or nil.
func (t *NamedDatatype) CompoundFields() []string {
	return dtype.MemberNames(t.dt)
}
