// Package hdf5 reads and writes the part of HDF5 that DH5 recordings use:
// groups, contiguous and chunked datasets, attributes and committed
// datatypes.
//
// Files are written with a version 2 superblock and version 2 object
// headers, which the reference library and h5py read. Existing files of
// any superblock version can be opened and extended; new objects are
// appended and the storage of replaced headers is not reclaimed.
package hdf5

import "errors"

var (
	ErrNotHDF5     = errors.New("not an HDF5 file")
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrNotDatatype = errors.New("object is not a committed datatype")
	ErrExists      = errors.New("object already exists")
	ErrNotWritable = errors.New("file is not writable")
	ErrClosed      = errors.New("file is closed")
	ErrUnsupported = errors.New("unsupported HDF5 feature")
	ErrLinkDepth   = errors.New("too many nested soft links")
)

// maxSoftLinks bounds soft link chains followed in one lookup.
const maxSoftLinks = 40
