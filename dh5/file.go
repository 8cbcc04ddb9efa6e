// Package dh5 reads, writes and validates DAQ-HDF5 (DH5) files, the HDF5
// layout used for electrophysiology recordings: continuous signals (CONT
// groups), spikes (SPIKE groups), the trial map (TRIALMAP), event triggers
// (EV02) and the processing history (Operations).
//
// A file is opened with Open, OpenReadWrite or Create:
//
//	f, err := dh5.Open("session.dh5")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	ids, _ := f.ContGroupIDs()
//	cont, _ := f.ContGroup(ids[0])
//	rows, _ := cont.DataSlice(0, 1000)
package dh5

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// Version is the library version recorded in operation groups.
const Version = "0.5.0"

// FileVersion is the DH5 format version written by Create.
const FileVersion = 2

// DefaultTool is the tool name recorded for operations performed by this
// library.
const DefaultTool = "dh5io"

const (
	fileVersionAttr = "FILEVERSION"
	boardsAttr      = "BOARDS"

	// ContIndexItemName is the committed datatype of CONT INDEX records.
	ContIndexItemName = "CONT_INDEX_ITEM"
)

// File is an open DH5 file.
type File struct {
	h5   *hdf5.File
	path string
	opts *options
}

// Open opens a DH5 file for reading.
func Open(path string, opts ...Option) (*File, error) {
	h5, err := hdf5.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{h5: h5, path: path, opts: applyOptions(opts)}, nil
}

// OpenReadWrite opens an existing DH5 file for reading and writing.
func OpenReadWrite(path string, opts ...Option) (*File, error) {
	h5, err := hdf5.OpenReadWrite(path)
	if err != nil {
		return nil, err
	}
	return &File{h5: h5, path: path, opts: applyOptions(opts)}, nil
}

// Create creates a new DH5 file. It fails with an error wrapping
// fs.ErrExist if path exists. The new file carries FILEVERSION, the
// CONT_INDEX_ITEM datatype and the operation 000_create_file, and is
// validated before it is returned.
func Create(path string, opts ...Option) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create %s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	h5, err := hdf5.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	f := &File{h5: h5, path: path, opts: applyOptions(opts)}

	if err := f.initialize(); err != nil {
		h5.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	f.opts.logger.Info().Str("path", path).Msg("created DH5 file")
	return f, nil
}

func (f *File) initialize() error {
	root := f.h5.Root()
	if err := root.SetAttr(fileVersionAttr, int32(FileVersion)); err != nil {
		return err
	}
	if len(f.opts.boards) > 0 {
		if err := root.SetAttr(boardsAttr, f.opts.boards); err != nil {
			return err
		}
	}
	if _, err := root.CommitDatatype(ContIndexItemName, ContIndexItem{}); err != nil {
		return err
	}
	if err := f.AddOperation("create_file", OperationTool(DefaultTool), OperationID(0)); err != nil {
		return err
	}
	if _, err := Validate(f, WithLogger(f.opts.logger)); err != nil {
		return err
	}
	return nil
}

// Close closes the file, flushing pending writes.
func (f *File) Close() error {
	return f.h5.Close()
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// HDF5 returns the underlying HDF5 file.
func (f *File) HDF5() *hdf5.File {
	return f.h5
}

// Root returns the root group.
func (f *File) Root() *hdf5.Group {
	return f.h5.Root()
}

// Writable reports whether the file accepts writes.
func (f *File) Writable() bool {
	return f.h5.IsWritable()
}

// Version returns the FILEVERSION attribute. It reports false when the
// attribute is missing, which denotes the obsolete version 1.
func (f *File) Version() (int, bool) {
	v, ok, err := intAttr(f.Root(), fileVersionAttr)
	if !ok || err != nil {
		return 0, false
	}
	return int(v), true
}

// Boards returns the names of the A/D boards recorded in BOARDS.
func (f *File) Boards() []string {
	attr := f.Root().Attr(boardsAttr)
	if attr == nil {
		return nil
	}
	boards, err := attr.ReadString()
	if err != nil {
		return nil
	}
	return boards
}

// String summarizes the file contents.
func (f *File) String() string {
	s, err := f.Summary()
	if err != nil {
		return fmt.Sprintf("DAQ-HDF5 File %s: %v", filepath.Base(f.path), err)
	}
	return s.String()
}

func (f *File) writable() error {
	if !f.h5.IsWritable() {
		return fmt.Errorf("%s: %w", f.path, hdf5.ErrNotWritable)
	}
	return nil
}

// existsErr wraps fs.ErrExist for a member that is already present.
func existsErr(what string) error {
	return fmt.Errorf("%s: %w", what, fs.ErrExist)
}

// memberKind reports the kind of a root member, or false if it is absent.
func (f *File) memberKind(name string) (hdf5.Kind, bool) {
	kind, err := f.Root().MemberKind(name)
	if err != nil {
		return 0, false
	}
	return kind, true
}

// joinNames formats a list of names for summaries.
func joinNames(names []string) string {
	return "[" + strings.Join(names, ", ") + "]"
}
