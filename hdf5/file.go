package hdf5

import (
	"errors"
	"fmt"
	"os"

	"github.com/cog-neurophys-lab/dh5io/internal/alloc"
	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/heap"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
	"github.com/cog-neurophys-lab/dh5io/internal/object"
	"github.com/cog-neurophys-lab/dh5io/internal/superblock"
)

// File is an open HDF5 file.
type File struct {
	path string
	osf  *os.File
	sb   *superblock.Superblock
	r    *binary.Reader
	res  *heap.Resolver

	// w and space are nil for read-only files.
	w     *binary.Writer
	space *alloc.Allocator

	root   *Group
	groups map[string]*Group // loaded groups by path
	closed bool
}

// based shifts file addresses by the superblock's base address.
type based struct {
	f    *os.File
	base int64
}

func (b based) ReadAt(p []byte, off int64) (int, error)  { return b.f.ReadAt(p, off+b.base) }
func (b based) WriteAt(p []byte, off int64) (int, error) { return b.f.WriteAt(p, off+b.base) }

// Open opens an HDF5 file for reading.
func Open(path string) (*File, error) {
	return open(path, false)
}

// OpenReadWrite opens an existing HDF5 file for reading and writing. New
// objects are appended after the current end of the file. The superblock
// is rewritten on Flush once anything was appended, upgrading older
// superblocks to version 2.
func OpenReadWrite(path string) (*File, error) {
	return open(path, true)
}

func open(path string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	osf, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	sb, err := superblock.Read(osf)
	if err != nil {
		osf.Close()
		if errors.Is(err, superblock.ErrNotHDF5) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotHDF5)
		}
		return nil, fmt.Errorf("%s: reading superblock: %w", path, err)
	}

	f := newFile(path, osf, sb, writable)
	if writable {
		info, err := osf.Stat()
		if err != nil {
			osf.Close()
			return nil, err
		}
		end := uint64(max(info.Size()-int64(sb.BaseAddress), 0))
		f.space = alloc.New(max(sb.EOFAddress, end))
	}

	n, err := f.node(sb.RootGroupAddress)
	if err == nil {
		f.root, err = f.group("/", n)
	}
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("%s: root group: %w", path, err)
	}
	return f, nil
}

func newFile(path string, osf *os.File, sb *superblock.Superblock, writable bool) *File {
	src := based{f: osf, base: int64(sb.BaseAddress)}
	f := &File{
		path:   path,
		osf:    osf,
		sb:     sb,
		r:      binary.NewReader(src, sb.ReaderConfig()),
		groups: make(map[string]*Group),
	}
	f.res = heap.NewResolver(f.r)
	if writable {
		f.w = binary.NewWriter(src, sb.ReaderConfig())
	}
	return f
}

// Create creates an HDF5 file holding an empty root group, truncating
// any existing file. Offsets and lengths are 8 bytes wide.
func Create(path string) (*File, error) {
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	sb := superblock.New()
	f := newFile(path, osf, sb, true)
	f.space = alloc.New(uint64(sb.Size()))

	root := &Group{file: f, path: "/"}
	err = root.commit()
	if err == nil {
		err = f.writeSuperblock()
	}
	if err != nil {
		osf.Close()
		os.Remove(path)
		return nil, err
	}
	f.root = root
	f.groups["/"] = root
	return f, nil
}

// Close flushes a writable file and closes it.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	err := f.Flush()
	f.closed = true
	if cerr := f.osf.Close(); err == nil {
		err = cerr
	}
	return err
}

// Flush writes the superblock, if anything was appended since the file
// was opened, and syncs the file to disk.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if f.w == nil {
		return nil
	}
	if f.space.Stats().TotalAllocations > 0 {
		if err := f.writeSuperblock(); err != nil {
			return fmt.Errorf("writing superblock: %w", err)
		}
	}
	return f.osf.Sync()
}

func (f *File) writeSuperblock() error {
	f.sb.EOFAddress = f.space.EOFAddr()
	_, err := f.sb.Write(f.w.At(f.sb.FileOffset - int64(f.sb.BaseAddress)))
	return err
}

// Root returns the root group.
func (f *File) Root() *Group {
	return f.root
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.sb.Version)
}

// IsWritable reports whether the file was created or opened for writing.
func (f *File) IsWritable() bool {
	return f.w != nil
}

// OpenGroup opens a group by absolute path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens a dataset by absolute path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenDataset(path)
}

// GetAttr returns the attribute named by an attribute path such as
// "/CONT1@SamplePeriod" or "/@FILEVERSION".
func (f *File) GetAttr(path string) (*Attribute, error) {
	if f.closed {
		return nil, ErrClosed
	}
	objPath, name, err := ParseAttrPath(path)
	if err != nil {
		return nil, err
	}
	n, p, err := f.root.walk(objPath, 0)
	if err != nil {
		return nil, err
	}
	var attr *Attribute
	switch n.kind {
	case KindGroup:
		g, err := f.group(p, n)
		if err != nil {
			return nil, err
		}
		attr = g.Attr(name)
	case KindDataset:
		attr = f.attribute(n.hdr.Attribute(name))
	}
	if attr == nil {
		return nil, fmt.Errorf("attribute %s: %w", path, ErrNotFound)
	}
	return attr, nil
}

// ReadAttr reads the value of the attribute at path. See
// [Attribute.Value] for the Go types returned.
func (f *File) ReadAttr(path string) (any, error) {
	attr, err := f.GetAttr(path)
	if err != nil {
		return nil, err
	}
	return attr.Value()
}

// node is a resolved object header.
type node struct {
	addr uint64
	kind Kind
	hdr  *object.Header // nil for groups served from the cache
}

func (f *File) node(addr uint64) (node, error) {
	hdr, err := object.Read(f.r, addr)
	if err != nil {
		return node{}, err
	}
	return node{addr: addr, kind: kindOf(hdr), hdr: hdr}, nil
}

// kindOf classifies a header. Headers that are neither datasets nor
// committed datatypes are taken as groups.
func kindOf(hdr *object.Header) Kind {
	switch {
	case hdr.IsDataset():
		return KindDataset
	case hdr.IsNamedDatatype():
		return KindDatatype
	}
	return KindGroup
}

func (f *File) attribute(msg *message.Attribute) *Attribute {
	if msg == nil {
		return nil
	}
	return &Attribute{msg: msg, res: f.res}
}

// writeHeader stores msgs as a new object header and returns its address.
func (f *File) writeHeader(msgs []message.Message, minChunk int) (uint64, error) {
	raw, err := object.Encode(msgs, f.w.Config(), minChunk)
	if err != nil {
		return 0, err
	}
	addr := f.space.Alloc(uint64(len(raw)))
	if err := f.w.At(int64(addr)).WriteBytes(raw); err != nil {
		return 0, err
	}
	return addr, nil
}

// writable returns ErrNotWritable, or ErrClosed, when f cannot be changed.
func (f *File) writable() error {
	switch {
	case f.closed:
		return ErrClosed
	case f.w == nil:
		return ErrNotWritable
	}
	return nil
}
