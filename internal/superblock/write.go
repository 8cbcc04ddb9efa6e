package superblock

import (
	binpkg "github.com/cog-neurophys-lab/dh5io/internal/binary"
)

// New returns a version 2 superblock with 8 byte offsets and lengths.
func New() *Superblock {
	return &Superblock{Version: 2, OffsetSize: 8, LengthSize: 8}
}

// Size is the encoded size of a version 2 superblock.
func (sb *Superblock) Size() int {
	return 12 + 4*int(sb.OffsetSize) + 4
}

// Write encodes sb as a version 2 superblock at the writer position. Older
// superblocks are upgraded, since only version 2 stores the root group as
// a plain object header address.
func (sb *Superblock) Write(w *binpkg.Writer) (int64, error) {
	buf := &memWriter{}
	bw := binpkg.NewWriter(buf, sb.ReaderConfig())

	version := max(sb.Version, 2)
	ext := sb.ExtensionAddress
	if ext == 0 {
		ext = bw.UndefinedOffset()
	}
	steps := []func() error{
		func() error { return bw.WriteBytes(Signature) },
		func() error { return bw.WriteBytes([]byte{version, sb.OffsetSize, sb.LengthSize, sb.FileConsistencyFlags}) },
		func() error { return bw.WriteOffset(sb.BaseAddress) },
		func() error { return bw.WriteOffset(ext) },
		func() error { return bw.WriteOffset(sb.EOFAddress) },
		func() error { return bw.WriteOffset(sb.RootGroupAddress) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return 0, err
		}
	}
	if err := bw.WriteUint32(binpkg.Lookup3Checksum(buf.b)); err != nil {
		return 0, err
	}
	if err := w.WriteBytes(buf.b); err != nil {
		return 0, err
	}
	return int64(len(buf.b)), nil
}

type memWriter struct{ b []byte }

func (m *memWriter) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.b) {
		m.b = append(m.b, make([]byte, end-len(m.b))...)
	}
	return copy(m.b[off:], p), nil
}
