package layout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// memFile is a growable in-memory file.
type memFile struct{ b []byte }

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.b)) {
		return 0, errors.New("read past end")
	}
	return copy(p, m.b[off:]), nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if need := int(off) + len(p); need > len(m.b) {
		m.b = append(m.b, make([]byte, need-len(m.b))...)
	}
	return copy(m.b[off:], p), nil
}

// alloc hands out space after the end of the file.
func (m *memFile) alloc(n uint64) uint64 {
	addr := uint64(len(m.b))
	m.b = append(m.b, make([]byte, n)...)
	return addr
}

var cfg = binary.DefaultConfig()

func (m *memFile) reader() *binary.Reader { return binary.NewReader(m, cfg) }
func (m *memFile) writer() *binary.Writer { return binary.NewWriter(m, cfg) }

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestCompact(t *testing.T) {
	data := seq(6)
	l, err := New(nil, message.NewCompactLayout(data), message.NewDataspace([]uint64{3, 2}, nil), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	all, _ := l.Read()
	if !bytes.Equal(all, data) {
		t.Errorf("Read = %v", all)
	}
	all[0] = 0xFF
	if again, _ := l.Read(); again[0] != 1 {
		t.Error("Read returned the message's own slice")
	}
	got, err := l.ReadSlice([]uint64{1, 1}, []uint64{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{4, 6}) {
		t.Errorf("ReadSlice = %v, want [4 6]", got)
	}
}

func TestContiguous(t *testing.T) {
	f := &memFile{b: make([]byte, 100)}
	f.WriteAt(seq(12), 100)

	// a size of 0 comes from the dataspace
	msg := message.NewContiguousLayout(100, 0)
	l, err := New(f.reader(), msg, message.NewDataspace([]uint64{3, 2}, nil), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	all, err := l.Read()
	if err != nil || !bytes.Equal(all, seq(12)) {
		t.Fatalf("Read = %v, %v", all, err)
	}
	got, err := l.ReadSlice([]uint64{1, 1}, []uint64{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{7, 8, 11, 12}; !bytes.Equal(got, want) {
		t.Errorf("ReadSlice = %v, want %v", got, want)
	}
	if _, err := l.ReadSlice([]uint64{2, 0}, []uint64{2, 2}); !errors.Is(err, ErrSelection) {
		t.Errorf("out of range selection: %v", err)
	}
}

func TestContiguousUnallocated(t *testing.T) {
	f := &memFile{}
	msg := message.NewContiguousLayout(f.writer().UndefinedOffset(), 8)
	l, err := New(f.reader(), msg, message.NewDataspace([]uint64{4}, nil), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil || !bytes.Equal(got, make([]byte, 8)) {
		t.Errorf("Read = %v, %v", got, err)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		dims  []uint64
		chunk []uint32
		data  []byte
		want  [][]byte
	}{
		{
			name:  "padded rows",
			dims:  []uint64{5, 2},
			chunk: []uint32{2, 2, 1},
			data:  seq(10),
			want:  [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 0, 0}},
		},
		{
			name:  "columns",
			dims:  []uint64{2, 3},
			chunk: []uint32{1, 2, 2},
			data:  []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0},
			want:  [][]byte{{1, 0, 2, 0}, {3, 0, 0, 0}, {4, 0, 5, 0}, {6, 0, 0, 0}},
		},
		{
			name:  "empty",
			dims:  []uint64{0, 4},
			chunk: []uint32{8, 4, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.data, tt.dims, tt.chunk)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !bytes.Equal(got[i], tt.want[i]) {
					t.Errorf("chunk %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := Split(seq(3), []uint64{2}, []uint32{1, 1}); err == nil {
		t.Error("expected a size mismatch error")
	}
}

func TestWriteChunked(t *testing.T) {
	tests := []struct {
		name  string
		dims  []uint64
		chunk []uint32
		index message.ChunkIndexType
	}{
		{"single chunk", []uint64{4, 2}, []uint32{4, 2}, message.ChunkIndexSingle},
		{"fixed array", []uint64{7, 3}, []uint32{2, 2}, message.ChunkIndexFixedArray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &memFile{b: make([]byte, 64)}
			data := seq(int(tt.dims[0] * tt.dims[1] * 2))
			msg := message.NewChunkedLayout(tt.chunk, 2, message.ChunkIndexFixedArray)
			if err := WriteChunked(f.writer(), f.alloc, msg, tt.dims, data); err != nil {
				t.Fatal(err)
			}
			if msg.IndexType != tt.index {
				t.Errorf("index = %v, want %v", msg.IndexType, tt.index)
			}

			// reparse the message so the index fields survive encoding
			raw, err := message.Marshal(msg, cfg)
			if err != nil {
				t.Fatal(err)
			}
			parsed, err := message.Parse(message.TypeDataLayout, raw, 0, cfg)
			if err != nil {
				t.Fatal(err)
			}
			l, err := New(f.reader(), parsed.(*message.DataLayout), message.NewDataspace(tt.dims, nil), 2, nil)
			if err != nil {
				t.Fatal(err)
			}
			all, err := l.Read()
			if err != nil || !bytes.Equal(all, data) {
				t.Fatalf("Read = %v, %v", all, err)
			}

			got, err := l.ReadSlice([]uint64{1, 1}, []uint64{3, 1})
			if err != nil {
				t.Fatal(err)
			}
			row := tt.dims[1] * 2
			var want []byte
			for r := uint64(1); r < 4; r++ {
				want = append(want, data[r*row+2:r*row+4]...)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("ReadSlice = %v, want %v", got, want)
			}
		})
	}
}

// TestPagedFixedArray reads a fixed array of two-entry pages whose second
// page was never written.
func TestPagedFixedArray(t *testing.T) {
	f := &memFile{b: make([]byte, 64)}
	w := f.writer()
	chunks := [][]byte{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	addrs := make([]uint64, len(chunks))
	for i, c := range chunks {
		addrs[i] = f.alloc(2)
		w.At(int64(addrs[i])).WriteBytes(c)
	}

	const pageBits = 1
	hdrAddr := f.alloc(8 + 8 + 8 + 4)
	dblkAddr := uint64(len(f.b))
	dblk := append([]byte("FADB"), 0, faRawChunks)
	dblk = appendUint(dblk, hdrAddr, 8)
	dblk = appendChecksum(append(dblk, 0x80)) // pages 0 of 2 initialised
	page := appendChecksum(appendUint(appendUint(nil, addrs[0], 8), addrs[1], 8))
	f.WriteAt(append(dblk, page...), int64(dblkAddr))

	hdr := append([]byte("FAHD"), 0, faRawChunks, 8, pageBits)
	hdr = appendUint(hdr, 4, 8)
	hdr = appendChecksum(appendUint(hdr, dblkAddr, 8))
	f.WriteAt(hdr, int64(hdrAddr))

	msg := message.NewChunkedLayout([]uint32{1}, 2, message.ChunkIndexFixedArray)
	msg.Address = hdrAddr
	l, err := New(f.reader(), msg, message.NewDataspace([]uint64{4}, nil), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 3, 4, 0, 0, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("Read = %v, want %v", got, want)
	}
}

func TestUnsupportedIndex(t *testing.T) {
	f := &memFile{b: make([]byte, 64)}
	msg := message.NewChunkedLayout([]uint32{4}, 1, message.ChunkIndexType(9))
	msg.Address = 8
	l, err := New(f.reader(), msg, message.NewDataspace([]uint64{8}, nil), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Read(); !errors.Is(err, ErrUnsupportedIndex) {
		t.Errorf("Read = %v, want ErrUnsupportedIndex", err)
	}
}

const undef = ^uint64(0)

// TestExtensibleArray lays out ten column chunks of a (2, unlimited)
// dataset: chunk 0 in the index block, chunks 1 to 3 in data blocks listed
// by the index block, 4 to 7 under a super block and 8 and 9 in the first
// page of a paged data block.
func TestExtensibleArray(t *testing.T) {
	f := &memFile{b: make([]byte, 64)}
	w := f.writer()
	chunks := make([]uint64, 10)
	for k := range chunks {
		chunks[k] = f.alloc(2)
		w.At(int64(chunks[k])).WriteBytes([]byte{byte(10 + k), byte(20 + k)})
	}
	chunks[6] = undef

	hdrAddr := f.alloc(12 + 6*8 + 8 + 4)
	put := func(b []byte) uint64 {
		addr := uint64(len(f.b))
		f.WriteAt(b, int64(addr))
		return addr
	}
	entries := func(b []byte, ks ...int) []byte {
		for _, k := range ks {
			b = appendUint(b, chunks[k], 8)
		}
		return b
	}
	prefix := func(sig string) []byte {
		return appendUint(append([]byte(sig), 0, faRawChunks), hdrAddr, 8)
	}
	dblock := func(ks ...int) uint64 {
		return put(appendChecksum(entries(append(prefix("EADB"), 0), ks...)))
	}
	sblock := func(bitmap []byte, dblks ...uint64) uint64 {
		b := append(append(prefix("EASB"), 0), bitmap...)
		for _, d := range dblks {
			b = appendUint(b, d, 8)
		}
		return put(appendChecksum(b))
	}

	d1, d4, d6 := dblock(1), dblock(4, 5), dblock(6, 7)
	paged := appendChecksum(append(prefix("EADB"), 0))
	d8 := put(append(paged, appendChecksum(entries(nil, 8, 9))...))
	s2 := sblock(nil, d4, d6)
	s3 := sblock([]byte{0x80, 0x00}, d8, undef)

	ib := entries(prefix("EAIB"), 0)
	for _, a := range []uint64{d1, undef, s2, s3, undef} {
		ib = appendUint(ib, a, 8)
	}
	iblk := put(appendChecksum(ib))

	// 8 byte entries, 4 index bits, 1 element in the index block, data
	// blocks of at least 1 element, 2 pointers per super block, 2 element pages.
	hdr := append([]byte("EAHD"), 0, faRawChunks, 8, 4, 1, 1, 2, 1)
	for _, v := range []uint64{3, 0, 6, 0, 10, 10} {
		hdr = appendUint(hdr, v, 8)
	}
	f.WriteAt(appendChecksum(appendUint(hdr, iblk, 8)), int64(hdrAddr))

	msg := message.NewChunkedLayout([]uint32{2, 1}, 1, message.ChunkIndexExtensibleArray)
	msg.Address = hdrAddr
	l, err := New(f.reader(), msg, message.NewDataspace([]uint64{2, 10}, []uint64{2, undef}), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		10, 11, 0, 0, 14, 15, 0, 17, 18, 19,
		20, 21, 0, 0, 24, 25, 0, 27, 28, 29,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Read = %v, want %v", got, want)
	}

	f.b[iblk+16] ^= 0xFF
	if _, err := l.Read(); err == nil {
		t.Error("Read with a corrupt index block succeeded")
	}
}

func TestBTreeV2Index(t *testing.T) {
	f := &memFile{b: make([]byte, 64)}
	w := f.writer()
	a := f.alloc(6)
	w.At(int64(a)).WriteBytes(seq(6))
	b := f.alloc(6)
	w.At(int64(b)).WriteBytes([]byte{7, 8, 9, 10, 11, 12})

	leaf := append([]byte("BTLF"), 0, 10)
	for _, r := range [][3]uint64{{a, 0, 0}, {b, 1, 0}} {
		leaf = appendUint(appendUint(appendUint(leaf, r[0], 8), r[1], 8), r[2], 8)
	}
	leafAddr := uint64(len(f.b))
	f.WriteAt(appendChecksum(leaf), int64(leafAddr))

	hdr := append([]byte("BTHD"), 0, 10)
	hdr = appendUint(hdr, 512, 4)
	hdr = appendUint(hdr, 24, 2)
	hdr = appendUint(hdr, 0, 2)
	hdr = append(hdr, 100, 40)
	hdr = appendUint(hdr, leafAddr, 8)
	hdr = appendUint(hdr, 2, 2)
	hdr = appendUint(hdr, 2, 8)
	hdrAddr := uint64(len(f.b))
	f.WriteAt(appendChecksum(hdr), int64(hdrAddr))

	msg := message.NewChunkedLayout([]uint32{2, 3}, 1, message.ChunkIndexBTreeV2)
	msg.Address = hdrAddr
	l, err := New(f.reader(), msg, message.NewDataspace([]uint64{4, 3}, []uint64{undef, 3}), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.ReadSlice([]uint64{1, 0}, []uint64{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{4, 5, 6, 7, 8, 9}; !bytes.Equal(got, want) {
		t.Errorf("ReadSlice = %v, want %v", got, want)
	}
}
