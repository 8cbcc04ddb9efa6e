package btree

import (
	"bytes"
	"encoding/binary"
	"testing"

	binpkg "github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/heap"
)

// file is a little endian image built at increasing offsets.
type file struct{ bytes.Buffer }

func (f *file) put(v ...interface{}) uint64 {
	at := uint64(f.Len())
	for _, x := range v {
		if s, ok := x.(string); ok {
			f.WriteString(s)
			continue
		}
		binary.Write(f, binary.LittleEndian, x)
	}
	return at
}

func (f *file) reader() *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(f.Bytes()), binpkg.DefaultConfig())
}

const undef = ^uint64(0)

func TestGroupEntries(t *testing.T) {
	var f file
	names := "\x00CONT1\x00EV02\x00link\x00/CONT1\x00\x00"
	heapAt := f.put("HEAP", uint32(0), uint64(len(names)), uint64(0), uint64(32))
	f.put(names)

	snod := f.put("SNOD", uint8(1), uint8(0), uint16(3))
	f.put(uint64(1), uint64(0x400), uint32(1), uint32(0), make([]byte, 16))
	f.put(uint64(7), uint64(0x800), uint32(0), uint32(0), make([]byte, 16))
	f.put(uint64(12), uint64(undef), uint32(2), uint32(0), uint32(17), make([]byte, 12))

	leaf := f.put("TREE", uint8(0), uint8(0), uint16(1), undef, undef)
	f.put(uint64(0), snod, uint64(12))
	root := f.put("TREE", uint8(0), uint8(1), uint16(1), undef, undef)
	f.put(uint64(0), leaf, uint64(12))

	r := f.reader()
	names2, err := heap.ReadLocal(r, heapAt)
	if err != nil {
		t.Fatal(err)
	}
	for _, addr := range []uint64{leaf, root} {
		entries, err := GroupEntries(r, addr, names2)
		if err != nil {
			t.Fatalf("GroupEntries(%#x) failed: %v", addr, err)
		}
		want := []GroupEntry{
			{Name: "CONT1", Address: 0x400},
			{Name: "EV02", Address: 0x800},
			{Name: "link", Soft: true, Target: "/CONT1"},
		}
		if len(entries) != len(want) {
			t.Fatalf("got %+v, want %+v", entries, want)
		}
		for i := range want {
			if entries[i] != want[i] {
				t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
			}
		}
	}

	if _, err := ChunkEntries(r, leaf, 1); err == nil {
		t.Error("expected node type error")
	}
}

func TestChunkEntries(t *testing.T) {
	var f file
	f.put(make([]byte, 16))
	leaf := f.put("TREE", uint8(1), uint8(0), uint16(3), undef, undef)
	f.put(uint32(24), uint32(0), uint64(0), uint64(0), uint64(0), uint64(0x1000))
	f.put(uint32(24), uint32(1), uint64(3), uint64(0), uint64(0), uint64(0x2000))
	f.put(uint32(0), uint32(0), uint64(6), uint64(0), uint64(0), undef)
	f.put(uint32(0), uint32(0), uint64(9), uint64(0), uint64(0))
	root := f.put("TREE", uint8(1), uint8(1), uint16(1), undef, undef)
	f.put(uint32(0), uint32(0), uint64(0), uint64(0), uint64(0), leaf)
	f.put(uint32(0), uint32(0), uint64(9), uint64(0), uint64(0))

	for _, addr := range []uint64{leaf, root} {
		chunks, err := ChunkEntries(f.reader(), addr, 2)
		if err != nil {
			t.Fatalf("ChunkEntries(%#x) failed: %v", addr, err)
		}
		if len(chunks) != 2 {
			t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
		}
		second := chunks[1]
		if second.Address != 0x2000 || second.Size != 24 || second.FilterMask != 1 || second.Offset[0] != 3 || second.Offset[1] != 0 {
			t.Errorf("second chunk = %+v", second)
		}
	}
}

// sum appends the checksum of everything written since at.
func (f *file) sum(at uint64) {
	f.put(binpkg.Lookup3Checksum(f.Bytes()[at:]))
}

func TestChunkEntriesV2(t *testing.T) {
	var f file
	f.put(make([]byte, 16))
	chunk := []uint64{4, 3}

	leafA := f.put("BTLF", uint8(0), uint8(10))
	f.put(uint64(0x1000), uint64(0), uint64(0))
	f.sum(leafA)
	leafB := f.put("BTLF", uint8(0), uint8(10))
	f.put(uint64(0x3000), uint64(1), uint64(1))
	f.put(undef, uint64(2), uint64(0))
	f.sum(leafB)
	// Records come first, then one pointer per child: address and a one
	// byte record count.
	in := f.put("BTIN", uint8(0), uint8(10))
	f.put(uint64(0x2000), uint64(0), uint64(1))
	f.put(leafA, uint8(1), leafB, uint8(2))
	f.sum(in)

	header := func(typ uint8, rrec, depth uint16, root uint64) uint64 {
		at := f.put("BTHD", uint8(0), typ, uint32(512), rrec, depth, uint8(100), uint8(40), root, uint16(1), uint64(0))
		f.sum(at)
		return at
	}
	deep := header(10, 24, 1, in)
	shallow := header(10, 24, 0, leafA)

	filtered := f.put("BTLF", uint8(0), uint8(11))
	f.put(uint64(0x4000), uint16(100), uint32(1), uint64(2), uint64(0))
	f.sum(filtered)
	filteredHdr := header(11, 30, 0, filtered)

	chunks, err := ChunkEntriesV2(f.reader(), deep, chunk)
	if err != nil {
		t.Fatal(err)
	}
	want := []Chunk{
		{Offset: []uint64{0, 3}, Address: 0x2000},
		{Offset: []uint64{0, 0}, Address: 0x1000},
		{Offset: []uint64{4, 3}, Address: 0x3000},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %+v, want %+v", chunks, want)
	}
	for i, w := range want {
		c := chunks[i]
		if c.Address != w.Address || c.Offset[0] != w.Offset[0] || c.Offset[1] != w.Offset[1] {
			t.Errorf("chunk %d = %+v, want %+v", i, c, w)
		}
	}

	chunks, err = ChunkEntriesV2(f.reader(), shallow, chunk)
	if err != nil || len(chunks) != 1 || chunks[0].Address != 0x1000 {
		t.Errorf("leaf root: %+v, %v", chunks, err)
	}

	chunks, err = ChunkEntriesV2(f.reader(), filteredHdr, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("filtered: got %+v", chunks)
	}
	if c := chunks[0]; c.Address != 0x4000 || c.Size != 100 || c.FilterMask != 1 || c.Offset[0] != 8 || c.Offset[1] != 0 {
		t.Errorf("filtered chunk = %+v", c)
	}

	if _, err := ChunkEntriesV2(f.reader(), shallow, []uint64{4, 3, 1}); err == nil {
		t.Error("expected record size error for the wrong rank")
	}
	f.Bytes()[leafA+8] ^= 0xFF
	if _, err := ChunkEntriesV2(f.reader(), deep, chunk); err == nil {
		t.Error("expected checksum error")
	}
}
