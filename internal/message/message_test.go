package message

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
)

var cfg = binary.DefaultConfig()

func reparse(t *testing.T, m Message) Message {
	t.Helper()
	raw, err := Marshal(m, cfg)
	if err != nil {
		t.Fatalf("Marshal(%v): %v", m.Type(), err)
	}
	got, err := Parse(m.Type(), raw, 0, cfg)
	if err != nil {
		t.Fatalf("Parse(%v): %v", m.Type(), err)
	}
	return got
}

func TestContIndexItemDatatype(t *testing.T) {
	i64 := NewFixedPointDatatype(8, true, OrderLE)
	item := NewCompoundDatatype(16, []CompoundMember{
		{Name: "time", ByteOffset: 0, Type: i64},
		{Name: "offset", ByteOffset: 8, Type: i64},
	})

	got := reparse(t, item).(*Datatype)
	if got.Class != ClassCompound || got.Size != 16 || len(got.Members) != 2 {
		t.Fatalf("got class %d size %d with %d members", got.Class, got.Size, len(got.Members))
	}
	off, ok := got.Member("offset")
	if !ok || off.ByteOffset != 8 || off.Type.Size != 8 || !off.Type.Signed {
		t.Errorf("offset member = %+v", off)
	}
	if _, ok := got.Member("sample"); ok {
		t.Error("found a member that does not exist")
	}
}

func TestDecodeCompoundV1(t *testing.T) {
	// {TrialNo int32; StimNo int32} in the padded layout of version 1
	var b []byte
	b = append(b, 0x16, 2, 0, 0, 8, 0, 0, 0)
	for i, name := range []string{"TrialNo", "StimNo"} {
		field := append([]byte(name), 0)
		for len(field)%8 != 0 {
			field = append(field, 0)
		}
		b = append(b, field...)
		b = append(b, byte(4*i), 0, 0, 0)
		b = append(b, make([]byte, 28)...)
		b = append(b, 0x10, 0x08, 0, 0, 4, 0, 0, 0, 0, 0, 32, 0)
	}

	m, err := Parse(TypeDatatype, b, 0, cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dt := m.(*Datatype)
	if len(dt.Members) != 2 {
		t.Fatalf("got %d members, want 2", len(dt.Members))
	}
	stim := dt.Members[1]
	if stim.Name != "StimNo" || stim.ByteOffset != 4 || stim.Type.Size != 4 || !stim.Type.Signed {
		t.Errorf("StimNo = %+v", stim)
	}
}

func TestStringAndArrayDatatypes(t *testing.T) {
	name := reparse(t, NewStringDatatype(64, PadNullPad, CharsetASCII)).(*Datatype)
	if name.Class != ClassString || name.Size != 64 || name.StringPadding != PadNullPad {
		t.Errorf("string = %+v", name)
	}

	vlen := reparse(t, NewVarLenStringDatatype(CharsetUTF8)).(*Datatype)
	if !vlen.IsVarLen() || !vlen.IsVarLenString || vlen.CharSet != CharsetUTF8 || vlen.BaseType == nil {
		t.Errorf("vlen string = %+v", vlen)
	}

	arr := reparse(t, NewArrayDatatype([]uint32{3}, NewFloatDatatype(8, OrderLE))).(*Datatype)
	if arr.Class != ClassArray || arr.Size != 24 || len(arr.ArrayDims) != 1 || arr.BaseType.Class != ClassFloatPoint {
		t.Errorf("array = %+v", arr)
	}
}

func TestDataspace(t *testing.T) {
	got := reparse(t, NewDataspace([]uint64{1000, 4}, nil)).(*Dataspace)
	if got.Rank() != 2 || got.NumElements() != 4000 || got.MaxDims != nil {
		t.Errorf("simple = %+v", got)
	}
	if s := reparse(t, NewScalarDataspace()).(*Dataspace); !s.IsScalar() || s.NumElements() != 1 {
		t.Errorf("scalar = %+v", s)
	}
	if n := reparse(t, NewNullDataspace()).(*Dataspace); !n.IsNull() || n.NumElements() != 0 {
		t.Errorf("null = %+v", n)
	}
}

func TestChunkedLayout(t *testing.T) {
	l := NewChunkedLayout([]uint32{1024, 4}, 2, ChunkIndexFixedArray)
	l.Address = 0x1234
	got := reparse(t, l).(*DataLayout)
	if got.Class != LayoutChunked || got.IndexType != ChunkIndexFixedArray || got.Address != 0x1234 {
		t.Fatalf("layout = %+v", got)
	}
	if want := []uint32{1024, 4, 2}; len(got.ChunkDims) != 3 || got.ChunkDims[0] != want[0] || got.ChunkDims[2] != want[2] {
		t.Errorf("ChunkDims = %v, want %v", got.ChunkDims, want)
	}
	if got.PageBits != 10 {
		t.Errorf("PageBits = %d, want 10", got.PageBits)
	}

	l.IndexType = ChunkIndexBTreeV2
	if _, err := Marshal(l, cfg); err == nil {
		t.Error("writing a v2 B-tree index should fail")
	}
}

func TestDecodeLayoutV3Chunked(t *testing.T) {
	b := []byte{3, byte(LayoutChunked), 3}
	b = append(b, 0x00, 0x10, 0, 0, 0, 0, 0, 0) // index address
	b = append(b, 100, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0)

	m, err := Parse(TypeDataLayout, b, 0, cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	l := m.(*DataLayout)
	if l.IndexType != ChunkIndexBTreeV1 || l.Address != 0x1000 || len(l.ChunkDims) != 3 || l.ChunkDims[0] != 100 {
		t.Errorf("layout = %+v", l)
	}
}

func TestLinks(t *testing.T) {
	hard := reparse(t, NewHardLink("CONT1", 0x800)).(*Link)
	if !hard.IsHard() || hard.Name != "CONT1" || hard.ObjectAddress != 0x800 {
		t.Errorf("hard = %+v", hard)
	}
	soft := reparse(t, NewSoftLink("latest", "/CONT1")).(*Link)
	if !soft.IsSoft() || soft.SoftLinkValue != "/CONT1" {
		t.Errorf("soft = %+v", soft)
	}
	ext := reparse(t, NewExternalLink("raw", "session.raw.h5", "/CONT1")).(*Link)
	if !ext.IsExternal() || ext.ExternalFile != "session.raw.h5" || ext.ExternalPath != "/CONT1" {
		t.Errorf("external = %+v", ext)
	}
	if info := reparse(t, NewLinkInfo()).(*LinkInfo); info.Dense() {
		t.Error("new link info reports dense storage")
	}
}

func TestAttribute(t *testing.T) {
	attr := NewScalarAttribute("SamplePeriod", NewFixedPointDatatype(4, true, OrderLE), []byte{0xE8, 0x03, 0, 0})
	got := reparse(t, attr).(*Attribute)
	if got.Name != "SamplePeriod" || !got.Dataspace.IsScalar() || got.Datatype.Size != 4 {
		t.Errorf("attribute = %+v", got)
	}
	if !bytes.Equal(got.Data, attr.Data) {
		t.Errorf("data = %v, want %v", got.Data, attr.Data)
	}
}

func TestDecodeAttributeV1(t *testing.T) {
	dt := &encoder{cfg: cfg}
	NewFixedPointDatatype(4, true, OrderLE).encode(dt)
	// version 1 dataspace of rank 1
	space := []byte{1, 1, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0}

	b := []byte{1, 0, 8, 0, byte(len(dt.buf)), 0, byte(len(space)), 0}
	b = append(b, "Outcome\x00"...)
	b = append(b, dt.buf...)
	b = append(b, 0, 0, 0, 0) // 12 bytes padded to 16
	b = append(b, space...)
	b = append(b, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0)

	m, err := Parse(TypeAttribute, b, 0, cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	attr := m.(*Attribute)
	if attr.Name != "Outcome" || attr.Dataspace.NumElements() != 3 || len(attr.Data) != 12 {
		t.Errorf("attribute = %+v", attr)
	}
}

func TestSharedDatatype(t *testing.T) {
	b := []byte{3, SharedInHeader, 0x40, 0, 0, 0, 0, 0, 0, 0}
	m, err := Parse(TypeDatatype, b, FlagShared, cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, ok := m.(*Shared)
	if !ok || !s.Committed() || s.Address != 0x40 || s.Type() != TypeDatatype {
		t.Errorf("shared = %#v", m)
	}
	if _, err := Marshal(s, cfg); err == nil {
		t.Error("shared messages should not be writable")
	}
}

func TestParseUnknownAndTruncated(t *testing.T) {
	m, err := Parse(TypeModificationTime, []byte{1, 0, 0, 0, 9, 8, 7, 6}, 0, cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	raw, err := Marshal(m, cfg)
	if err != nil || len(raw) != 8 || raw[4] != 9 {
		t.Errorf("unknown message round trip = %v, %v", raw, err)
	}

	_, err = Parse(TypeDataspace, []byte{2, 2, 0, 1, 10, 0}, 0, cfg)
	if !errors.Is(err, errTruncated) {
		t.Errorf("truncated dataspace: got %v", err)
	}
}
