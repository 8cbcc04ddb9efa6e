package binary

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type buffer struct{ b []byte }

func (b *buffer) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(b.b) {
		b.b = append(b.b, make([]byte, end-len(b.b))...)
	}
	return copy(b.b[off:], p), nil
}

func TestLookup3Checksum(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0xdeadbeef},
		{"Four score and seven years ago", 0x17770551},
	}
	for _, tt := range tests {
		if got := Lookup3Checksum([]byte(tt.in)); got != tt.want {
			t.Errorf("Lookup3Checksum(%q) = %#08x, want %#08x", tt.in, got, tt.want)
		}
	}
}

func TestFletcher32(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0},
		{"abcde", 0xf04fc729},
		{"abcdef", 0x56502d2a},
		{"abcdefgh", 0xebe19591},
	}
	for _, tt := range tests {
		if got := Fletcher32([]byte(tt.in)); got != tt.want {
			t.Errorf("Fletcher32(%q) = %#08x, want %#08x", tt.in, got, tt.want)
		}
	}
}

func TestWriterReaderFields(t *testing.T) {
	for _, cfg := range []Config{
		DefaultConfig(),
		{ByteOrder: binary.LittleEndian, OffsetSize: 4, LengthSize: 4},
		{ByteOrder: binary.BigEndian, OffsetSize: 8, LengthSize: 2},
	} {
		buf := &buffer{}
		w := NewWriter(buf, cfg)
		steps := []error{
			w.WriteBytes([]byte("HDF")),
			w.WriteUint8(2),
			w.WriteUint16(1000),
			w.WriteUint32(25000),
			w.WriteUint64(1 << 40),
			w.WriteOffset(0x800),
			w.WriteLength(96),
			w.WriteOffset(w.UndefinedOffset()),
			w.WriteZeros(3),
		}
		for i, err := range steps {
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		wantLen := 3 + 1 + 2 + 4 + 8 + 2*cfg.OffsetSize + cfg.LengthSize + 3
		if int(w.Pos()) != wantLen || len(buf.b) != wantLen {
			t.Fatalf("wrote %d bytes (pos %d), want %d", len(buf.b), w.Pos(), wantLen)
		}

		r := NewReader(bytes.NewReader(buf.b), cfg)
		sig, _ := r.ReadBytes(3)
		v8, _ := r.ReadUint8()
		v16, _ := r.ReadUint16()
		v32, _ := r.ReadUint32()
		v64, _ := r.ReadUint64()
		addr, _ := r.ReadOffset()
		length, _ := r.ReadLength()
		undef, err := r.ReadOffset()
		if err != nil {
			t.Fatal(err)
		}
		if string(sig) != "HDF" || v8 != 2 || v16 != 1000 || v32 != 25000 || v64 != 1<<40 || addr != 0x800 || length != 96 {
			t.Errorf("%+v: read %q %d %d %d %d %#x %d", cfg, sig, v8, v16, v32, v64, addr, length)
		}
		if !r.IsUndefinedOffset(undef) || r.IsUndefinedOffset(addr) {
			t.Errorf("%+v: undefined offset %#x not recognised", cfg, undef)
		}
	}
}

func TestReaderPositioning(t *testing.T) {
	data := []byte{1, 0, 0, 0, 0, 0, 0, 0, 0xaa, 0xbb, 0x34, 0x12}
	r := NewReader(bytes.NewReader(data), DefaultConfig())

	r.Skip(1)
	r.Align(8)
	if r.Pos() != 8 {
		t.Fatalf("Align(8) from 1 = %d, want 8", r.Pos())
	}
	r.Align(8)
	if r.Pos() != 8 {
		t.Errorf("Align on an aligned position moved to %d", r.Pos())
	}
	peek, err := r.Peek(2)
	if err != nil || !bytes.Equal(peek, []byte{0xaa, 0xbb}) || r.Pos() != 8 {
		t.Errorf("Peek = %x, %v at %d", peek, err, r.Pos())
	}
	v, err := r.At(10).ReadUintN(2)
	if err != nil || v != 0x1234 {
		t.Errorf("At(10).ReadUintN(2) = %#x, %v", v, err)
	}
	if r.Pos() != 8 {
		t.Errorf("At moved the original reader to %d", r.Pos())
	}
	if _, err := r.At(11).ReadUint16(); err == nil {
		t.Error("reading past the end should fail")
	}
}
