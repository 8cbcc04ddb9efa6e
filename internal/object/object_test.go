package object

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

var cfg = binary.DefaultConfig()

// image is a sparse file assembled in memory.
type image []byte

func (img *image) put(addr int, b []byte) {
	if need := addr + len(b); need > len(*img) {
		*img = append(*img, make([]byte, need-len(*img))...)
	}
	copy((*img)[addr:], b)
}

func (img image) reader() *binary.Reader {
	return binary.NewReader(bytes.NewReader(img), cfg)
}

func TestEncodeRead(t *testing.T) {
	period := message.NewScalarAttribute("SamplePeriod", message.NewFixedPointDatatype(4, true, message.OrderLE), []byte{0x10, 0x27, 0, 0})
	msgs := GroupMessages([]*message.Link{message.NewHardLink("DATA", 0x400)}, []*message.Attribute{period})
	raw, err := Encode(msgs, cfg, MinGroupChunkSize)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(raw) < MinGroupChunkSize {
		t.Errorf("header of %d bytes is smaller than the minimum chunk", len(raw))
	}

	var img image
	img.put(64, raw)
	hdr, err := Read(img.reader(), 64)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if hdr.Version != 2 || !hdr.IsGroup() || hdr.IsDataset() {
		t.Errorf("version %d, group %v, dataset %v", hdr.Version, hdr.IsGroup(), hdr.IsDataset())
	}
	links := hdr.Links()
	if len(links) != 1 || links[0].Name != "DATA" || links[0].ObjectAddress != 0x400 {
		t.Errorf("links = %+v", links)
	}
	if a := hdr.Attribute("SamplePeriod"); a == nil || !bytes.Equal(a.Data, period.Data) {
		t.Errorf("SamplePeriod = %+v", a)
	}
	if hdr.Attribute("Calibration") != nil {
		t.Error("found an attribute that was never written")
	}
	if hdr.LinkInfo() == nil || hdr.LinkInfo().Dense() {
		t.Error("expected compact link storage")
	}
}

func TestDatasetMessages(t *testing.T) {
	layout := message.NewContiguousLayout(0x800, 24)
	msgs := DatasetMessages(message.NewDataspace([]uint64{3}, nil), message.NewFixedPointDatatype(8, true, message.OrderLE), layout, nil, nil)
	raw, err := Encode(msgs, cfg, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var img image
	img.put(0, raw)
	hdr, err := Read(img.reader(), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !hdr.IsDataset() || hdr.Filters() != nil {
		t.Fatalf("messages = %v", hdr.Messages)
	}
	if l := hdr.Layout(); l.Address != 0x800 || l.Size != 24 {
		t.Errorf("layout = %+v", l)
	}
	if fv, ok := hdr.Find(message.TypeFillValue).(*message.FillValue); !ok || fv.AllocTime != message.AllocLate {
		t.Errorf("fill value = %+v", hdr.Find(message.TypeFillValue))
	}
}

func TestReadChecksumMismatch(t *testing.T) {
	raw, err := Encode(GroupMessages(nil, nil), cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-6] ^= 0xFF
	var img image
	img.put(0, raw)
	if _, err := Read(img.reader(), 0); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Read = %v, want ErrChecksumMismatch", err)
	}
}

// v1Message encodes a version 1 header message, padded to 8 bytes.
func v1Message(typ message.Type, flags uint8, body []byte) []byte {
	for len(body)%8 != 0 {
		body = append(body, 0)
	}
	b := []byte{byte(typ), byte(typ >> 8), byte(len(body)), byte(len(body) >> 8), flags, 0, 0, 0}
	return append(b, body...)
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func TestReadV1WithContinuation(t *testing.T) {
	symtab := append(le64(0x200), le64(0x300)...)
	version, _ := message.Marshal(message.NewScalarAttribute("FILEVERSION", message.NewFixedPointDatatype(4, true, message.OrderLE), []byte{2, 0, 0, 0}), cfg)
	contBlock := v1Message(message.TypeAttribute, 0, version)
	cont := append(le64(0x100), le64(uint64(len(contBlock)))...)

	var msgs []byte
	msgs = append(msgs, v1Message(message.TypeSymbolTable, 0, symtab)...)
	msgs = append(msgs, v1Message(message.TypeObjectHeaderContinuation, 0, cont)...)
	prefix := []byte{1, 0, 2, 0, 1, 0, 0, 0, byte(len(msgs)), 0, 0, 0, 0, 0, 0, 0}

	var img image
	img.put(0, append(prefix, msgs...))
	img.put(0x100, contBlock)

	hdr, err := Read(img.reader(), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if hdr.Version != 1 {
		t.Errorf("version = %d", hdr.Version)
	}
	st := hdr.SymbolTable()
	if st == nil || st.BTreeAddress != 0x200 || st.LocalHeapAddress != 0x300 {
		t.Errorf("symbol table = %+v", st)
	}
	if hdr.Attribute("FILEVERSION") == nil {
		t.Error("attribute in continuation block not found")
	}
}

func TestCommittedDatatypeResolved(t *testing.T) {
	i64 := message.NewFixedPointDatatype(8, true, message.OrderLE)
	item := message.NewCompoundDatatype(16, []message.CompoundMember{
		{Name: "time", Type: i64},
		{Name: "offset", ByteOffset: 8, Type: i64},
	})
	named, err := Encode([]message.Message{item}, cfg, 0)
	if err != nil {
		t.Fatal(err)
	}

	// dataset header whose datatype is a version 3 shared message
	space, _ := message.Marshal(message.NewDataspace([]uint64{1}, nil), cfg)
	layout, _ := message.Marshal(message.NewContiguousLayout(0x900, 16), cfg)
	shared := append([]byte{3, message.SharedInHeader}, le64(0x40)...)
	var body []byte
	body = appendMessage(body, message.TypeDataspace, space)
	body = append(body, byte(message.TypeDatatype), byte(len(shared)), 0, message.FlagShared)
	body = append(body, shared...)
	body = appendMessage(body, message.TypeDataLayout, layout)
	hdrBytes := append([]byte{'O', 'H', 'D', 'R', 2, 0, byte(len(body))}, body...)
	sum := binary.Lookup3Checksum(hdrBytes)
	hdrBytes = append(hdrBytes, byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24))

	var img image
	img.put(0x40, named)
	img.put(0x200, hdrBytes)

	target, err := Read(img.reader(), 0x40)
	if err != nil {
		t.Fatalf("Read datatype: %v", err)
	}
	if !target.IsNamedDatatype() {
		t.Error("committed datatype not recognised")
	}

	hdr, err := Read(img.reader(), 0x200)
	if err != nil {
		t.Fatalf("Read dataset: %v", err)
	}
	dt := hdr.Datatype()
	if dt == nil || dt.Class != message.ClassCompound || len(dt.Members) != 2 {
		t.Fatalf("datatype = %+v", dt)
	}
}

func TestEncodeRejectsOversizedMessage(t *testing.T) {
	big := message.NewScalarAttribute("Channels", message.NewStringDatatype(70000, message.PadNullPad, message.CharsetASCII), make([]byte, 70000))
	if _, err := Encode([]message.Message{big}, cfg, 0); err == nil {
		t.Error("expected an error for a message over 64 KiB")
	}
}
