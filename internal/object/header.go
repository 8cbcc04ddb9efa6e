// Package object reads and writes object headers, the message lists that
// describe every group, dataset and committed datatype in a file.
package object

import (
	"errors"
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

var (
	ErrInvalidHeader       = errors.New("invalid object header")
	ErrUnsupportedVersion  = errors.New("unsupported object header version")
	ErrChecksumMismatch    = errors.New("object header checksum mismatch")
	errContinuationTooDeep = errors.New("object header continuation chain too long")
)

// Header is a decoded object header. Continuation blocks are followed and
// their messages appended in file order; NIL messages are dropped.
type Header struct {
	Version  uint8
	Address  uint64
	Messages []message.Message
}

// Read decodes the object header at address and resolves references to
// committed datatypes.
func Read(r *binary.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address))
	prefix, err := hr.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}

	hdr := &Header{Address: address}
	switch {
	case string(prefix) == "OHDR":
		hdr.Version = 2
		err = readV2(hr, hdr)
	case prefix[0] == 1:
		hdr.Version = 1
		err = readV1(hr, hdr)
	default:
		return nil, fmt.Errorf("%w: no header at %d", ErrInvalidHeader, address)
	}
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	if err := resolveShared(r, hdr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// resolveShared replaces committed datatype references, in the header and
// in its attributes, with the datatype they name. Other shared messages
// live in a heap this package does not read; they are dropped.
func resolveShared(r *binary.Reader, hdr *Header) error {
	kept := hdr.Messages[:0]
	for _, msg := range hdr.Messages {
		switch m := msg.(type) {
		case *message.Shared:
			if !m.Committed() || m.MsgType != message.TypeDatatype {
				continue
			}
			dt, err := committedType(r, m)
			if err != nil {
				return err
			}
			msg = dt
		case *message.Attribute:
			if m.SharedType != nil {
				dt, err := committedType(r, m.SharedType)
				if err != nil {
					return fmt.Errorf("attribute %q: %w", m.Name, err)
				}
				m.Datatype, m.SharedType = dt, nil
			}
		}
		kept = append(kept, msg)
	}
	hdr.Messages = kept
	return nil
}

func committedType(r *binary.Reader, ref *message.Shared) (*message.Datatype, error) {
	if !ref.Committed() {
		return nil, fmt.Errorf("%w: datatype stored in the shared message heap", ErrInvalidHeader)
	}
	target, err := Read(r, ref.Address)
	if err != nil {
		return nil, fmt.Errorf("reading committed datatype: %w", err)
	}
	dt := target.Datatype()
	if dt == nil {
		return nil, fmt.Errorf("%w: object at %d holds no datatype", ErrInvalidHeader, ref.Address)
	}
	return dt, nil
}

// Find returns the first message of type typ, or nil.
func (h *Header) Find(typ message.Type) message.Message {
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			return msg
		}
	}
	return nil
}

func find[T message.Message](h *Header, typ message.Type) T {
	m, _ := h.Find(typ).(T)
	return m
}

func findAll[T message.Message](h *Header, typ message.Type) []T {
	var out []T
	for _, msg := range h.Messages {
		if m, ok := msg.(T); ok && msg.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

func (h *Header) Dataspace() *message.Dataspace {
	return find[*message.Dataspace](h, message.TypeDataspace)
}

func (h *Header) Datatype() *message.Datatype {
	return find[*message.Datatype](h, message.TypeDatatype)
}

func (h *Header) Layout() *message.DataLayout {
	return find[*message.DataLayout](h, message.TypeDataLayout)
}

func (h *Header) Filters() *message.FilterPipeline {
	return find[*message.FilterPipeline](h, message.TypeFilterPipeline)
}

func (h *Header) SymbolTable() *message.SymbolTable {
	return find[*message.SymbolTable](h, message.TypeSymbolTable)
}

func (h *Header) LinkInfo() *message.LinkInfo {
	return find[*message.LinkInfo](h, message.TypeLinkInfo)
}

func (h *Header) Links() []*message.Link {
	return findAll[*message.Link](h, message.TypeLink)
}

func (h *Header) Attributes() []*message.Attribute {
	return findAll[*message.Attribute](h, message.TypeAttribute)
}

// Attribute returns the attribute called name, or nil.
func (h *Header) Attribute(name string) *message.Attribute {
	for _, a := range h.Attributes() {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// IsDataset reports whether the header has a dataspace and a layout.
func (h *Header) IsDataset() bool {
	return h.Dataspace() != nil && h.Layout() != nil
}

// IsNamedDatatype reports whether the header is a committed datatype: a
// datatype message without a dataspace.
func (h *Header) IsNamedDatatype() bool {
	return h.Dataspace() == nil && h.Datatype() != nil
}

// IsGroup reports whether the header holds links, a link info message or
// a symbol table.
func (h *Header) IsGroup() bool {
	return h.SymbolTable() != nil || h.LinkInfo() != nil || len(h.Links()) > 0
}
