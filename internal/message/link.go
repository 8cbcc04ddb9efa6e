package message

import (
	"bytes"
	"fmt"
	"math/bits"
)

// LinkType is the kind of a link message.
type LinkType uint8

const (
	LinkTypeHard     LinkType = 0
	LinkTypeSoft     LinkType = 1
	LinkTypeExternal LinkType = 64
)

// Link names a member of a new style group.
type Link struct {
	LinkType      LinkType
	CreationOrder uint64
	Name          string

	ObjectAddress uint64 // hard links
	SoftLinkValue string // soft links
	ExternalFile  string // external links
	ExternalPath  string
}

func (m *Link) Type() Type { return TypeLink }

func (m *Link) IsHard() bool     { return m.LinkType == LinkTypeHard }
func (m *Link) IsSoft() bool     { return m.LinkType == LinkTypeSoft }
func (m *Link) IsExternal() bool { return m.LinkType == LinkTypeExternal }

const (
	linkHasOrder   = 0x04
	linkHasType    = 0x08
	linkHasCharset = 0x10
)

func decodeLink(d *decoder) *Link {
	if v := d.u8(); v != 1 {
		d.fail(fmt.Errorf("unsupported link version %d", v))
		return nil
	}
	flags := d.u8()
	m := &Link{}
	if flags&linkHasType != 0 {
		m.LinkType = LinkType(d.u8())
	}
	if flags&linkHasOrder != 0 {
		m.CreationOrder = d.u64()
	}
	if flags&linkHasCharset != 0 {
		d.skip(1)
	}
	nameLen := int(d.uint(1 << (flags & 0x03)))
	m.Name = string(d.take(nameLen))

	switch m.LinkType {
	case LinkTypeHard:
		m.ObjectAddress = d.offset()
	case LinkTypeSoft:
		m.SoftLinkValue = string(d.take(int(d.u16())))
	case LinkTypeExternal:
		value := d.take(int(d.u16()))
		if len(value) < 2 {
			d.fail(fmt.Errorf("external link %q too short", m.Name))
			return m
		}
		parts := bytes.SplitN(value[1:], []byte{0}, 3)
		m.ExternalFile = string(parts[0])
		if len(parts) > 1 {
			m.ExternalPath = string(parts[1])
		}
	}
	return m
}

func (m *Link) encode(e *encoder) {
	width := sizeBytes(uint64(len(m.Name)))
	flags := uint8(bits.TrailingZeros8(uint8(width)))
	if m.LinkType != LinkTypeHard {
		flags |= linkHasType
	}
	if m.CreationOrder != 0 {
		flags |= linkHasOrder
	}
	e.u8(1)
	e.u8(flags)
	if flags&linkHasType != 0 {
		e.u8(uint8(m.LinkType))
	}
	if flags&linkHasOrder != 0 {
		e.uint(m.CreationOrder, 8)
	}
	e.uint(uint64(len(m.Name)), width)
	e.bytes([]byte(m.Name))

	switch m.LinkType {
	case LinkTypeHard:
		e.offset(m.ObjectAddress)
	case LinkTypeSoft:
		e.u16(uint16(len(m.SoftLinkValue)))
		e.bytes([]byte(m.SoftLinkValue))
	case LinkTypeExternal:
		e.u16(uint16(len(m.ExternalFile) + len(m.ExternalPath) + 3))
		e.u8(0)
		e.cstring(m.ExternalFile)
		e.cstring(m.ExternalPath)
	}
}

func NewHardLink(name string, address uint64) *Link {
	return &Link{LinkType: LinkTypeHard, Name: name, ObjectAddress: address}
}

func NewSoftLink(name, target string) *Link {
	return &Link{LinkType: LinkTypeSoft, Name: name, SoftLinkValue: target}
}

func NewExternalLink(name, file, path string) *Link {
	return &Link{LinkType: LinkTypeExternal, Name: name, ExternalFile: file, ExternalPath: path}
}

// UndefinedAddress marks an absent address field.
const UndefinedAddress = ^uint64(0)

// LinkInfo records where a new style group keeps its links. Groups written
// here store every link in the header, so the heap addresses stay
// undefined.
type LinkInfo struct {
	Flags              uint8
	MaxCreationIndex   uint64
	FractalHeapAddress uint64
	NameIndexAddress   uint64
	CreationOrderIndex uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

// Dense reports whether links live in a fractal heap instead of the header.
func (m *LinkInfo) Dense() bool { return m.FractalHeapAddress != UndefinedAddress }

func decodeLinkInfo(d *decoder) *LinkInfo {
	d.skip(1)
	m := &LinkInfo{Flags: d.u8(), CreationOrderIndex: UndefinedAddress}
	if m.Flags&0x01 != 0 {
		m.MaxCreationIndex = d.u64()
	}
	m.FractalHeapAddress = d.offset()
	m.NameIndexAddress = d.offset()
	if m.Flags&0x02 != 0 {
		m.CreationOrderIndex = d.offset()
	}
	if d.cfg.OffsetSize < 8 && m.FractalHeapAddress == 1<<(8*d.cfg.OffsetSize)-1 {
		m.FractalHeapAddress = UndefinedAddress
	}
	return m
}

func (m *LinkInfo) encode(e *encoder) {
	e.u8(0)
	e.u8(m.Flags)
	if m.Flags&0x01 != 0 {
		e.uint(m.MaxCreationIndex, 8)
	}
	e.offset(m.FractalHeapAddress)
	e.offset(m.NameIndexAddress)
	if m.Flags&0x02 != 0 {
		e.offset(m.CreationOrderIndex)
	}
}

func NewLinkInfo() *LinkInfo {
	return &LinkInfo{
		FractalHeapAddress: UndefinedAddress,
		NameIndexAddress:   UndefinedAddress,
		CreationOrderIndex: UndefinedAddress,
	}
}

// GroupInfo carries the link storage thresholds of a new style group. The
// zero value selects the library defaults.
type GroupInfo struct {
	MaxCompactLinks uint16
	MinDenseLinks   uint16
}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) encode(e *encoder) {
	if m.MaxCompactLinks == 0 {
		e.u8(0)
		e.u8(0)
		return
	}
	e.u8(0)
	e.u8(0x01)
	e.u16(m.MaxCompactLinks)
	e.u16(m.MinDenseLinks)
}

func NewGroupInfo() *GroupInfo { return &GroupInfo{} }
