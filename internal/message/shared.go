package message

import "fmt"

// Where a shared message body lives.
const (
	SharedInHeap   = 1
	SharedInHeader = 2
)

// Shared is a reference to a message stored elsewhere. Committed datatypes
// are the only kind this module follows.
type Shared struct {
	MsgType  Type
	Location uint8
	Address  uint64 // object header address when Location is SharedInHeader
}

func (m *Shared) Type() Type { return m.MsgType }

// Committed reports whether the body is the header of a named object.
func (m *Shared) Committed() bool { return m.Location == SharedInHeader }

func decodeShared(d *decoder, typ Type) *Shared {
	m := &Shared{MsgType: typ, Location: SharedInHeader}
	switch v := d.u8(); v {
	case 1:
		d.skip(7)
		m.Address = d.offset()
	case 2:
		d.skip(1)
		m.Address = d.offset()
	case 3:
		m.Location = d.u8()
		if m.Location == SharedInHeader {
			m.Address = d.offset()
		}
	default:
		d.fail(fmt.Errorf("unsupported shared message version %d", v))
	}
	return m
}
