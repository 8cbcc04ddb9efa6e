package object

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// MinGroupChunkSize is the smallest message area given to group headers,
// matching what the reference library allocates for an empty group.
const MinGroupChunkSize = 120

// Encode lays out messages as a version 2 object header with a single
// chunk. A message area smaller than minChunk is filled with a NIL message.
func Encode(messages []message.Message, cfg binary.Config, minChunk int) ([]byte, error) {
	var body []byte
	for _, msg := range messages {
		data, err := message.Marshal(msg, cfg)
		if err != nil {
			return nil, err
		}
		if len(data) > 0xFFFF {
			return nil, fmt.Errorf("%v message of %d bytes does not fit an object header", msg.Type(), len(data))
		}
		body = appendMessage(body, msg.Type(), data)
	}
	if gap := minChunk - len(body); gap > 0 {
		body = appendMessage(body, message.TypeNIL, make([]byte, max(gap-4, 0)))
	}

	width := chunkSizeWidth(len(body))
	out := make([]byte, 0, 6+width+len(body)+4)
	out = append(out, 'O', 'H', 'D', 'R', 2, byte(width>>1))
	for i := range width {
		out = append(out, byte(len(body)>>(8*i)))
	}
	out = append(out, body...)
	sum := binary.Lookup3Checksum(out)
	return append(out, byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24)), nil
}

func appendMessage(b []byte, typ message.Type, data []byte) []byte {
	b = append(b, byte(typ), byte(len(data)), byte(len(data)>>8), 0)
	return append(b, data...)
}

// chunkSizeWidth returns 1, 2 or 4: the width of the chunk size field,
// encoded in the flags as width>>1 (0, 1 or 2).
func chunkSizeWidth(n int) int {
	switch {
	case n <= 0xFF:
		return 1
	case n <= 0xFFFF:
		return 2
	}
	return 4
}

// GroupMessages returns the messages of a new style group holding links
// and attributes in its header.
func GroupMessages(links []*message.Link, attrs []*message.Attribute) []message.Message {
	msgs := []message.Message{message.NewLinkInfo(), message.NewGroupInfo()}
	for _, l := range links {
		msgs = append(msgs, l)
	}
	for _, a := range attrs {
		msgs = append(msgs, a)
	}
	return msgs
}

// DatasetMessages returns the messages of a dataset header. filters may be
// nil.
func DatasetMessages(space *message.Dataspace, dt *message.Datatype, layout *message.DataLayout, filters *message.FilterPipeline, attrs []*message.Attribute) []message.Message {
	var alloc uint8
	switch layout.Class {
	case message.LayoutCompact:
		alloc = message.AllocEarly
	case message.LayoutChunked:
		alloc = message.AllocIncremental
	default:
		alloc = message.AllocLate
	}
	msgs := []message.Message{space, dt, message.NewFillValue(alloc), layout}
	if filters != nil && len(filters.Filters) > 0 {
		msgs = append(msgs, filters)
	}
	for _, a := range attrs {
		msgs = append(msgs, a)
	}
	return msgs
}
