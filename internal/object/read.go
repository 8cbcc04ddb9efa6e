package object

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// maxContinuations bounds the continuation blocks followed per header.
const maxContinuations = 1024

// rawMessage is a message body before decoding.
type rawMessage struct {
	typ   message.Type
	flags uint8
	data  []byte
}

// block is one contiguous run of messages: the first chunk of a header or
// a continuation block.
type block struct {
	addr, size uint64
}

// readV1 decodes a version 1 header: a 16 byte prefix followed by 8 byte
// aligned messages with 8 byte headers. Continuation blocks are bare
// message runs.
func readV1(r *binary.Reader, hdr *Header) error {
	r.Skip(2)
	if _, err := r.ReadUint16(); err != nil { // message count
		return err
	}
	r.Skip(4) // reference count
	size, err := r.ReadUint32()
	if err != nil {
		return err
	}
	r.Skip(4)

	queue := []block{{addr: uint64(r.Pos()), size: uint64(size)}}
	return walkBlocks(r, hdr, queue, func(b block) ([]rawMessage, error) {
		data, err := r.At(int64(b.addr)).ReadBytes(int(b.size))
		if err != nil {
			return nil, err
		}
		var msgs []rawMessage
		for pos := 0; pos+8 <= len(data); {
			typ := message.Type(uint16(data[pos]) | uint16(data[pos+1])<<8)
			n := int(data[pos+2]) | int(data[pos+3])<<8
			flags := data[pos+4]
			pos += 8
			if pos+n > len(data) {
				return nil, fmt.Errorf("%w: message of %d bytes overruns its block", ErrInvalidHeader, n)
			}
			msgs = append(msgs, rawMessage{typ: typ, flags: flags, data: data[pos : pos+n]})
			pos += (n + 7) &^ 7
		}
		return msgs, nil
	})
}

// readV2 decodes a version 2 header. The first chunk and every
// continuation block end in a Jenkins lookup3 checksum.
func readV2(r *binary.Reader, hdr *Header) error {
	start := r.Pos()
	r.Skip(5)
	flags, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if flags&0x20 != 0 {
		r.Skip(16) // access, modification, change and birth times
	}
	if flags&0x10 != 0 {
		r.Skip(4) // attribute storage phase change values
	}
	size, err := r.ReadUintN(1 << (flags & 0x03))
	if err != nil {
		return err
	}
	ordered := flags&0x04 != 0

	prefix := r.Pos() - start
	first := block{addr: uint64(start), size: uint64(prefix) + size + 4}
	return walkBlocks(r, hdr, []block{first}, func(b block) ([]rawMessage, error) {
		data, err := r.At(int64(b.addr)).ReadBytes(int(b.size))
		if err != nil {
			return nil, err
		}
		body := data[:len(data)-4]
		stored := uint32(data[len(data)-4]) | uint32(data[len(data)-3])<<8 |
			uint32(data[len(data)-2])<<16 | uint32(data[len(data)-1])<<24
		if binary.Lookup3Checksum(body) != stored {
			return nil, ErrChecksumMismatch
		}
		if b.addr == first.addr {
			body = body[prefix:]
		} else {
			if string(body[:4]) != "OCHK" {
				return nil, fmt.Errorf("%w: continuation block without OCHK signature", ErrInvalidHeader)
			}
			body = body[4:]
		}
		return splitV2(body, ordered)
	})
}

func splitV2(body []byte, ordered bool) ([]rawMessage, error) {
	head := 4
	if ordered {
		head = 6
	}
	var msgs []rawMessage
	// trailing gaps shorter than a message header are padding
	for pos := 0; pos+head <= len(body); {
		typ := message.Type(body[pos])
		n := int(body[pos+1]) | int(body[pos+2])<<8
		flags := body[pos+3]
		pos += head
		if pos+n > len(body) {
			return nil, fmt.Errorf("%w: message of %d bytes overruns its block", ErrInvalidHeader, n)
		}
		msgs = append(msgs, rawMessage{typ: typ, flags: flags, data: body[pos : pos+n]})
		pos += n
	}
	return msgs, nil
}

// walkBlocks decodes the messages of every block, queueing continuation
// blocks as they are found.
func walkBlocks(r *binary.Reader, hdr *Header, queue []block, split func(block) ([]rawMessage, error)) error {
	cfg := r.Config()
	for i := 0; i < len(queue); i++ {
		if i > maxContinuations {
			return errContinuationTooDeep
		}
		raws, err := split(queue[i])
		if err != nil {
			return err
		}
		for _, raw := range raws {
			if raw.typ == message.TypeNIL {
				continue
			}
			msg, err := message.Parse(raw.typ, raw.data, raw.flags, cfg)
			if err != nil {
				return err
			}
			if c, ok := msg.(*message.Continuation); ok {
				queue = append(queue, block{addr: c.Offset, size: c.Length})
				continue
			}
			hdr.Messages = append(hdr.Messages, msg)
		}
	}
	return nil
}
