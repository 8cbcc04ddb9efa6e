// Package filter decodes the filter pipelines of chunked datasets. Only
// the filters written by common HDF5 tools for signal data are supported:
// deflate, shuffle and fletcher32.
package filter

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	binpkg "github.com/cog-neurophys-lab/dh5io/internal/binary"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// Decoder reverses one filter.
type Decoder func(in []byte) ([]byte, error)

var names = map[uint16]string{
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "n-bit",
	message.FilterScaleOffset: "scale-offset",
}

// New returns the decoder of info. Optional filters that are not
// supported yield a nil decoder.
func New(info message.FilterInfo) (Decoder, error) {
	switch info.ID {
	case message.FilterDeflate:
		return inflate, nil
	case message.FilterShuffle:
		size := 1
		if len(info.ClientData) > 0 && info.ClientData[0] > 0 {
			size = int(info.ClientData[0])
		}
		return func(in []byte) ([]byte, error) { return unshuffle(in, size), nil }, nil
	case message.FilterFletcher32:
		return verifyFletcher32, nil
	}
	if info.IsOptional() {
		return nil, nil
	}
	name := names[info.ID]
	if name == "" {
		name = fmt.Sprintf("filter %d", info.ID)
	}
	return nil, fmt.Errorf("%s is not supported", name)
}

func inflate(in []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return out, nil
}

// unshuffle regroups byte planes [b0 of every element][b1 ...] into
// elements. Trailing bytes that do not fill an element are left in place.
func unshuffle(in []byte, size int) []byte {
	n := len(in) / size
	if size <= 1 || n <= 1 {
		return in
	}
	out := make([]byte, len(in))
	for i := range n {
		for j := range size {
			out[i*size+j] = in[j*n+i]
		}
	}
	copy(out[n*size:], in[n*size:])
	return out
}

func verifyFletcher32(in []byte) ([]byte, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("fletcher32: chunk of %d bytes has no checksum", len(in))
	}
	data := in[:len(in)-4]
	stored := binary.LittleEndian.Uint32(in[len(in)-4:])
	if sum := binpkg.Fletcher32(data); sum != stored {
		return nil, fmt.Errorf("fletcher32: checksum %#08x, stored %#08x", sum, stored)
	}
	return data, nil
}

// Pipeline decodes chunks through a filter pipeline message.
type Pipeline struct {
	ids      []uint16
	decoders []Decoder
}

// NewPipeline builds the decoders of fp, which may be nil.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for _, info := range fp.Filters {
		d, err := New(info)
		if err != nil {
			return nil, err
		}
		if d != nil {
			p.ids = append(p.ids, info.ID)
			p.decoders = append(p.decoders, d)
		}
	}
	return p, nil
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool {
	return len(p.decoders) == 0
}

// Decode applies the filters last to first, skipping filter i when bit i
// of mask is set.
func (p *Pipeline) Decode(in []byte, mask uint32) ([]byte, error) {
	data := in
	for i := len(p.decoders) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		var err error
		if data, err = p.decoders[i](data); err != nil {
			return nil, fmt.Errorf("filter %d: %w", p.ids[i], err)
		}
	}
	return data, nil
}
