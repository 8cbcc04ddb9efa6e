// Package superblock reads and writes the HDF5 superblock, the fixed
// structure at the start of a file that records field widths, the end of
// file and the root group address.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/cog-neurophys-lab/dh5io/internal/binary"
)

// Signature starts every superblock.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// A superblock may sit at any of these offsets.
var searchOffsets = []int64{0, 512, 1024, 2048}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// Superblock holds the fields of a version 0 to 3 superblock that the
// engine needs.
type Superblock struct {
	Version              uint8
	OffsetSize           uint8
	LengthSize           uint8
	FileConsistencyFlags uint8

	BaseAddress      uint64
	ExtensionAddress uint64 // version 2 and 3 only
	EOFAddress       uint64
	RootGroupAddress uint64 // object header of the root group

	FileOffset int64 // where the signature was found
}

// Read finds the signature and parses the superblock that follows it.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, len(Signature))
	for _, off := range searchOffsets {
		if _, err := r.ReadAt(sig, off); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if !bytes.Equal(sig, Signature) {
			continue
		}
		sb, err := parse(r, off)
		if err != nil {
			return nil, err
		}
		sb.FileOffset = off
		return sb, nil
	}
	return nil, ErrNotHDF5
}

func parse(src io.ReaderAt, start int64) (*Superblock, error) {
	r := binpkg.NewReader(src, binpkg.DefaultConfig()).At(start + 8)
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	sb := &Superblock{Version: version}

	switch version {
	case 0, 1:
		// free-space, root entry and shared header versions, reserved
		r.Skip(4)
		fixed, err := r.ReadBytes(11)
		if err != nil {
			return nil, err
		}
		sb.OffsetSize, sb.LengthSize = fixed[0], fixed[1]
		if version == 1 {
			r.Skip(4) // indexed storage K and reserved
		}
	case 2, 3:
		fixed, err := r.ReadBytes(3)
		if err != nil {
			return nil, err
		}
		sb.OffsetSize, sb.LengthSize, sb.FileConsistencyFlags = fixed[0], fixed[1], fixed[2]
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset size %d, length size %d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}
	r = binpkg.NewReader(src, sb.ReaderConfig()).At(r.Pos())

	var addrs []*uint64
	if version < 2 {
		var freeSpace, driver, linkName uint64
		addrs = []*uint64{&sb.BaseAddress, &freeSpace, &sb.EOFAddress, &driver, &linkName, &sb.RootGroupAddress}
	} else {
		addrs = []*uint64{&sb.BaseAddress, &sb.ExtensionAddress, &sb.EOFAddress, &sb.RootGroupAddress}
	}
	for _, a := range addrs {
		if *a, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	}
	if version < 2 {
		return sb, nil
	}

	end := r.Pos()
	stored, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	data, err := r.At(start).ReadBytes(int(end - start))
	if err != nil {
		return nil, err
	}
	if binpkg.Lookup3Checksum(data) != stored {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}
	return sb, nil
}

func validSize(n uint8) bool {
	return n == 2 || n == 4 || n == 8
}

// ReaderConfig returns the binary configuration of the file. HDF5 metadata
// is always little endian.
func (sb *Superblock) ReaderConfig() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}
