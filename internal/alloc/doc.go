// Package alloc manages file space while writing HDF5 files.
//
// Object headers, heaps and dataset storage are placed at fixed file
// offsets. The [Allocator] appends every new block at the end of the file
// and advances the end-of-file address, which the superblock records when
// the file is flushed. Rewritten object headers leave their old block
// behind; that space is not reclaimed.
//
//	a := alloc.New(sb.EOFAddress)
//	addr := a.Alloc(uint64(headerSize))
package alloc
