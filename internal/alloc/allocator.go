package alloc

import "sync"

// Allocator hands out file space by appending at the end of the file.
// Space is never reused.
type Allocator struct {
	mu      sync.Mutex
	eofAddr uint64
	stats   Stats
}

// Stats counts the allocations made.
type Stats struct {
	TotalAllocations uint64
	TotalBytesAlloc  uint64
	LargestAlloc     uint64
}

// New creates an Allocator whose first allocation starts at eofAddr.
func New(eofAddr uint64) *Allocator {
	return &Allocator{eofAddr: eofAddr}
}

// Alloc reserves size bytes at the end of the file and returns their
// address. A zero size returns the current end without reserving anything.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	addr := a.eofAddr
	if size == 0 {
		return addr
	}
	a.eofAddr += size

	a.stats.TotalAllocations++
	a.stats.TotalBytesAlloc += size
	a.stats.LargestAlloc = max(a.stats.LargestAlloc, size)
	return addr
}

// EOFAddr returns the current end-of-file address.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eofAddr
}

// Stats returns a copy of the allocation statistics.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
