// Package alloc implements the dual-pool best-fit allocator (spec §4.A):
// a fixed-capacity vector of block descriptors over a single fixed arena,
// with split-on-alloc, deferred coalescing, and per-allocation ownership
// tags. One Pool stands in for one of the kernel/user heaps from
// original_source/MimiC_1-0-0_Alpha/src/kernel/mimic_kernel.c's
// mem_alloc_from_pool/mem_free_in_pool, translated from that file's
// parallel-arrays-plus-mutex C idiom into a small Go struct, following the
// teacher's preference for explicit structs over interfaces
// (tools/godis/compiler/frame.go's Frame/FrameSlot).
package alloc

import (
	"sort"
	"sync"

	"mimic/mkerr"
)

const (
	// Align is the allocation alignment in bytes (spec §4.A).
	Align = 32
	// SplitThreshold is the minimum remainder size worth splitting off as
	// its own free descriptor (spec §4.A).
	SplitThreshold = 64
)

// ErrOutOfMemory is returned when no free block fits a request, or the
// descriptor vector is exhausted and a split would be required.
var ErrOutOfMemory = mkerr.New(mkerr.KindNomem, "allocator: out of memory")

// Block is one descriptor in a pool's block vector.
type Block struct {
	Addr   uint32
	Size   uint32
	Owner  uint32 // 0 denotes kernel-owned
	Free   bool
	Pinned bool
}

// Pool is a best-fit allocator over one fixed arena, guarded by its own
// mutex. A caller must never hold two Pools' locks at once (spec §5).
type Pool struct {
	mu       sync.Mutex
	arena    []byte
	blocks   []Block
	capacity int
	freeB    uint32

	TotalAllocs   uint32
	TotalFrees    uint32
	FailedAllocs  uint32
}

// NewPool creates a pool over a size-byte arena with room for up to
// capacity block descriptors. The whole arena starts as one free,
// kernel-owned (owner 0) block.
func NewPool(size uint32, capacity int) *Pool {
	p := &Pool{
		arena:    make([]byte, size),
		blocks:   make([]Block, 1, capacity),
		capacity: capacity,
		freeB:    size,
	}
	p.blocks[0] = Block{Addr: 0, Size: size, Owner: 0, Free: true}
	return p
}

// Bytes returns the pool's backing arena, letting the loader write section
// bytes directly at allocated offsets.
func (p *Pool) Bytes() []byte { return p.arena }

// Size returns the arena's total size.
func (p *Pool) Size() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total uint32
	for _, b := range p.blocks {
		total += b.Size
	}
	return total
}

// FreeBytes returns the sum of free block sizes.
func (p *Pool) FreeBytes() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeB
}

func alignUp(size uint32) uint32 {
	return (size + Align - 1) &^ (Align - 1)
}

// Allocate performs a best-fit scan: the smallest free block with
// size >= request, ties broken by first occurrence. A trailing remainder of
// at least SplitThreshold bytes is split into a new free descriptor; when
// such a split is needed and the vector is full, the request fails with
// ErrOutOfMemory.
func (p *Pool) Allocate(size, owner uint32) (uint32, error) {
	if size == 0 {
		return 0, mkerr.New(mkerr.KindInval, "allocator: zero-size request")
	}
	size = alignUp(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	bestIdx := -1
	var bestSize uint32
	for i, b := range p.blocks {
		if !b.Free || b.Pinned || b.Size < size {
			continue
		}
		if bestIdx == -1 || b.Size < bestSize {
			bestIdx = i
			bestSize = b.Size
		}
	}
	if bestIdx == -1 {
		p.FailedAllocs++
		return 0, ErrOutOfMemory
	}

	block := p.blocks[bestIdx]
	remainder := block.Size - size
	if remainder >= SplitThreshold {
		if len(p.blocks) >= p.capacity {
			p.FailedAllocs++
			return 0, ErrOutOfMemory
		}
		p.blocks = append(p.blocks, Block{
			Addr: block.Addr + size,
			Size: remainder,
			Free: true,
		})
		block.Size = size
	}

	block.Free = false
	block.Owner = owner
	block.Pinned = false
	p.blocks[bestIdx] = block
	p.freeB -= block.Size
	p.TotalAllocs++
	return block.Addr, nil
}

// Free marks the block at addr free again. Pinned blocks are never freed.
func (p *Pool) Free(addr uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range p.blocks {
		if b.Addr == addr && !b.Free {
			if b.Pinned {
				return mkerr.New(mkerr.KindPerm, "allocator: block at %d is pinned", addr)
			}
			p.blocks[i].Free = true
			p.freeB += b.Size
			p.TotalFrees++
			return nil
		}
	}
	return mkerr.New(mkerr.KindInval, "allocator: no allocated block at %d", addr)
}

// FreeAllOwnedBy marks every non-free, non-pinned block owned by owner as
// free, then coalesces. Called on task termination (spec §4.A).
func (p *Pool) FreeAllOwnedBy(owner uint32) {
	p.mu.Lock()
	for i, b := range p.blocks {
		if !b.Free && !b.Pinned && b.Owner == owner {
			p.blocks[i].Free = true
			p.freeB += b.Size
			p.TotalFrees++
		}
	}
	p.mu.Unlock()
	p.Coalesce()
}

// Coalesce sorts descriptors by address and merges adjacent free blocks.
func (p *Pool) Coalesce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	sort.Slice(p.blocks, func(i, j int) bool {
		return p.blocks[i].Addr < p.blocks[j].Addr
	})

	merged := p.blocks[:0:0]
	for _, b := range p.blocks {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Free && b.Free && !last.Pinned && !b.Pinned {
				last.Size += b.Size
				continue
			}
		}
		merged = append(merged, b)
	}
	p.blocks = merged
}

// Pin marks the block at addr as pinned: it may never be freed or moved.
func (p *Pool) Pin(addr uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range p.blocks {
		if b.Addr == addr {
			p.blocks[i].Pinned = true
			return nil
		}
	}
	return mkerr.New(mkerr.KindInval, "allocator: no block at %d", addr)
}

// Blocks returns a snapshot copy of the pool's current descriptor vector,
// for inspection by tests and cmd/mimidump.
func (p *Pool) Blocks() []Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Block, len(p.blocks))
	copy(out, p.blocks)
	return out
}
