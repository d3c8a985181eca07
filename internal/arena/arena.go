// Package arena implements the append-only node store: each node has
// a stable 32-bit id assigned at insertion time, ids are dense and
// monotonically increasing from 1 (id 0 is "null"), and growth is a
// single atomic fetch_add on a shared "top" cursor, with no locks.
//
// The node slab is backed by anonymous mmap'd memory rather than a
// plain Go slice, giving every node a stable address for the lifetime
// of the arena and keeping the whole arena attachable as shared
// memory by another thread or runtime.
package arena

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const nodeSize = uintptr(unsafe.Sizeof(rawNode{}))

// ErrExhausted is returned when an allocation would exceed capacity.
// This is fatal for the whole driver, not just the allocating request.
type ErrExhausted struct {
	Capacity uint32
}

func (e ErrExhausted) Error() string {
	return fmt.Sprintf("arena: exhausted capacity of %d nodes", e.Capacity)
}

// ErrMatchFailure is returned when a KindMatch node's scrutinee carries
// a constructor tag outside the branch set it was compiled against, or
// its field count disagrees with the application spine actually found.
// Pattern selection assumes a well-typed scrutinee; a malformed one is
// a worker invariant violation, not a recoverable condition.
type ErrMatchFailure struct {
	Tag      uint32
	Branches uint32
}

func (e ErrMatchFailure) Error() string {
	return fmt.Sprintf("arena: match failure: constructor tag %d has no branch among %d", e.Tag, e.Branches)
}

// Arena is the append-only node store. Id 0 is reserved as null; the
// first real node is id 1.
type Arena struct {
	slab     []byte // mmap'd backing memory, capacity*nodeSize bytes
	capacity uint32
	topPtr   unsafe.Pointer // *uint32, may be shared with a header region
	ownsSlab bool
}

// New creates a self-contained arena with its own mmap'd slab and its
// own top cursor (for standalone/test use; the driver normally builds
// an Arena view over a shared region's slab via NewOverSlab).
func New(capacity uint32) (*Arena, error) {
	slab, err := unix.Mmap(-1, 0, int(uintptr(capacity)*nodeSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap slab: %w", err)
	}
	top := new(uint32)
	*top = 1
	return &Arena{
		slab:     slab,
		capacity: capacity,
		topPtr:   unsafe.Pointer(top),
		ownsSlab: true,
	}, nil
}

// NewOverSlab builds an Arena view over caller-owned memory (typically
// a sub-slice of a larger shared region) and a caller-owned top cursor
// cell. The cursor is initialized to 1 if it is currently 0.
func NewOverSlab(slab []byte, capacity uint32, topPtr unsafe.Pointer) *Arena {
	if uintptr(len(slab)) < uintptr(capacity)*nodeSize {
		panic("arena: slab too small for capacity")
	}
	atomic.CompareAndSwapUint32((*uint32)(topPtr), 0, 1)
	return &Arena{slab: slab, capacity: capacity, topPtr: topPtr}
}

// Close releases a self-owned mmap'd slab. No-op for arenas built with
// NewOverSlab, whose memory is owned by the enclosing shared region.
func (a *Arena) Close() error {
	if a.ownsSlab && a.slab != nil {
		err := unix.Munmap(a.slab)
		a.slab = nil
		return err
	}
	return nil
}

// Capacity returns the arena's slot count. Slot 0 is reserved as null,
// so at most Capacity()-1 nodes can be allocated.
func (a *Arena) Capacity() uint32 { return a.capacity }

// Top returns the current high-water mark: the next id to be assigned.
func (a *Arena) Top() uint32 { return atomic.LoadUint32((*uint32)(a.topPtr)) }

func (a *Arena) slot(id uint32) *rawNode {
	return (*rawNode)(unsafe.Add(unsafe.Pointer(&a.slab[0]), uintptr(id)*nodeSize))
}

// alloc reserves the next id via a single atomic fetch_add and writes
// raw into its slot. Returns ErrExhausted if capacity would be
// exceeded, leaving top past capacity permanently (fatal).
func (a *Arena) alloc(raw rawNode) (uint32, error) {
	id := atomic.AddUint32((*uint32)(a.topPtr), 1) - 1
	if id >= a.capacity {
		return 0, ErrExhausted{Capacity: a.capacity}
	}
	*a.slot(id) = raw
	return id, nil
}

// AllocTerminal appends a new terminal node (S, K, I, a constructor
// application head, a literal, or an I/O primitive) and returns its id.
func (a *Arena) AllocTerminal(kind Kind, aux, left, right uint32) (uint32, error) {
	if kind == KindApp {
		panic("arena: AllocTerminal called with KindApp")
	}
	return a.alloc(rawNode{Kind: kind, Aux: aux, Left: left, Right: right})
}

// AllocApplication appends a new application node `(lft rgt)` and
// returns its id.
func (a *Arena) AllocApplication(lft, rgt uint32) (uint32, error) {
	return a.alloc(rawNode{Kind: KindApp, Left: lft, Right: rgt})
}

// Get returns a copy of the node at id. ok is false for id 0 (null) or
// any id at or beyond the current top.
func (a *Arena) Get(id uint32) (Node, bool) {
	if id == 0 || id >= a.Top() {
		return Node{}, false
	}
	raw := a.slot(id)
	return Node{Kind: raw.Kind, Aux: raw.Aux, Left: raw.Left, Right: raw.Right}, true
}

// Rewrite overwrites the content at an existing id in place, keeping
// the id stable while its content supersedes what was there before.
// Returns false if id is out of range.
func (a *Arena) Rewrite(id uint32, n Node) bool {
	if id == 0 || id >= a.Top() {
		return false
	}
	*a.slot(id) = rawNode{Kind: n.Kind, Aux: n.Aux, Left: n.Left, Right: n.Right}
	return true
}

// SlabNodeSize reports the byte size of one node slot, for callers
// (header.go) sizing a shared region's arena sub-region.
func SlabNodeSize() uintptr { return nodeSize }
