// Package ring implements the lock-free SPSC rings that sit over the
// shared memory region: the submission/completion queues (fixed-width
// word entries) and the stdin/stdout/stdin-wait byte-and-word rings.
//
// Every ring is single-producer/single-consumer from the viewpoint of
// each endpoint: the host produces into SQ/stdin and consumes
// CQ/stdout/stdin-wait; workers do the mirror. Head/tail indices are
// plain uint32 words living directly in the mmap'd region addressed
// via unsafe.Pointer arithmetic, loaded and stored with sync/atomic
// acquire/release semantics.
package ring

import (
	"sync/atomic"
	"unsafe"
)

// WordRing is a fixed-capacity ring of fixed-width entries (each entry
// is entryWords consecutive uint32 words), backed by memory the caller
// owns (typically a slice of a larger mmap'd shared region).
//
// Capacity must be a power of two; index arithmetic relies on masking
// rather than modulo.
type WordRing struct {
	base       unsafe.Pointer
	head, tail unsafe.Pointer // *uint32 head/tail index cells
	entries    uint32
	mask       uint32
	entryWords uint32
}

// NewWordRing wraps pre-allocated memory as a word ring.
//
//   - headPtr/tailPtr point at the dedicated head/tail index cells
//     (elsewhere in the shared header).
//   - dataBase points at entries*entryWords*4 contiguous bytes reserved
//     for the ring's entries.
//   - entries must be a power of two.
func NewWordRing(headPtr, tailPtr, dataBase unsafe.Pointer, entries, entryWords uint32) *WordRing {
	if entries == 0 || entries&(entries-1) != 0 {
		panic("ring: entries must be a power of two")
	}
	return &WordRing{
		base:       dataBase,
		head:       headPtr,
		tail:       tailPtr,
		entries:    entries,
		mask:       entries - 1,
		entryWords: entryWords,
	}
}

func (r *WordRing) loadHead() uint32 { return atomic.LoadUint32((*uint32)(r.head)) }
func (r *WordRing) loadTail() uint32 { return atomic.LoadUint32((*uint32)(r.tail)) }

func (r *WordRing) slotPtr(index uint32) unsafe.Pointer {
	slot := index & r.mask
	return unsafe.Add(r.base, uintptr(slot*r.entryWords)*unsafe.Sizeof(uint32(0)))
}

// TryEnqueue publishes one entry (len(words) must equal entryWords).
// Returns false if the ring is full. The entry's words are written
// before the tail bump (release store), so a consumer that observes
// the new tail is guaranteed to see the written words.
func (r *WordRing) TryEnqueue(words []uint32) bool {
	if uint32(len(words)) != r.entryWords {
		panic("ring: entry width mismatch")
	}
	head := r.loadHead()
	tail := r.loadTail()
	if tail-head >= r.entries {
		return false
	}
	slot := r.slotPtr(tail)
	for i, w := range words {
		*(*uint32)(unsafe.Add(slot, uintptr(i)*unsafe.Sizeof(uint32(0)))) = w
	}
	atomic.StoreUint32((*uint32)(r.tail), tail+1)
	return true
}

// TryDequeue consumes one entry, returning its words and true, or
// (nil, false) if the ring is empty. The tail is loaded with acquire
// semantics so the words written by the producer before its release
// store are visible here.
func (r *WordRing) TryDequeue() ([]uint32, bool) {
	head := r.loadHead()
	tail := r.loadTail()
	if head == tail {
		return nil, false
	}
	slot := r.slotPtr(head)
	words := make([]uint32, r.entryWords)
	for i := range words {
		words[i] = *(*uint32)(unsafe.Add(slot, uintptr(i)*unsafe.Sizeof(uint32(0))))
	}
	atomic.StoreUint32((*uint32)(r.head), head+1)
	return words, true
}

// Len returns the number of entries currently queued.
func (r *WordRing) Len() uint32 {
	return r.loadTail() - r.loadHead()
}

// Full reports whether the ring cannot currently accept an entry.
func (r *WordRing) Full() bool {
	return r.Len() >= r.entries
}

// ByteRing is a byte-granular SPSC ring used for stdin/stdout.
type ByteRing struct {
	base       unsafe.Pointer
	head, tail unsafe.Pointer
	capacity   uint32
	mask       uint32
}

// NewByteRing wraps pre-allocated memory (capacity bytes, a power of
// two) as a byte ring.
func NewByteRing(headPtr, tailPtr, dataBase unsafe.Pointer, capacity uint32) *ByteRing {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &ByteRing{
		base:     dataBase,
		head:     headPtr,
		tail:     tailPtr,
		capacity: capacity,
		mask:     capacity - 1,
	}
}

func (r *ByteRing) loadHead() uint32 { return atomic.LoadUint32((*uint32)(r.head)) }
func (r *ByteRing) loadTail() uint32 { return atomic.LoadUint32((*uint32)(r.tail)) }

// Available returns the number of bytes currently buffered (readable).
func (r *ByteRing) Available() uint32 {
	return r.loadTail() - r.loadHead()
}

// FreeSpace returns the number of bytes that can currently be written.
func (r *ByteRing) FreeSpace() uint32 {
	return r.capacity - r.Available()
}

// Write appends as many bytes from p as fit, returning the count
// written. Bytes are written before the tail bump (release store).
func (r *ByteRing) Write(p []byte) uint32 {
	free := r.FreeSpace()
	n := uint32(len(p))
	if n > free {
		n = free
	}
	tail := r.loadTail()
	for i := uint32(0); i < n; i++ {
		slot := (tail + i) & r.mask
		*(*byte)(unsafe.Add(r.base, uintptr(slot))) = p[i]
	}
	atomic.StoreUint32((*uint32)(r.tail), tail+n)
	return n
}

// Read drains up to len(p) bytes into p, returning the count read.
func (r *ByteRing) Read(p []byte) uint32 {
	avail := r.Available()
	n := uint32(len(p))
	if n > avail {
		n = avail
	}
	head := r.loadHead()
	for i := uint32(0); i < n; i++ {
		slot := (head + i) & r.mask
		p[i] = *(*byte)(unsafe.Add(r.base, uintptr(slot)))
	}
	atomic.StoreUint32((*uint32)(r.head), head+n)
	return n
}
