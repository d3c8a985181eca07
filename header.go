package arenaski

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nrobinson/arenaski/internal/arena"
	"github.com/nrobinson/arenaski/internal/constants"
	"github.com/nrobinson/arenaski/internal/ring"
)

// MagicValue is the sentinel written at the base of every shared
// region and validated on attach.
const MagicValue uint32 = 0x534b4931 // "SKI1"

// sqEntryWords / cqEntryWords / stdinWaitEntryWords are the per-entry
// widths of the word rings: SQ carries
// (node_id, req_id, max_steps) with req_id split across two words
// since it is 64-bit; CQ carries (req_id, result_node_id, status,
// aux); stdin-wait carries the req_id of a request suspended on
// read_one, also split across two words. See WorkUnit.Encode /
// DecodeWorkUnit and Completion.Encode / DecodeCompletion.
const (
	sqEntryWords        = 4
	cqEntryWords        = 5
	stdinWaitEntryWords = 2
)

// rawHeader is the fixed-offset struct at the base of the shared
// region. Field order here IS the external ABI: magic, ring_entries,
// capacity, then the per-ring head/tail indices, then top. An
// implementer in another language attaching to the same region must
// reproduce this layout exactly.
type rawHeader struct {
	Magic       uint32
	RingEntries uint32
	Capacity    uint32
	_pad        uint32
	SQHead      uint32
	SQTail      uint32
	CQHead      uint32
	CQTail      uint32
	StdinHead   uint32
	StdinTail   uint32
	StdoutHead  uint32
	StdoutTail  uint32
	StdinWHead  uint32
	StdinWTail  uint32
	Top         uint32
}

var headerSize = unsafe.Sizeof(rawHeader{})

// Offsets reports the byte offset of every region in a shared buffer
// built with this header layout, for independent processes/threads
// that need to attach to the same memory without linking this package.
type Offsets struct {
	Header    uintptr
	SQ        uintptr
	CQ        uintptr
	Stdin     uintptr
	Stdout    uintptr
	StdinWait uintptr
	Arena     uintptr
	Total     uintptr
}

// ComputeOffsets returns the byte layout for a shared region sized for
// the given ring capacity and arena node capacity.
func ComputeOffsets(ringEntries, stdinCapacityBytes, arenaCapacity uint32) Offsets {
	var o Offsets
	o.Header = 0
	o.SQ = o.Header + headerSize
	o.CQ = o.SQ + uintptr(ringEntries)*sqEntryWords*4
	o.Stdin = o.CQ + uintptr(ringEntries)*cqEntryWords*4
	o.Stdout = o.Stdin + uintptr(stdinCapacityBytes)
	o.StdinWait = o.Stdout + uintptr(stdinCapacityBytes)
	o.Arena = o.StdinWait + uintptr(ringEntries)*stdinWaitEntryWords*4
	o.Total = o.Arena + uintptr(arenaCapacity)*arena.SlabNodeSize()
	return o
}

// SharedRegion is the single contiguous mmap'd buffer containing the
// header, the SQ/CQ/stdin/stdout/stdin-wait rings and the arena node
// slab. It is built once per driver instance and torn down atomically
// at Close.
type SharedRegion struct {
	mem     []byte
	header  *rawHeader
	offsets Offsets

	SQ        *ring.WordRing
	CQ        *ring.WordRing
	Stdin     *ring.ByteRing
	Stdout    *ring.ByteRing
	StdinWait *ring.WordRing
	Arena     *arena.Arena
}

// NewSharedRegion allocates and initializes a fresh shared region.
func NewSharedRegion(ringEntries, stdinCapacityBytes, arenaCapacity uint32) (*SharedRegion, error) {
	if ringEntries == 0 || ringEntries&(ringEntries-1) != 0 {
		return nil, fmt.Errorf("header: ring_entries must be a power of two, got %d", ringEntries)
	}
	if stdinCapacityBytes == 0 || stdinCapacityBytes&(stdinCapacityBytes-1) != 0 {
		return nil, fmt.Errorf("header: stdin capacity must be a power of two, got %d", stdinCapacityBytes)
	}

	offsets := ComputeOffsets(ringEntries, stdinCapacityBytes, arenaCapacity)

	mem, err := unix.Mmap(-1, 0, int(offsets.Total),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("header: mmap shared region: %w", err)
	}

	base := unsafe.Pointer(&mem[0])
	h := (*rawHeader)(base)
	h.Magic = MagicValue
	h.RingEntries = ringEntries
	h.Capacity = arenaCapacity

	sqBase := unsafe.Add(base, offsets.SQ)
	cqBase := unsafe.Add(base, offsets.CQ)
	stdinBase := unsafe.Add(base, offsets.Stdin)
	stdoutBase := unsafe.Add(base, offsets.Stdout)
	stdinWaitBase := unsafe.Add(base, offsets.StdinWait)

	region := &SharedRegion{
		mem:     mem,
		header:  h,
		offsets: offsets,
		SQ: ring.NewWordRing(unsafe.Pointer(&h.SQHead), unsafe.Pointer(&h.SQTail),
			sqBase, ringEntries, sqEntryWords),
		CQ: ring.NewWordRing(unsafe.Pointer(&h.CQHead), unsafe.Pointer(&h.CQTail),
			cqBase, ringEntries, cqEntryWords),
		Stdin:  ring.NewByteRing(unsafe.Pointer(&h.StdinHead), unsafe.Pointer(&h.StdinTail), stdinBase, stdinCapacityBytes),
		Stdout: ring.NewByteRing(unsafe.Pointer(&h.StdoutHead), unsafe.Pointer(&h.StdoutTail), stdoutBase, stdinCapacityBytes),
		StdinWait: ring.NewWordRing(unsafe.Pointer(&h.StdinWHead), unsafe.Pointer(&h.StdinWTail),
			stdinWaitBase, ringEntries, stdinWaitEntryWords),
	}
	region.Arena = arena.NewOverSlab(mem[offsets.Arena:], arenaCapacity, unsafe.Pointer(&h.Top))

	return region, nil
}

// DefaultSharedRegion builds a region using the package's default ring
// and arena sizing.
func DefaultSharedRegion() (*SharedRegion, error) {
	return NewSharedRegion(constants.DefaultRingEntries, constants.StdinByteRingSize, constants.DefaultArenaCapacity)
}

// Validate checks the magic sentinel, as an attaching process must
// before trusting the rest of the layout.
func (r *SharedRegion) Validate() error {
	if atomic.LoadUint32(&r.header.Magic) != MagicValue {
		return fmt.Errorf("header: bad magic 0x%x, expected 0x%x", r.header.Magic, MagicValue)
	}
	return nil
}

// Offsets returns the byte layout this region was built with.
func (r *SharedRegion) Offsets() Offsets { return r.offsets }

// Close unmaps the shared region. The arena and all rings it backs
// become invalid.
func (r *SharedRegion) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}
