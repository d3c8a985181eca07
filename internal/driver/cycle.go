package driver

import (
	cwring "github.com/cloudwego/gopkg/container/ring"

	"github.com/nrobinson/arenaski/internal/arena"
)

// fingerprint is the cycle-detection key: a structural hash of the
// whole term reachable from an expression's root. Watching for a
// revisited node id would be the obvious check, but this kernel
// rewrites node content in place and always reports the same root id
// back (internal/worker.Kernel.Reduce), so a bare-id window would
// declare a cycle on the very first resubmission. Hashing the term's
// structure instead asks the question that matters: has the reduction
// visited this exact term shape before. A looping term returns to the
// same structure every few steps and is caught; a progressing
// reduction changes structure on every observation.
type fingerprint uint64

// fingerprintNodeCap bounds how many nodes one fingerprint traversal
// visits. Shared subterms are expanded by reference, so a pathological
// DAG could otherwise blow up exponentially. A truncated hash mixes in
// the arena's high-water mark, which grows monotonically under any
// allocating reduction, so oversized terms err toward "no cycle"
// rather than a false positive.
const fingerprintNodeCap = 1 << 14

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

func fnvMix(h fingerprint, b uint64) fingerprint {
	for i := 0; i < 8; i++ {
		h ^= fingerprint(b & 0xff)
		h *= fnvPrime64
		b >>= 8
	}
	return h
}

// fingerprintOf hashes the term reachable from root in pre-order,
// folding in only node kinds and terminal payloads, never node ids:
// the same structure rebuilt out of fresh arena nodes must hash
// identically or looping terms would slip through.
func fingerprintOf(a *arena.Arena, root uint32) fingerprint {
	h := fingerprint(fnvOffset64)
	stack := []uint32{root}
	visited := 0

	for len(stack) > 0 && visited < fingerprintNodeCap {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		node, ok := a.Get(id)
		if !ok {
			h = fnvMix(h, ^uint64(0))
			continue
		}
		h = fnvMix(h, uint64(node.Kind))
		if node.IsApplication() {
			stack = append(stack, node.Right, node.Left)
		} else {
			h = fnvMix(h, uint64(node.Aux))
			if node.Kind == arena.KindLitInt || node.Kind == arena.KindLitChar {
				h = fnvMix(h, uint64(node.Right))
			}
		}
	}

	if len(stack) > 0 {
		// Truncated: fold in the monotonic arena top so successive
		// observations of an oversized term stay distinct.
		h = fnvMix(h, uint64(a.Top()))
	}
	return h
}

// fpSlot is one ring-window slot: a fingerprint plus whether it has
// ever been written (the ring starts zero-valued, and a zero hash is a
// legitimate value, so "filled" distinguishes a real entry from an
// unused slot).
type fpSlot struct {
	fp     fingerprint
	filled bool
}

// cycleWindow is a fixed-size FIFO of recently-seen fingerprints per
// expression, backed by the same GC-friendly ring the rest of the pack
// uses for bounded history buffers.
type cycleWindow struct {
	ring *cwring.Ring[fpSlot]
	pos  int
	seen map[fingerprint]int
}

func newCycleWindow(size int) *cycleWindow {
	if size <= 0 {
		size = 1
	}
	return &cycleWindow{
		ring: cwring.NewFromSlice(make([]fpSlot, size)),
		seen: make(map[fingerprint]int),
	}
}

// observe records fp as the newest entry, evicting the oldest one if
// the window is full, and reports whether fp was already present
// before this call (a cycle).
func (w *cycleWindow) observe(fp fingerprint) bool {
	size := w.ring.Len()
	idx := w.pos % size
	item, _ := w.ring.Get(idx)
	slot := item.Pointer()

	if slot.filled {
		if count := w.seen[slot.fp]; count <= 1 {
			delete(w.seen, slot.fp)
		} else {
			w.seen[slot.fp] = count - 1
		}
	}

	slot.fp = fp
	slot.filled = true
	w.pos++

	_, isCycle := w.seen[fp]
	w.seen[fp]++
	return isCycle
}
