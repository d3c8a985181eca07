// Package portio bridges the byte-granular stdin/stdout rings to the
// set of requests currently suspended on read_one, the wait-set half
// of the runtime's I/O manager.
//
// Stdout draining goes through pooled scratch buffers rather than
// allocating on every read.
package portio

import (
	"sync"

	"github.com/nrobinson/arenaski/internal/interfaces"
	"github.com/nrobinson/arenaski/internal/ring"
)

const drainBufferSize = 4096

var drainBufferPool = sync.Pool{
	New: func() any { b := make([]byte, drainBufferSize); return &b },
}

// Manager owns the stdin/stdout byte rings and the set of requests
// parked because stdin had nothing to read when they suspended.
type Manager struct {
	stdin     *ring.ByteRing
	stdout    *ring.ByteRing
	stdinWait *ring.WordRing

	mu         sync.Mutex
	waiting    []uint64 // FIFO of req ids suspended on read_one
	wakeBudget uint32   // unspent wake credits carried between WakeStdinWaiters calls
}

// NewManager builds a Manager over the given rings, typically views
// into a SharedRegion.
func NewManager(stdin, stdout *ring.ByteRing, stdinWait *ring.WordRing) *Manager {
	return &Manager{stdin: stdin, stdout: stdout, stdinWait: stdinWait}
}

// WriteStdin feeds bytes from an external writer into the stdin ring,
// retrying under busy-wait escalation while the ring is momentarily
// full.
func (m *Manager) WriteStdin(p []byte, aborted func() bool) (int, error) {
	return ring.WriteWithEscalation(m.stdin, p, aborted)
}

// ReadStdout drains up to len(p) bytes the workers have written,
// returning the count actually read.
func (m *Manager) ReadStdout(p []byte) uint32 {
	return m.stdout.Read(p)
}

// DrainStdoutAll reads everything currently buffered in the stdout
// ring using a pooled scratch buffer, for callers that want the full
// backlog rather than a fixed-size read.
func (m *Manager) DrainStdoutAll() []byte {
	bufPtr := drainBufferPool.Get().(*[]byte)
	defer drainBufferPool.Put(bufPtr)
	buf := *bufPtr

	var out []byte
	for {
		n := m.stdout.Read(buf)
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
		if uint32(n) < uint32(len(buf)) {
			break
		}
	}
	return out
}

// SubmitSuspension decides whether a YIELD_IO completion for reqID can
// be resubmitted right away (stdin already has at least one byte
// available) or must be parked until WakeStdinWaiters later finds
// data for it.
func (m *Manager) SubmitSuspension(reqID uint64) (resubmitNow bool) {
	if m.stdin.Available() > 0 {
		return true
	}
	m.registerWaiter(reqID)
	return false
}

func (m *Manager) registerWaiter(reqID uint64) {
	m.mu.Lock()
	m.waiting = append(m.waiting, reqID)
	m.mu.Unlock()
	m.stdinWait.TryEnqueue([]uint32{uint32(reqID >> 32), uint32(reqID)})
}

// wakeBudgetCarryCap bounds how many unspent wake credits survive
// between WakeStdinWaiters calls. Without a cap, a caller polling on
// an idle manager would accumulate credits forever and the limit
// would stop bounding anything.
const wakeBudgetCarryCap = 4096

// WakeStdinWaiters charges limit fresh wake credits on top of any
// budget carried over from previous calls, then pops waiters in
// insertion order until the budget runs out, the stdin ring runs dry,
// or no waiters remain. Each waiter is assumed to consume exactly one
// byte (read_one's contract), so a waiter is only woken while a byte
// is there for it; whatever budget is left unspent is saved for the
// next call, capped at wakeBudgetCarryCap.
func (m *Manager) WakeStdinWaiters(limit uint32) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	budget := m.wakeBudget + limit
	if budget < m.wakeBudget { // overflow
		budget = ^uint32(0)
	}
	available := m.stdin.Available()

	var woken []uint64
	for budget > 0 && available > 0 && len(m.waiting) > 0 {
		woken = append(woken, m.waiting[0])
		m.waiting = m.waiting[1:]
		m.stdinWait.TryDequeue()
		budget--
		available--
	}

	if budget > wakeBudgetCarryCap {
		budget = wakeBudgetCarryCap
	}
	m.wakeBudget = budget
	return woken
}

// PendingWaiters reports how many requests are currently parked
// waiting on stdin.
func (m *Manager) PendingWaiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// Port returns the narrow, non-blocking interfaces.IOPort view of this
// Manager's stdin/stdout rings that the worker kernel's read_one/
// write_one primitives consume. It is the same pair of rings the host
// side drains/fills through WriteStdin/ReadStdout; a single process
// hosting both ends (as this module does, absent a separate worker
// runtime attaching to the shared region over a socket) simply shares
// the ring pointers rather than copying bytes across a boundary.
func (m *Manager) Port() interfaces.IOPort { return ioPort{m} }

type ioPort struct{ m *Manager }

func (p ioPort) TryReadByte() (byte, bool) {
	var b [1]byte
	if p.m.stdin.Read(b[:]) == 0 {
		return 0, false
	}
	return b[0], true
}

func (p ioPort) TryWriteByte(b byte) bool {
	return p.m.stdout.Write([]byte{b}) == 1
}
