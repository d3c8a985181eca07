package ring

import (
	"runtime"

	"github.com/nrobinson/arenaski/internal/constants"
)

// ErrAborted is returned by the escalation helpers when the supplied
// aborted func reports true before the operation succeeds.
type ErrAborted struct{}

func (ErrAborted) Error() string { return "ring: aborted while waiting for space" }

// BusyWaitThreshold attempts happen via runtime.Gosched; after the
// threshold the caller also calls a zero-duration sleep on every
// subsequent attempt (see yieldScheduler, which returns at once).
// This is the busy-wait escalation policy applied to a full SQ or a
// full stdin ring.
const BusyWaitThreshold = constants.BusyWaitThreshold

// EnqueueWithEscalation retries TryEnqueue under the busy-wait
// escalation policy until it succeeds or aborted() returns true.
// aborted is checked on every attempt, preempting the retry loop.
func EnqueueWithEscalation(r *WordRing, words []uint32, aborted func() bool) error {
	attempts := 0
	for {
		if aborted() {
			return ErrAborted{}
		}
		if r.TryEnqueue(words) {
			return nil
		}
		attempts++
		if attempts <= BusyWaitThreshold {
			runtime.Gosched()
		} else {
			runtime.Gosched()
			yieldScheduler()
		}
	}
}

// DequeueWithEscalation retries TryDequeue under the same escalation
// policy until an entry is available or aborted() returns true.
func DequeueWithEscalation(r *WordRing, aborted func() bool) ([]uint32, error) {
	attempts := 0
	for {
		if aborted() {
			return nil, ErrAborted{}
		}
		if words, ok := r.TryDequeue(); ok {
			return words, nil
		}
		attempts++
		if attempts <= BusyWaitThreshold {
			runtime.Gosched()
		} else {
			runtime.Gosched()
			yieldScheduler()
		}
	}
}

// WriteWithEscalation writes every byte of p to r, retrying under the
// same escalation policy whenever the ring is momentarily full.
func WriteWithEscalation(r *ByteRing, p []byte, aborted func() bool) (int, error) {
	written := 0
	attempts := 0
	for written < len(p) {
		if aborted() {
			return written, ErrAborted{}
		}
		n := r.Write(p[written:])
		if n == 0 {
			attempts++
			if attempts <= BusyWaitThreshold {
				runtime.Gosched()
			} else {
				runtime.Gosched()
				yieldScheduler()
			}
			continue
		}
		attempts = 0
		written += int(n)
	}
	return written, nil
}
