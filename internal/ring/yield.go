package ring

import "time"

// yieldScheduler sleeps for zero duration. Used once the busy-wait
// escalation threshold is crossed. time.Sleep returns at once for a
// duration of zero, so this call does not park the goroutine; the
// yield on those attempts comes from the runtime.Gosched call the
// caller makes just before it.
func yieldScheduler() {
	time.Sleep(0)
}
