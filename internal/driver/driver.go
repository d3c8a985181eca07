package driver

import (
	"sync"
	"sync/atomic"

	"github.com/nrobinson/arenaski"
	"github.com/nrobinson/arenaski/internal/arena"
	"github.com/nrobinson/arenaski/internal/interfaces"
	"github.com/nrobinson/arenaski/internal/io"
	"github.com/nrobinson/arenaski/internal/logging"
	"github.com/nrobinson/arenaski/internal/tracker"
	"github.com/nrobinson/arenaski/internal/worker"
)

// reqState is the driver-private bookkeeping for one in-flight
// request: which expression it belongs to, the node it is currently
// reducing (always the same id once submitted, per the kernel's
// in-place rewrite), the recorded path so far and the cycle window
// guarding against non-termination.
type reqState struct {
	exprIndex  int
	sourceID   uint32
	nodeID     uint32
	stepsSoFar uint64
	path       []Step
	cycle      *cycleWindow
}

type reqRegistry struct {
	mu sync.Mutex
	m  map[uint64]*reqState
}

func newReqRegistry() *reqRegistry {
	return &reqRegistry{m: make(map[uint64]*reqState)}
}

func (r *reqRegistry) put(reqID uint64, st *reqState) {
	r.mu.Lock()
	r.m[reqID] = st
	r.mu.Unlock()
}

func (r *reqRegistry) get(reqID uint64) *reqState {
	r.mu.Lock()
	st := r.m[reqID]
	r.mu.Unlock()
	return st
}

func (r *reqRegistry) drop(reqID uint64) {
	r.mu.Lock()
	delete(r.m, reqID)
	r.mu.Unlock()
}

// Driver is the parallel arena driver: it owns the shared region
// (arena + rings), a fixed pool of worker goroutines
// draining the submission queue, and the single cooperative loop that
// submits work, drains completions, and streams results back in
// submission order.
//
// New wires up every collaborator and starts background workers;
// Terminate tears them down in the reverse order, exactly once.
type Driver struct {
	params   Params
	region   *arenaski.SharedRegion
	kernel   *worker.Kernel
	tracker  *tracker.Tracker
	io       *portio.Manager
	metrics  *arenaski.Metrics
	observer interfaces.Observer
	logger   *logging.Logger

	reqs *reqRegistry

	sqMu sync.Mutex
	cqMu sync.Mutex

	aborted  atomic.Bool
	abortErr atomic.Pointer[arenaski.Error]

	workerErrMu sync.Mutex
	workerErrs  map[uint64]error

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Driver from params, allocating its own shared region
// and starting its worker pool and completion-draining loop. The
// caller must eventually call Terminate.
func New(params Params) (*Driver, error) {
	params.fillDefaults()

	region, err := arenaski.NewSharedRegion(params.RingEntries, params.StdinRingSize, params.ArenaCapacity)
	if err != nil {
		return nil, arenaski.WrapError("driver.new", err)
	}

	metrics := params.Metrics
	if metrics == nil {
		metrics = arenaski.NewMetrics()
	}
	observer := params.Observer
	if observer == nil {
		observer = arenaski.NewMetricsObserver(metrics)
	}

	d := &Driver{
		params:     params,
		region:     region,
		kernel:     worker.NewKernel(region.Arena),
		tracker:    tracker.New(params.WorkerPoolSize, params.MaxResubmits, observer),
		io:         portio.NewManager(region.Stdin, region.Stdout, region.StdinWait),
		metrics:    metrics,
		observer:   observer,
		logger:     params.Logger,
		reqs:       newReqRegistry(),
		workerErrs: make(map[uint64]error),
		stopCh:     make(chan struct{}),
	}

	d.startWorkers()
	d.wg.Add(1)
	go d.completionLoop()

	d.logger.Infof("driver started: workers=%d window=%d max_steps=%d max_resubmits=%d",
		params.WorkerPoolSize, params.WindowSize, params.MaxStepsPerExpr, params.MaxResubmits)
	return d, nil
}

// Arena exposes the driver's arena, for lowering source expressions
// into node ids before calling Stream.
func (d *Driver) Arena() *arena.Arena { return d.region.Arena }

// Metrics returns the driver's metrics instance.
func (d *Driver) Metrics() *arenaski.Metrics { return d.metrics }

// MetricsSnapshot is a convenience wrapper around Metrics().Snapshot().
func (d *Driver) MetricsSnapshot() arenaski.MetricsSnapshot { return d.metrics.Snapshot() }

// WriteStdin feeds bytes into the shared stdin ring under the same
// busy-wait escalation policy used internally, then immediately wakes
// up to that many suspended readers. Waking here rather than leaving
// it to the completion loop's idle drain guarantees a parked request
// cannot starve behind a busy completion queue: the bytes are
// published to the ring (release store on its tail) before any wake
// is issued for them.
func (d *Driver) WriteStdin(p []byte) (int, error) {
	n, err := d.io.WriteStdin(p, d.isAborted)
	if n > 0 {
		for _, reqID := range d.io.WakeStdinWaiters(uint32(n)) {
			d.resubmitWake(reqID)
		}
	}
	return n, err
}

// ReadStdout drains everything currently buffered on stdout.
func (d *Driver) ReadStdout() []byte { return d.io.DrainStdoutAll() }

func (d *Driver) isAborted() bool { return d.aborted.Load() }

func (d *Driver) abortErrValue() error {
	if e := d.abortErr.Load(); e != nil {
		return e
	}
	return nil
}

// abort marks the driver as fatally terminated, records the triggering
// error, and rejects every outstanding request via the tracker: worker
// ERROR and resource exhaustion are fatal for the whole driver, not
// just the request that hit them.
func (d *Driver) abort(err error) {
	if !d.aborted.CompareAndSwap(false, true) {
		return
	}
	ae := arenaski.WrapError("driver.abort", err)
	d.abortErr.Store(ae)
	d.logger.Errorf("driver aborting: %v", ae)
	d.tracker.AbortAll(ae)
}

// Terminate stops the worker pool and completion loop, rejects any
// remaining pending requests, and releases the shared region. Safe to
// call more than once.
func (d *Driver) Terminate() error {
	d.abort(arenaski.NewError("driver.terminate", arenaski.CodeEvaluatorTerminated, "terminated"))
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.wg.Wait()
	d.logger.Infof("driver terminated: steps_executed=%d", d.metrics.Snapshot().StepsExecuted)
	return d.region.Close()
}
