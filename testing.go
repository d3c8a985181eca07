package arenaski

import (
	"fmt"
	"sync"

	"github.com/nrobinson/arenaski/internal/interfaces"
)

// MockObserver is a recording implementation of interfaces.Observer for
// use in driver and tracker tests. It is safe for concurrent use.
type MockObserver struct {
	mu sync.Mutex

	created   []createdEvent
	yields    []yieldEvent
	resubmits []resubmitEvent
	completed []completedEvent
	errored   []erroredEvent
}

type createdEvent struct {
	ReqID      uint64
	WorkerSlot int
}

type yieldEvent struct {
	ReqID     uint64
	Reason    interfaces.YieldReason
	StepCount uint32
}

type resubmitEvent struct {
	ReqID uint64
	Count int
}

type completedEvent struct {
	ReqID        uint64
	ResultNodeID uint32
}

type erroredEvent struct {
	ReqID uint64
	Err   error
}

// NewMockObserver returns a ready-to-use MockObserver.
func NewMockObserver() *MockObserver { return &MockObserver{} }

func (o *MockObserver) ObserveRequestCreated(reqID uint64, workerSlot int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, createdEvent{reqID, workerSlot})
}

func (o *MockObserver) ObserveYield(reqID uint64, reason interfaces.YieldReason, stepCount uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.yields = append(o.yields, yieldEvent{reqID, reason, stepCount})
}

func (o *MockObserver) ObserveResubmit(reqID uint64, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resubmits = append(o.resubmits, resubmitEvent{reqID, count})
}

func (o *MockObserver) ObserveCompleted(reqID uint64, resultNodeID uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, completedEvent{reqID, resultNodeID})
}

func (o *MockObserver) ObserveError(reqID uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errored = append(o.errored, erroredEvent{reqID, err})
}

// CreatedCount returns how many ObserveRequestCreated calls were seen.
func (o *MockObserver) CreatedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.created)
}

// CompletedCount returns how many ObserveCompleted calls were seen.
func (o *MockObserver) CompletedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.completed)
}

// YieldCount returns how many ObserveYield calls were seen.
func (o *MockObserver) YieldCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.yields)
}

// ResubmitCount returns how many ObserveResubmit calls were seen.
func (o *MockObserver) ResubmitCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.resubmits)
}

// ErroredCount returns how many ObserveError calls were seen.
func (o *MockObserver) ErroredCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errored)
}

// WorkerSlots returns the worker slot assigned to each created
// request, in call order, for verifying round-robin assignment.
func (o *MockObserver) WorkerSlots() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	slots := make([]int, len(o.created))
	for i, c := range o.created {
		slots[i] = c.WorkerSlot
	}
	return slots
}

var _ interfaces.Observer = (*MockObserver)(nil)

// FixedLowerer is a Lowerer that maps known source strings to
// predetermined arena node ids, for tests that drive the evaluator
// without a real front-end.
type FixedLowerer struct {
	terms map[string]uint32
}

// NewFixedLowerer builds a FixedLowerer from a source-to-node-id table.
func NewFixedLowerer(terms map[string]uint32) *FixedLowerer {
	return &FixedLowerer{terms: terms}
}

func (l *FixedLowerer) Lower(source string) (uint32, error) {
	id, ok := l.terms[source]
	if !ok {
		return 0, NewError("FixedLowerer.Lower", CodeInputError, fmt.Sprintf("unknown source %q", source))
	}
	return id, nil
}

var _ interfaces.Lowerer = (*FixedLowerer)(nil)

// FixedPrinter is a Printer that maps known node ids back to fixed
// label strings, the mirror image of FixedLowerer.
type FixedPrinter struct {
	labels map[uint32]string
}

// NewFixedPrinter builds a FixedPrinter from a node-id-to-label table.
func NewFixedPrinter(labels map[uint32]string) *FixedPrinter {
	return &FixedPrinter{labels: labels}
}

func (p *FixedPrinter) Print(nodeID uint32) (string, error) {
	label, ok := p.labels[nodeID]
	if !ok {
		return "", NewError("FixedPrinter.Print", CodeInputError, fmt.Sprintf("unknown node id %d", nodeID))
	}
	return label, nil
}

var _ interfaces.Printer = (*FixedPrinter)(nil)
