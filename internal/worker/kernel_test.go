package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrobinson/arenaski/internal/arena"
)

type fakeIO struct {
	in  []byte
	out []byte
}

func (f *fakeIO) TryReadByte() (byte, bool) {
	if len(f.in) == 0 {
		return 0, false
	}
	b := f.in[0]
	f.in = f.in[1:]
	return b, true
}

func (f *fakeIO) TryWriteByte(b byte) bool {
	f.out = append(f.out, b)
	return true
}

func mustAlloc(t *testing.T, a *arena.Arena, kind arena.Kind, aux, left, right uint32) uint32 {
	t.Helper()
	id, err := a.AllocTerminal(kind, aux, left, right)
	require.NoError(t, err)
	return id
}

// TestIReducesToItsArgument builds (I K) and checks it reduces to K.
func TestIReducesToItsArgument(t *testing.T) {
	a, err := arena.New(16)
	require.NoError(t, err)
	defer a.Close()

	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	k := mustAlloc(t, a, arena.KindK, 0, 0, 0)
	root, err := a.AllocApplication(i, k)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 10, &fakeIO{})

	assert.Equal(t, OutcomeDone, result.Outcome)
	assert.Equal(t, uint32(1), result.StepsTaken)

	node, ok := a.Get(root)
	require.True(t, ok)
	assert.Equal(t, arena.KindK, node.Kind)
}

// TestKDiscardsSecondArgument builds ((K S) I) and checks it reduces to S.
func TestKDiscardsSecondArgument(t *testing.T) {
	a, err := arena.New(16)
	require.NoError(t, err)
	defer a.Close()

	k := mustAlloc(t, a, arena.KindK, 0, 0, 0)
	s := mustAlloc(t, a, arena.KindS, 0, 0, 0)
	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	kS, err := a.AllocApplication(k, s)
	require.NoError(t, err)
	root, err := a.AllocApplication(kS, i)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 10, &fakeIO{})

	assert.Equal(t, OutcomeDone, result.Outcome)
	node, ok := a.Get(root)
	require.True(t, ok)
	assert.Equal(t, arena.KindS, node.Kind)
}

// TestSDistributesOverTwoApplications builds (((S K) K) I) which should
// reduce to I via K I (K I) -> I.
func TestSDistributesOverTwoApplications(t *testing.T) {
	a, err := arena.New(32)
	require.NoError(t, err)
	defer a.Close()

	s := mustAlloc(t, a, arena.KindS, 0, 0, 0)
	k1 := mustAlloc(t, a, arena.KindK, 0, 0, 0)
	k2 := mustAlloc(t, a, arena.KindK, 0, 0, 0)
	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)

	sK, err := a.AllocApplication(s, k1)
	require.NoError(t, err)
	sKK, err := a.AllocApplication(sK, k2)
	require.NoError(t, err)
	root, err := a.AllocApplication(sKK, i)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 10, &fakeIO{})

	assert.Equal(t, OutcomeDone, result.Outcome)
	node, ok := a.Get(root)
	require.True(t, ok)
	assert.Equal(t, arena.KindI, node.Kind)
}

// TestReadOneYieldsWhenStdinEmpty builds (readOne I) with no input
// available and expects a YIELD_IO outcome that does not mutate the
// root node.
func TestReadOneYieldsWhenStdinEmpty(t *testing.T) {
	a, err := arena.New(16)
	require.NoError(t, err)
	defer a.Close()

	readOne := mustAlloc(t, a, arena.KindReadOne, 0, 0, 0)
	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	root, err := a.AllocApplication(readOne, i)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 10, &fakeIO{})

	assert.Equal(t, OutcomeYieldIO, result.Outcome)
	assert.Equal(t, root, result.ResultNodeID)
}

// TestReadThenWriteEchoesByte builds (writeOne (readOne I) I) style echo:
// readOne applied to I yields the byte via (I byte) -> byte; then that
// byte is written back out.
func TestReadThenWriteEchoesByte(t *testing.T) {
	a, err := arena.New(32)
	require.NoError(t, err)
	defer a.Close()

	readOne := mustAlloc(t, a, arena.KindReadOne, 0, 0, 0)
	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	readApp, err := a.AllocApplication(readOne, i) // readOne I -> byte (via I byte -> byte)
	require.NoError(t, err)

	writeOne := mustAlloc(t, a, arena.KindWriteOne, 0, 0, 0)
	writeArg, err := a.AllocApplication(writeOne, readApp)
	require.NoError(t, err)
	cont := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	root, err := a.AllocApplication(writeArg, cont)
	require.NoError(t, err)

	io := &fakeIO{in: []byte{65}}
	kernel := NewKernel(a)
	result := kernel.Reduce(root, 100, io)

	assert.Equal(t, OutcomeDone, result.Outcome)
	assert.Equal(t, []byte{65}, io.out)
}

func TestStepBudgetExhaustion(t *testing.T) {
	a, err := arena.New(16)
	require.NoError(t, err)
	defer a.Close()

	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	k := mustAlloc(t, a, arena.KindK, 0, 0, 0)
	root, err := a.AllocApplication(i, k)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 0, &fakeIO{})

	assert.Equal(t, OutcomeYieldBudget, result.Outcome)
	assert.Equal(t, uint32(0), result.StepsTaken)
}

// TestMatchSelectsBranchByConstructorTag builds a two-field constructor
// with tag 1 applied to (S, I), matched against two branches where
// branch 1 is K, so the match applies K to the fields, keeping the
// first field and reducing the whole expression down to S.
func TestMatchSelectsBranchByConstructorTag(t *testing.T) {
	a, err := arena.New(32)
	require.NoError(t, err)
	defer a.Close()

	s := mustAlloc(t, a, arena.KindS, 0, 0, 0)
	i := mustAlloc(t, a, arena.KindI, 0, 0, 0)

	ctor := mustAlloc(t, a, arena.KindConstructor, 1 /* tag */, 2 /* field count */, 0)
	ctorS, err := a.AllocApplication(ctor, s)
	require.NoError(t, err)
	ctorSI, err := a.AllocApplication(ctorS, i)
	require.NoError(t, err)

	match := mustAlloc(t, a, arena.KindMatch, 2 /* branch count */, 0, 0)
	branch0 := mustAlloc(t, a, arena.KindI, 0, 0, 0)
	branch1 := mustAlloc(t, a, arena.KindK, 0, 0, 0)

	matchScrut, err := a.AllocApplication(match, ctorSI)
	require.NoError(t, err)
	matchB0, err := a.AllocApplication(matchScrut, branch0)
	require.NoError(t, err)
	root, err := a.AllocApplication(matchB0, branch1)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 10, &fakeIO{})

	assert.Equal(t, OutcomeDone, result.Outcome)
	node, ok := a.Get(root)
	require.True(t, ok)
	assert.Equal(t, arena.KindS, node.Kind)
}

// TestMatchOutOfRangeTagIsAnError builds a constructor whose tag has no
// corresponding branch and expects the kernel to report it rather than
// silently getting stuck.
func TestMatchOutOfRangeTagIsAnError(t *testing.T) {
	a, err := arena.New(32)
	require.NoError(t, err)
	defer a.Close()

	ctor := mustAlloc(t, a, arena.KindConstructor, 5 /* tag */, 0 /* field count */, 0)
	match := mustAlloc(t, a, arena.KindMatch, 1 /* branch count */, 0, 0)
	branch0 := mustAlloc(t, a, arena.KindI, 0, 0, 0)

	matchScrut, err := a.AllocApplication(match, ctor)
	require.NoError(t, err)
	root, err := a.AllocApplication(matchScrut, branch0)
	require.NoError(t, err)

	kernel := NewKernel(a)
	result := kernel.Reduce(root, 10, &fakeIO{})

	assert.Equal(t, OutcomeError, result.Outcome)
	var matchErr arena.ErrMatchFailure
	assert.ErrorAs(t, result.Err, &matchErr)
}

// TestAlreadyNormalFormTakesNoSteps checks a bare terminal reduces in
// zero steps.
func TestAlreadyNormalFormTakesNoSteps(t *testing.T) {
	a, err := arena.New(4)
	require.NoError(t, err)
	defer a.Close()

	k := mustAlloc(t, a, arena.KindK, 0, 0, 0)

	kernel := NewKernel(a)
	result := kernel.Reduce(k, 10, &fakeIO{})

	assert.Equal(t, OutcomeDone, result.Outcome)
	assert.Equal(t, uint32(0), result.StepsTaken)
}
