package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDsAreMonotonic(t *testing.T) {
	tr := New(4, 10, nil)

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, _, err := tr.CreateRequest()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestRoundRobinWorkerAssignment(t *testing.T) {
	tr := New(3, 10, nil)

	var slots []int
	for i := 0; i < 7; i++ {
		_, slot, err := tr.CreateRequest()
		require.NoError(t, err)
		slots = append(slots, slot)
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, slots)
}

func TestCompletionBeforeRegistrationIsStashed(t *testing.T) {
	tr := New(1, 10, nil)
	id, _, err := tr.CreateRequest()
	require.NoError(t, err)

	tr.MarkCompleted(id, 42)
	assert.Equal(t, 1, tr.PendingCount())

	var resolved uint32
	tr.MarkPending(id, func(v uint32) { resolved = v }, func(error) { t.Fatal("should not reject") })

	assert.Equal(t, uint32(42), resolved)
	assert.Equal(t, 0, tr.PendingCount())
}

func TestSecondCompletionForStashedRequestIsDropped(t *testing.T) {
	tr := New(1, 10, nil)
	id, _, err := tr.CreateRequest()
	require.NoError(t, err)

	tr.MarkCompleted(id, 42)
	tr.MarkCompleted(id, 99)
	tr.MarkError(id, errors.New("late error"))

	var resolved uint32
	tr.MarkPending(id, func(v uint32) { resolved = v }, func(error) { t.Fatal("should not reject") })

	assert.Equal(t, uint32(42), resolved, "first stashed completion must win")
	assert.Equal(t, 0, tr.PendingCount())
}

func TestPendingThenCompletedResolvesImmediately(t *testing.T) {
	tr := New(1, 10, nil)
	id, _, err := tr.CreateRequest()
	require.NoError(t, err)

	var resolved uint32
	var called bool
	tr.MarkPending(id, func(v uint32) { resolved = v; called = true }, func(error) {})
	assert.False(t, called)

	tr.MarkCompleted(id, 7)
	assert.True(t, called)
	assert.Equal(t, uint32(7), resolved)
}

func TestAbortAllRejectsEveryPendingResolverExactlyOnce(t *testing.T) {
	tr := New(1, 10, nil)

	rejections := 0
	ids := make([]uint64, 3)
	for i := range ids {
		id, _, err := tr.CreateRequest()
		require.NoError(t, err)
		ids[i] = id
		tr.MarkPending(id, func(uint32) {}, func(error) { rejections++ })
	}

	abortErr := errors.New("boom")
	tr.AbortAll(abortErr)

	assert.Equal(t, 3, rejections)
	assert.Equal(t, 0, tr.PendingCount())

	_, _, err := tr.CreateRequest()
	assert.ErrorIs(t, err, ErrEvaluatorTerminated)
}

func TestResubmitLimitThrowsExactlyAtMaxPlusOne(t *testing.T) {
	tr := New(1, 10, nil)
	id, _, err := tr.CreateRequest()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, tr.IncrementResubmit(id))
	}

	err = tr.IncrementResubmit(id)
	assert.ErrorIs(t, err, ErrResubmissionLimitExceeded)
}
