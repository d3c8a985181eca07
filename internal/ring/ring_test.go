package ring

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWordRing(t *testing.T, entries, entryWords uint32) *WordRing {
	t.Helper()
	indices := make([]uint32, 2)
	data := make([]uint32, entries*entryWords)
	return NewWordRing(
		unsafe.Pointer(&indices[0]), unsafe.Pointer(&indices[1]),
		unsafe.Pointer(&data[0]), entries, entryWords)
}

func newTestByteRing(t *testing.T, capacity uint32) *ByteRing {
	t.Helper()
	indices := make([]uint32, 2)
	data := make([]byte, capacity)
	return NewByteRing(
		unsafe.Pointer(&indices[0]), unsafe.Pointer(&indices[1]),
		unsafe.Pointer(&data[0]), capacity)
}

func TestWordRingEnqueueDequeueRoundTrip(t *testing.T) {
	r := newTestWordRing(t, 4, 3)

	require.True(t, r.TryEnqueue([]uint32{1, 2, 3}))
	require.True(t, r.TryEnqueue([]uint32{4, 5, 6}))
	assert.Equal(t, uint32(2), r.Len())

	words, ok := r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 3}, words)

	words, ok = r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, []uint32{4, 5, 6}, words)

	_, ok = r.TryDequeue()
	assert.False(t, ok)
}

func TestWordRingRejectsWhenFull(t *testing.T) {
	r := newTestWordRing(t, 2, 1)

	require.True(t, r.TryEnqueue([]uint32{1}))
	require.True(t, r.TryEnqueue([]uint32{2}))
	assert.True(t, r.Full())
	assert.False(t, r.TryEnqueue([]uint32{3}))

	_, ok := r.TryDequeue()
	require.True(t, ok)
	assert.True(t, r.TryEnqueue([]uint32{3}))
}

func TestWordRingWrapsAroundManyTimes(t *testing.T) {
	r := newTestWordRing(t, 4, 2)

	for i := uint32(0); i < 100; i++ {
		require.True(t, r.TryEnqueue([]uint32{i, i * 2}))
		words, ok := r.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, []uint32{i, i * 2}, words)
	}
	assert.Equal(t, uint32(0), r.Len())
}

func TestWordRingPanicsOnWidthMismatch(t *testing.T) {
	r := newTestWordRing(t, 4, 2)
	assert.Panics(t, func() { r.TryEnqueue([]uint32{1}) })
}

func TestNewWordRingRejectsNonPowerOfTwo(t *testing.T) {
	indices := make([]uint32, 2)
	data := make([]uint32, 3)
	assert.Panics(t, func() {
		NewWordRing(unsafe.Pointer(&indices[0]), unsafe.Pointer(&indices[1]),
			unsafe.Pointer(&data[0]), 3, 1)
	})
}

// TestWordRingSPSCConcurrent drives one producer and one consumer
// goroutine through the same ring and checks nothing is lost,
// duplicated or reordered under the ring's own SPSC discipline.
func TestWordRingSPSCConcurrent(t *testing.T) {
	const count = 10_000
	r := newTestWordRing(t, 64, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < count; i++ {
			for !r.TryEnqueue([]uint32{i}) {
			}
		}
	}()

	for i := uint32(0); i < count; i++ {
		var words []uint32
		var ok bool
		for {
			if words, ok = r.TryDequeue(); ok {
				break
			}
		}
		require.Equal(t, i, words[0])
	}
	wg.Wait()
}

func TestByteRingWriteReadRoundTrip(t *testing.T) {
	r := newTestByteRing(t, 8)

	n := r.Write([]byte("abc"))
	assert.Equal(t, uint32(3), n)
	assert.Equal(t, uint32(3), r.Available())
	assert.Equal(t, uint32(5), r.FreeSpace())

	buf := make([]byte, 8)
	got := r.Read(buf)
	assert.Equal(t, uint32(3), got)
	assert.Equal(t, []byte("abc"), buf[:got])
	assert.Equal(t, uint32(0), r.Available())
}

func TestByteRingPartialWriteWhenNearlyFull(t *testing.T) {
	r := newTestByteRing(t, 4)

	assert.Equal(t, uint32(4), r.Write([]byte("abcd")))
	assert.Equal(t, uint32(0), r.Write([]byte("e")))

	buf := make([]byte, 2)
	assert.Equal(t, uint32(2), r.Read(buf))
	assert.Equal(t, uint32(2), r.Write([]byte("ef")))

	rest := make([]byte, 4)
	assert.Equal(t, uint32(4), r.Read(rest))
	assert.Equal(t, []byte("cdef"), rest)
}

func TestByteRingWrapsAround(t *testing.T) {
	r := newTestByteRing(t, 4)
	buf := make([]byte, 4)

	for i := 0; i < 50; i++ {
		p := []byte{byte(i), byte(i + 1), byte(i + 2)}
		require.Equal(t, uint32(3), r.Write(p))
		require.Equal(t, uint32(3), r.Read(buf))
		assert.Equal(t, p, buf[:3])
	}
}

func TestEnqueueWithEscalationSucceedsOnceSpaceFrees(t *testing.T) {
	r := newTestWordRing(t, 2, 1)
	require.True(t, r.TryEnqueue([]uint32{1}))
	require.True(t, r.TryEnqueue([]uint32{2}))

	done := make(chan error, 1)
	go func() {
		done <- EnqueueWithEscalation(r, []uint32{3}, func() bool { return false })
	}()

	_, ok := r.TryDequeue()
	require.True(t, ok)
	require.NoError(t, <-done)
	assert.Equal(t, uint32(2), r.Len())
}

func TestEnqueueWithEscalationRespectsAbort(t *testing.T) {
	r := newTestWordRing(t, 2, 1)
	require.True(t, r.TryEnqueue([]uint32{1}))
	require.True(t, r.TryEnqueue([]uint32{2}))

	err := EnqueueWithEscalation(r, []uint32{3}, func() bool { return true })
	assert.ErrorIs(t, err, ErrAborted{})
}

func TestDequeueWithEscalationRespectsAbort(t *testing.T) {
	r := newTestWordRing(t, 2, 1)
	_, err := DequeueWithEscalation(r, func() bool { return true })
	assert.ErrorIs(t, err, ErrAborted{})
}

func TestWriteWithEscalationWritesEveryByte(t *testing.T) {
	r := newTestByteRing(t, 4)

	payload := []byte("0123456789abcdef")
	done := make(chan struct{})
	var out []byte
	go func() {
		defer close(done)
		buf := make([]byte, 4)
		for len(out) < len(payload) {
			n := r.Read(buf)
			out = append(out, buf[:n]...)
		}
	}()

	n, err := WriteWithEscalation(r, payload, func() bool { return false })
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	<-done
	assert.Equal(t, payload, out)
}

func TestWriteWithEscalationAbortReportsPartialProgress(t *testing.T) {
	r := newTestByteRing(t, 4)

	n, err := WriteWithEscalation(r, []byte("abcdef"), func() bool { return r.FreeSpace() == 0 })
	assert.ErrorIs(t, err, ErrAborted{})
	assert.Equal(t, 4, n)
}
