// ring_buffer_test.go - Eviction order and drop accounting.
package buffers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferEvictsOldest(t *testing.T) {
	rb := NewRingBuffer[string](2)
	rb.Append("a")
	rb.Append("b")
	rb.Append("c")

	require.Equal(t, []string{"b", "c"}, rb.Snapshot())
	require.Equal(t, 2, rb.Len())
	require.Equal(t, int64(1), rb.Dropped())
	require.Equal(t, int64(3), rb.TotalAdded())
}

func TestRingBufferUnderCapacity(t *testing.T) {
	rb := NewRingBuffer[int](5)
	rb.Append(1)
	rb.Append(2)

	require.Equal(t, []int{1, 2}, rb.Snapshot())
	require.Equal(t, 2, rb.Len())
	require.Zero(t, rb.Dropped())
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 7; i++ {
		rb.Append(i)
	}
	require.Equal(t, []int{5, 6, 7}, rb.Snapshot())
	require.Equal(t, int64(4), rb.Dropped())
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := NewRingBuffer[int](0)
	rb.Append(1)
	rb.Append(2)
	require.Equal(t, []int{2}, rb.Snapshot())
}

func TestRingBufferConcurrentAppend(t *testing.T) {
	rb := NewRingBuffer[int](100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				rb.Append(i)
				_ = rb.Snapshot()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 100, rb.Len())
	require.Equal(t, int64(2000), rb.TotalAdded())
	require.Equal(t, int64(1900), rb.Dropped())
}
