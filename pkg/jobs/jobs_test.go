package jobs

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	q := NewQueue(TypeLazyFree, func(payload interface{}) {
		mu.Lock()
		order = append(order, payload.(int))
		mu.Unlock()
	})
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Submit(i)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSubmitDedupCollapsesDuplicates(t *testing.T) {
	var runs atomic.Int32
	block := make(chan struct{})

	q := NewQueue(TypeHnswRebuild, func(payload interface{}) {
		<-block
		runs.Add(1)
	})
	defer q.Close()

	first := q.SubmitDedup("coll-a", "coll-a")
	assert.True(t, first)

	// Give the worker time to pick up and start executing the first job so
	// it's no longer sitting in the pending list.
	time.Sleep(10 * time.Millisecond)

	second := q.SubmitDedup("coll-a", "coll-a")
	assert.False(t, second, "rebuild already in flight should be rejected")

	close(block)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSubmitDedupAllowsAfterCompletion(t *testing.T) {
	var runs atomic.Int32
	q := NewQueue(TypeHnswRebuild, func(payload interface{}) {
		runs.Add(1)
	})
	defer q.Close()

	require.True(t, q.SubmitDedup("coll-a", "coll-a"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	assert.True(t, q.SubmitDedup("coll-a", "coll-a"))
}

func TestCloseDrainsPendingJobs(t *testing.T) {
	var processed atomic.Int32
	q := NewQueue(TypeLazyFree, func(payload interface{}) {
		processed.Add(1)
	})
	for i := 0; i < 10; i++ {
		q.Submit(i)
	}
	q.Close()
	assert.Equal(t, int32(10), processed.Load())
}

func TestSubmitAfterCloseIsNoop(t *testing.T) {
	q := NewQueue(TypeLazyFree, func(payload interface{}) {})
	q.Close()
	q.Submit(1)
	assert.Equal(t, 0, q.Len())
}

func TestManagerRequestRebuildSingleFlights(t *testing.T) {
	var calls atomic.Int32
	mgr := NewManager(
		func(collection string) { calls.Add(1) },
		func(collection string) {},
	)
	defer mgr.Close()

	assert.True(t, mgr.RequestRebuild("products"))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestManagerRequestLazyFree(t *testing.T) {
	done := make(chan string, 1)
	mgr := NewManager(
		func(collection string) {},
		func(collection string) { done <- collection },
	)
	defer mgr.Close()

	mgr.RequestLazyFree("products")
	select {
	case collection := <-done:
		assert.Equal(t, "products", collection)
	case <-time.After(time.Second):
		t.Fatal("lazy free never ran")
	}
}
