package snzi

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	fired atomic.Int32
}

func (n *countingNotifier) NotifyReady() { n.fired.Add(1) }

func TestTree_SingleLeafArriveDepart(t *testing.T) {
	tr := NewTree(0)
	notifier := &countingNotifier{}
	tr.SetRootAnnotation(notifier)

	assert.False(t, tr.IsNonzero())

	leaf := tr.IthLeafNode(0)
	leaf.Arrive()
	assert.True(t, tr.IsNonzero())

	fired := leaf.Depart()
	assert.True(t, fired)
	assert.Equal(t, int32(1), notifier.fired.Load())
	assert.False(t, tr.IsNonzero())
}

func TestTree_ConcurrentArriveDepart(t *testing.T) {
	const height = 3
	const n = 2000

	tr := NewTree(height)
	notifier := &countingNotifier{}
	tr.SetRootAnnotation(notifier)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.RandomLeafOf(uint64(i)).Arrive()
		}(i)
	}
	wg.Wait()
	require.True(t, tr.IsNonzero())

	var fireCount atomic.Int32
	var wg2 sync.WaitGroup
	for i := 0; i < n; i++ {
		wg2.Add(1)
		go func(i int) {
			defer wg2.Done()
			if tr.RandomLeafOf(uint64(i)).Depart() {
				fireCount.Add(1)
			}
		}(i)
	}
	wg2.Wait()

	assert.Equal(t, int32(1), fireCount.Load(), "exactly one depart call observes the zero transition")
	assert.Equal(t, int32(1), notifier.fired.Load())
	assert.False(t, tr.IsNonzero())
}

func TestTree_RandomLeafOfSpreads(t *testing.T) {
	tr := NewTree(4)
	seen := make(map[*Node]bool)
	for i := uint64(0); i < 64; i++ {
		seen[tr.RandomLeafOf(i)] = true
	}
	assert.Greater(t, len(seen), 1, "hash should spread callers across more than one leaf")
}
