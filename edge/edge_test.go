package edge

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	fired atomic.Int32
}

func (n *recordingNotifier) NotifyReady() { n.fired.Add(1) }

func allAlgos() []Algo {
	return []Algo{AlgoSimple, AlgoDistributed, AlgoDyntree, AlgoDyntreeopt}
}

func TestIncounter_BasicLifecycle(t *testing.T) {
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			notifier := &recordingNotifier{}
			in := NewIncounter(algo, DefaultParams(), notifier)
			assert.False(t, in.IsActivated())

			in.Increment(nil)
			in.Increment(nil)

			// Three units outstanding: the implicit initial one plus two
			// increments. Three decrements are needed to reach zero.
			assert.Equal(t, NotActivated, in.Decrement(nil))
			assert.Equal(t, NotActivated, in.Decrement(nil))
			assert.Equal(t, Activated, in.Decrement(nil))
			assert.True(t, in.IsActivated())
			assert.Equal(t, int32(1), notifier.fired.Load())
		})
	}
}

func TestIncounter_ConcurrentIncrementDecrement(t *testing.T) {
	const n = 500
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			notifier := &recordingNotifier{}
			in := NewIncounter(algo, DefaultParams(), notifier)

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					in.Increment(nil)
				}()
			}
			wg.Wait()

			var fireCount atomic.Int32
			var wg2 sync.WaitGroup
			// n increments plus the implicit initial unit: n+1 decrements.
			for i := 0; i < n+1; i++ {
				wg2.Add(1)
				go func() {
					defer wg2.Done()
					if in.Decrement(nil) == Activated {
						fireCount.Add(1)
					}
				}()
			}
			wg2.Wait()

			assert.Equal(t, int32(1), fireCount.Load())
			assert.Equal(t, int32(1), notifier.fired.Load())
			assert.True(t, in.IsActivated())

			if d, ok := in.(Destroyer); ok {
				d.Destroy()
			}
		})
	}
}

func TestOutset_InsertThenFinishDeliversExactlyOnce(t *testing.T) {
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			out := NewOutset(algo, DefaultParams())

			const n = 50
			notifiers := make([]*recordingNotifier, n)
			incounters := make([]Incounter, n)
			for i := range incounters {
				notifiers[i] = &recordingNotifier{}
				incounters[i] = NewIncounter(AlgoSimple, DefaultParams(), notifiers[i])
				// the implicit initial unit stands in for the inserted edge,
				// so the one Decrement from Finish activates each.
				require.Equal(t, Success, out.Insert(incounters[i]))
			}

			out.Finish(nil)

			for i := range incounters {
				assert.True(t, incounters[i].IsActivated())
				assert.Equal(t, int32(1), notifiers[i].fired.Load())
			}

			out.Destroy()
		})
	}
}

func TestOutset_InsertAfterFinishFails(t *testing.T) {
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			out := NewOutset(algo, DefaultParams())
			out.Finish(nil)

			notifier := &recordingNotifier{}
			consumer := NewIncounter(AlgoSimple, DefaultParams(), notifier)
			assert.Equal(t, Fail, out.Insert(consumer))
			// No decrement should have been delivered: the consumer's
			// implicit initial unit is still outstanding.
			assert.False(t, consumer.IsActivated())
		})
	}
}

func TestOutset_ConcurrentInsertRacingFinish(t *testing.T) {
	const n = 300
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			out := NewOutset(algo, DefaultParams())

			notifiers := make([]*recordingNotifier, n)
			incounters := make([]Incounter, n)
			for i := range incounters {
				notifiers[i] = &recordingNotifier{}
				// the implicit initial unit stands in for the inserted edge
				incounters[i] = NewIncounter(AlgoSimple, DefaultParams(), notifiers[i])
			}

			var results [n]InsertResult
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = out.Insert(incounters[i])
				}(i)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				out.Finish(nil)
			}()
			wg.Wait()

			for i := range incounters {
				if results[i] == Success {
					assert.True(t, incounters[i].IsActivated())
					assert.Equal(t, int32(1), notifiers[i].fired.Load())
				} else {
					assert.False(t, incounters[i].IsActivated())
					assert.Equal(t, int32(0), notifiers[i].fired.Load())
				}
			}
		})
	}
}

func TestAddEdge_SuccessfulWiring(t *testing.T) {
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			targetNotifier := &recordingNotifier{}
			target := NewIncounter(algo, DefaultParams(), targetNotifier)

			source := NewOutset(algo, DefaultParams())
			AddEdge(target, source, nil)
			// release the implicit unit only once the edge is wired, leaving
			// AddEdge's edge as the one outstanding unit.
			target.Decrement(nil)
			assert.False(t, target.IsActivated())

			source.Finish(nil)
			assert.True(t, target.IsActivated())
			assert.Equal(t, int32(1), targetNotifier.fired.Load())
		})
	}
}

func TestAddEdge_RollsBackAfterFinishedSource(t *testing.T) {
	for _, algo := range allAlgos() {
		t.Run(string(algo), func(t *testing.T) {
			targetNotifier := &recordingNotifier{}
			target := NewIncounter(algo, DefaultParams(), targetNotifier)

			source := NewOutset(algo, DefaultParams())
			source.Finish(nil)

			AddEdge(target, source, nil)
			// Insert failed, so AddEdge's rollback decrement must have
			// cancelled its own increment: releasing the implicit unit alone
			// activates target.
			target.Decrement(nil)
			assert.True(t, target.IsActivated())
			assert.Equal(t, int32(1), targetNotifier.fired.Load())
		})
	}
}
