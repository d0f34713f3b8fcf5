package reclaim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReclaimer_SubmitRunsEveryJob(t *testing.T) {
	r := New(4, 5*time.Millisecond)
	defer r.Close()

	const n = 50
	var wg sync.WaitGroup
	var count int
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		r.Submit(func() {
			mu.Lock()
			count++
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, n, count)
}

func TestReclaimer_SubmitAfterCloseRunsInline(t *testing.T) {
	r := New(4, 5*time.Millisecond)
	assert.NoError(t, r.Close())

	var ran bool
	r.Submit(func() { ran = true })
	assert.True(t, ran)
}

func TestDefault_SetAndGet(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	replacement := New(1, time.Millisecond)
	defer replacement.Close()
	SetDefault(replacement)
	assert.Same(t, replacement, Default())
}
