// Package reclaim paces freelist reclamation for the dyntree and
// dyntreeopt edge variants. A busy incounter/outset can unlink many nodes
// per second; draining each one synchronously on the caller's goroutine
// would serialize Destroy behind however large the freelist happened to
// grow. Instead, reclamation work is submitted as jobs to a shared batcher
// from the upstream go-microbatch module (the teacher's own published
// dependency for this concern) that groups them and runs each group on its
// own goroutine.
package reclaim

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// defaultMaxSize/defaultFlushInterval govern the package-level default
// Reclaimer. 128 echoes the dyntreeopt variant's default amortisation
// bound — both exist to trade a little reclamation latency for fewer,
// larger batches of work.
const (
	defaultMaxSize       = 128
	defaultFlushInterval = 2 * time.Millisecond
)

var global struct {
	sync.RWMutex
	reclaimer *Reclaimer
}

func init() {
	global.reclaimer = New(defaultMaxSize, defaultFlushInterval)
}

// SetDefault replaces the package-level default Reclaimer.
func SetDefault(r *Reclaimer) {
	global.Lock()
	defer global.Unlock()
	global.reclaimer = r
}

// Default returns the current package-level default Reclaimer.
func Default() *Reclaimer {
	global.RLock()
	defer global.RUnlock()
	return global.reclaimer
}

// Job performs one unit of reclamation work (typically: mark a freelist
// node destroyed, panicking on double reclamation).
type Job func()

// Reclaimer batches Job submissions and runs each batch to completion.
type Reclaimer struct {
	batcher *microbatch.Batcher[Job]
}

// New constructs a Reclaimer. maxSize and flushInterval bound how large a
// batch grows, and how long a job waits before its batch runs even if
// maxSize hasn't been reached. The package default is built with
// defaultMaxSize and defaultFlushInterval; the Runtime's
// communication_delay and poisson settings are not passed in.
func New(maxSize int, flushInterval time.Duration) *Reclaimer {
	return &Reclaimer{
		batcher: microbatch.NewBatcher[Job](
			&microbatch.BatcherConfig{
				MaxSize:        maxSize,
				FlushInterval:  flushInterval,
				MaxConcurrency: 1,
			},
			func(_ context.Context, jobs []Job) error {
				for _, job := range jobs {
					job()
				}
				return nil
			},
		),
	}
}

// Submit queues fn for execution in the next batch. Submission is
// best-effort: if the Reclaimer has been closed, fn runs inline instead of
// being dropped, since a freelist node must still end up reclaimed exactly
// once.
func (r *Reclaimer) Submit(fn Job) {
	if _, err := r.batcher.Submit(context.Background(), fn); err != nil {
		fn()
	}
}

// Close stops accepting new jobs and waits for in-flight batches to finish.
func (r *Reclaimer) Close() error {
	return r.batcher.Close()
}
