package sim

import (
	"sync"

	"go.uber.org/zap"
)

// Job is a background simulation. Progress is closed when the job finishes.
// When the reader falls behind, the oldest pending updates are discarded so
// the latest one, including the final update, is always delivered.
type Job[T any] struct {
	progress chan Progress
	done     chan struct{}
	val      T
	err      error
}

func (j *Job[T]) Progress() <-chan Progress { return j.progress }
func (j *Job[T]) Done() <-chan struct{}     { return j.done }

// Wait blocks until the job finishes.
func (j *Job[T]) Wait() (T, error) {
	<-j.done
	return j.val, j.err
}

// Worker runs simulations off the caller's goroutine, one at a time. A new
// submission waits for the previous job to finish before it starts.
type Worker struct {
	log *zap.Logger

	mu   sync.Mutex
	last chan struct{}
}

func NewWorker(log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{log: log}
}

// Run starts a single simulation.
func (w *Worker) Run(cfg Config) *Job[*Result] {
	return submit(w, "run", func(report func(Progress)) (*Result, error) {
		return Run(cfg, w.options(report)...)
	})
}

// Compare starts a weapon comparison.
func (w *Worker) Compare(cfg Config) *Job[*Comparison] {
	return submit(w, "compare", func(report func(Progress)) (*Comparison, error) {
		return Compare(cfg, w.options(report)...)
	})
}

func (w *Worker) options(report func(Progress)) []Option {
	return []Option{WithLogger(w.log), WithProgress(report)}
}

func submit[T any](w *Worker, kind string, fn func(report func(Progress)) (T, error)) *Job[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil {
		<-w.last
	}

	j := &Job[T]{progress: make(chan Progress, 16), done: make(chan struct{})}
	w.last = j.done
	go func() {
		defer close(j.done)
		defer close(j.progress)
		// the job is the only sender, so freeing one slot always makes room
		report := func(p Progress) {
			for {
				select {
				case j.progress <- p:
					return
				default:
				}
				select {
				case <-j.progress:
				default:
				}
			}
		}
		j.val, j.err = fn(report)
		if j.err != nil {
			w.log.Warn("simulation job failed", zap.String("kind", kind), zap.Error(j.err))
		}
	}()
	return j
}
