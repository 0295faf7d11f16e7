package worker

import (
	"sync/atomic"

	"github.com/okian/rampart/pkg/logger"
)

// Option applies a configuration option to an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithBuffer sets how many routed jobs a worker holds before the dispatcher blocks.
func WithBuffer(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.jobs = make(chan Job, n)
		}
	}
}

func withActiveCounter(c *atomic.Int64, total int) Option {
	return func(w *InMemoryWorker) {
		w.active = c
		w.total = total
	}
}
