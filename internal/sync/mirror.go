package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/pkg/metrics"
)

// task is one queued best-effort remote write.
type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Mirror runs best-effort remote writes on a background goroutine. Local
// mutations are authoritative and never wait on the mirror; a failed task is
// logged once and dropped, never retried. Slug self-heal writes go through
// the same queue.
type Mirror struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	tasks  chan task
	done   chan struct{}
}

// NewMirror starts the mirror worker with the given queue capacity.
func NewMirror(logger *zap.Logger, m *metrics.Metrics, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = 256
	}
	mir := &Mirror{
		logger:  logger.Named("sync.mirror"),
		metrics: m,
		timeout: 30 * time.Second,
		tasks:   make(chan task, queueSize),
		done:    make(chan struct{}),
	}
	go mir.run()
	return mir
}

func (m *Mirror) run() {
	defer close(m.done)
	for t := range m.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := t.fn(ctx)
		cancel()
		if err != nil {
			m.logger.Warn("mirror task failed, continuing offline",
				zap.String("task", t.name),
				zap.Error(err))
			m.metrics.MirrorTask(t.name, false)
			continue
		}
		m.metrics.MirrorTask(t.name, true)
	}
}

// Enqueue schedules fn for background execution. It blocks only when the
// queue is full, and returns ErrMirrorClosed after Close.
func (m *Mirror) Enqueue(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cnst.ErrMirrorClosed
	}
	m.tasks <- task{name: name, fn: fn}
	return nil
}

// Close stops accepting tasks and waits for the queue to drain.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.tasks)
	m.mu.Unlock()
	<-m.done
}
