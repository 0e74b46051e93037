package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultJobTimeout bounds a single sink write.
const DefaultJobTimeout = 5 * time.Second

type job struct {
	name      string
	sessionID string
	run       func(ctx context.Context) error
}

// Dispatcher runs sink writes on a background worker so the game never
// waits on them. Failures are logged and dropped.
type Dispatcher struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

// NewDispatcher starts a worker with room for buffer queued writes.
func NewDispatcher(buffer int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:     log,
		timeout: DefaultJobTimeout,
		jobs:    make(chan job, buffer),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Submit queues fn without blocking. It reports false when the job was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Submit(name, sessionID string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("analytics dispatcher closed, dropping job", "job", name, "session", sessionID)
		return false
	}
	select {
	case d.jobs <- job{name: name, sessionID: sessionID, run: fn}:
		return true
	default:
		d.log.Warn("analytics queue full, dropping job", "job", name, "session", sessionID)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for j := range d.jobs {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("analytics job panicked", "job", j.name, "session", j.sessionID, "panic", fmt.Sprint(r))
		}
	}()
	if err := j.run(ctx); err != nil {
		d.log.Warn("analytics job failed", "job", j.name, "session", j.sessionID, "error", err)
	}
}
