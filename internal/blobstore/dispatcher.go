package blobstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrDispatcherClosed is delivered for jobs submitted after Close.
var ErrDispatcherClosed = errors.New("blobstore: dispatcher closed")

// Job is a unit of background storage work.
type Job func(ctx context.Context) error

type queuedJob struct {
	name string
	run  Job
	done chan error
}

// Dispatcher runs storage jobs one at a time on a single long-lived
// goroutine so request handlers never wait on slow uploads. Jobs run in
// submission order.
type Dispatcher struct {
	jobs   chan queuedJob
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker goroutine. queue bounds the number of
// pending jobs before Submit blocks.
func NewDispatcher(queue int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queue <= 0 {
		queue = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:   make(chan queuedJob, queue),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for j := range d.jobs {
		err := j.run(d.ctx)
		if err != nil {
			d.logger.Warn("background job failed", "job", j.name, "error", err)
		} else {
			d.logger.Debug("background job done", "job", j.name)
		}
		j.done <- err
		close(j.done)
	}
}

// Submit queues fn and returns a channel that receives its result once. The
// caller may ignore the channel.
func (d *Dispatcher) Submit(name string, fn Job) <-chan error {
	done := make(chan error, 1)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		done <- ErrDispatcherClosed
		close(done)
		return done
	}
	d.jobs <- queuedJob{name: name, run: fn, done: done}
	return done
}

// Close stops accepting jobs and waits for queued ones to finish. If ctx
// expires first the running job's context is cancelled and ctx.Err() is
// returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-finished
		return ctx.Err()
	}
}
