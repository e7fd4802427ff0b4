package runtime

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
)

/**
 * dispatcher runs submitted tasks on a bounded worker pool, detached from
 * the caller. Task errors go through errCh to a single goroutine that
 * hands them to the error handler, so a slow handler never runs on a
 * pool worker concurrently with itself.
 */
type dispatcher struct {
	mu     sync.Mutex
	closed bool

	wp      *workerpool.WorkerPool
	errCh   chan error
	exitCh  chan struct{}
	handler func(err error)
}

func newDispatcher(concurrency int, handler func(err error)) *dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	d := &dispatcher{
		wp:      workerpool.New(concurrency),
		errCh:   make(chan error, concurrency),
		exitCh:  make(chan struct{}),
		handler: handler,
	}
	go d.drain()
	return d
}

func (d *dispatcher) drain() {
	defer close(d.exitCh)
	for err := range d.errCh {
		d.handle(err)
	}
}

// handle keeps the drain alive when the handler panics, errCh must always be consumed.
func (d *dispatcher) handle(err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("error handler panic: %v, dropped error: %v", r, err)
		}
	}()
	d.handler(err)
}

func (d *dispatcher) submit(task func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.MethodNotAllowedf("dispatcher closed")
	}
	d.wp.Submit(func() {
		if err := runTask(task); err != nil {
			d.errCh <- err
		}
	})
	return nil
}

func runTask(task func() error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = errors.Errorf("dispatched task panic: %v", r)
		}
	}()
	return task()
}

func (d *dispatcher) waitingQueueSize() int {
	return d.wp.WaitingQueueSize()
}

// stopWait waits for every submitted task and the error handler to finish.
func (d *dispatcher) stopWait(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		d.wp.StopWait()
		close(d.errCh)
		<-d.exitCh
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "stop dispatcher")
	}
}
