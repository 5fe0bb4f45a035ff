// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel provides the work-stealing worker pool that the software
// compute device uses to run workgroups concurrently.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool errors.
var (
	// ErrPoolClosed is returned by Run after Close.
	ErrPoolClosed = errors.New("parallel: pool is closed")

	// ErrPanic is wrapped by the error Run returns when a work item panics.
	ErrPanic = errors.New("parallel: work item panicked")
)

// ctxCheckInterval is how many items a chunk runs between context checks.
const ctxCheckInterval = 64

// WorkerPool is a pool of goroutines executing index ranges.
//
// Each worker owns a queue. Workers steal chunks from other queues when
// their own queue is empty, which keeps all workers busy when some chunks
// take longer than others (e.g. merge threads that walk further up a tree).
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return

		case work := <-myQueue:
			work()

		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

// drainQueue executes all remaining work in a queue.
func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal attempts to take work from another worker's queue.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run calls fn(i) for every i in [0, n) on the pool and waits for all calls
// to return. Indices are split into contiguous chunks; calls within a chunk
// run in ascending order, chunks run concurrently.
//
// Run stops scheduling new indices once ctx is done or a call panics. It
// returns ctx.Err() in the first case and an error wrapping ErrPanic in the
// second. Run must not be called from inside fn.
func (p *WorkerPool) Run(ctx context.Context, n int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	if !p.running.Load() {
		return ErrPoolClosed
	}

	chunks := min(n, p.workers*4)
	size := (n + chunks - 1) / chunks

	var (
		completionWG sync.WaitGroup
		stop         atomic.Bool
		firstErr     error
		errOnce      sync.Once
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		stop.Store(true)
	}

	for c := 0; c*size < n; c++ {
		lo, hi := c*size, min((c+1)*size, n)

		chunk := func() {
			defer completionWG.Done()
			i := lo
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("%w: index %d: %v", ErrPanic, i, r))
				}
			}()
			for ; i < hi; i++ {
				if (i-lo)%ctxCheckInterval == 0 {
					if stop.Load() {
						return
					}
					if err := ctx.Err(); err != nil {
						fail(err)
						return
					}
				}
				fn(i)
			}
		}

		completionWG.Add(1)
		select {
		case p.workQueues[c%p.workers] <- chunk:
		case <-p.done:
			completionWG.Done()
			fail(ErrPoolClosed)
		}
	}

	completionWG.Wait()
	return firstErr
}

// Close gracefully shuts down the pool. Queued chunks are drained before the
// workers exit. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
