package worker

import (
	"errors"
	"sync"
)

// WorkerPool owns a set of workers and the WaitGroup tracking their
// goroutines. The WaitGroup is automatically controlled by the pool.
type WorkerPool struct {
	workers []Worker
	Wg      sync.WaitGroup
	started bool
}

func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// Start cycles through all the workers currently inside the WorkerPool
// and creates a goroutine for each. The 'Start' method of each worker
// is executed concurrently.
//
// Start does NOT block, however consumers can wait on the WaitGroup in
// the pool if they wish.
func (pool *WorkerPool) Start() error {
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.Wg.Add(1)
		go func(wg *sync.WaitGroup, w Worker) {
			defer wg.Done()
			w.Start()
		}(&pool.Wg, worker)
	}

	return nil
}

func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// WakeupWorkers signals every live worker in the pool on its
// WakeupChannel. The send is non-blocking; worker wakeup channels are
// buffered, so a signal raised while a worker is mid-task is consumed
// when that worker next tries to sleep rather than being lost.
func (pool *WorkerPool) WakeupWorkers() error {
	if !pool.started {
		return errors.New("cannot wakeup workers on worker pool that is not started")
	}

	for _, w := range pool.workers {
		if w.Status() == FINISHED {
			continue
		}

		select {
		case w.WakeupChan() <- 1:
		default:
		}
	}

	return nil
}

// Close will cycle through all the workers inside this worker pool and
// close their wakeup channels, then wait for their goroutines to finish.
func (pool *WorkerPool) Close() {
	if !pool.started {
		return
	}

	for _, w := range pool.workers {
		w.Close()
	}
	pool.Wg.Wait()
	pool.started = false
}
