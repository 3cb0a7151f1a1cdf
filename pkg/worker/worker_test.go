package worker_test

import (
	"testing"
	"time"

	"github.com/mickaelmarchal/exifstream/pkg/worker"
	"github.com/stretchr/testify/assert"
)

func Test_WakeupWorkers_SignalDuringTaskIsNotLost(t *testing.T) {
	t.Parallel()

	runs := make(chan struct{})
	pool := worker.NewWorkerPool()
	assert.Nil(t, pool.PushWorker(worker.NewWorker("test-worker", func(w worker.Worker) (bool, error) {
		runs <- struct{}{}
		return false, nil
	})))

	assert.Nil(t, pool.Start())
	t.Cleanup(pool.Close)

	// The worker runs its task once on start. At the point the wakeup is
	// sent the worker is still mid-task, or between the task returning
	// and the sleep beginning; in either case the signal must be held
	// for it rather than dropped.
	<-runs
	assert.Nil(t, pool.WakeupWorkers())

	select {
	case <-runs:
	case <-time.After(time.Second * 2):
		t.Fatal("worker never ran for a wakeup signalled while it was busy")
	}
}

func Test_WorkerPool_StartAndPushGuards(t *testing.T) {
	t.Parallel()

	pool := worker.NewWorkerPool()
	assert.NotNil(t, pool.WakeupWorkers(), "waking a pool that was never started must fail")

	assert.Nil(t, pool.Start())
	t.Cleanup(pool.Close)

	assert.NotNil(t, pool.Start(), "starting a started pool must fail")
	assert.NotNil(t, pool.PushWorker(worker.NewWorker("late", func(w worker.Worker) (bool, error) {
		return false, nil
	})), "pushing a worker to a started pool must fail")
}
