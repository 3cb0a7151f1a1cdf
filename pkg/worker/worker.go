package worker

import "github.com/mickaelmarchal/exifstream/pkg/logger"

var workerLogger = logger.Get("Worker")

type (
	WorkerWakeupChan chan int
	WorkerStatus     int

	// WorkerTask is the unit of work a worker executes repeatedly. The
	// boolean return indicates whether any work was actually performed;
	// a worker whose task reports no work goes back to sleep until
	// woken by the pool.
	WorkerTask func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WorkerWakeupChan
		Label() string
		Sleep() bool
		Close()
	}

	taskWorker struct {
		label         string
		task          WorkerTask
		wakeupChan    WorkerWakeupChan
		currentStatus WorkerStatus
	}
)

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{
		label: label,
		task:  task,
		// Buffered so that a wakeup raised while the worker is mid-task
		// is held until the worker next tries to sleep.
		wakeupChan:    make(WorkerWakeupChan, 1),
		currentStatus: SLEEPING,
	}
}

// Start runs the workers task in a loop until the task reports that
// no work remains, at which point the worker sleeps until woken. This
// method only returns once the workers wakeup channel is closed.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker %s\n", worker.label)
	for {
		worker.currentStatus = WORKING
		for {
			didWork, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker %s task reported an error(%T): %v\n", worker.label, err, err.Error())
				break
			}

			if !didWork {
				break
			}
		}

		if !worker.Sleep() {
			return
		}
	}
}

func (worker *taskWorker) Status() WorkerStatus {
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

func (worker *taskWorker) Label() string {
	return worker.label
}

// Close closes the Worker by closing the WakeupChan. Note that this
// does not interrupt a currently running task.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Sleep puts a worker to sleep until its wakeupChan is signalled from
// another goroutine. Returns a boolean that is 'false' if the wakeup
// channel was closed - indicating the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
		worker.currentStatus = FINISHED
	}

	return isAlive
}
