package workers

import (
	"sync"
	"time"

	"arenda-utils/internal/logging"
)

// Dispatcher distributes queued runs across workers round-robin.
type Dispatcher struct {
	jobQueue chan RunJob
	workers  []*Worker
	quit     chan bool
	logger   logging.Logger
	mu       sync.RWMutex
	running  bool
}

// NewDispatcher creates a new run dispatcher
func NewDispatcher(jobQueue chan RunJob, workers []*Worker) *Dispatcher {
	return &Dispatcher{
		jobQueue: jobQueue,
		workers:  workers,
		quit:     make(chan bool),
		logger:   logging.GetGlobalLogger().WithField("component", "dispatcher"),
	}
}

// Start starts the dispatcher
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	go d.dispatch()

	d.running = true
	d.logger.Info("Run dispatcher started", map[string]interface{}{
		"workers": len(d.workers),
	})
}

// Stop stops the dispatcher
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}

	d.quit <- true

	d.running = false
	d.logger.Info("Run dispatcher stopped")
}

// dispatch hands each queued run to the next worker with a free slot.
func (d *Dispatcher) dispatch() {
	workerIndex := 0

	for {
		select {
		case job := <-d.jobQueue:
			attempts := 0
		assignLoop:
			for {
				worker := d.workers[workerIndex]
				workerIndex = (workerIndex + 1) % len(d.workers)
				select {
				case worker.JobChan <- job:
					break assignLoop
				case <-d.quit:
					return
				default:
					attempts++
					// Every worker is busy, back off before the next cycle.
					// Shutdown must still win while the job is held.
					if attempts%len(d.workers) == 0 {
						select {
						case <-time.After(10 * time.Millisecond):
						case <-d.quit:
							return
						}
					}
				}
			}

		case <-d.quit:
			return
		}
	}
}

// IsRunning returns true if dispatcher is running
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}
