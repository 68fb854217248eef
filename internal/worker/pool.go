package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Job is a unit of work the dispatcher hands to a worker. Execute must honor
// ctx cancellation; a canceled job stops at its next checkpoint.
type Job interface {
	Execute(ctx context.Context) error
	ID() string
}

// ErrQueueFull is returned when a job cannot be accepted.
var ErrQueueFull = errors.New("job queue full")

// Worker pulls jobs from its own channel after registering it with the
// shared pool.
type Worker struct {
	id         int
	workerPool chan chan Job
	jobChannel chan Job
	quit       chan struct{}
	wg         *sync.WaitGroup
	log        *logrus.Logger
}

func newWorker(id int, workerPool chan chan Job, wg *sync.WaitGroup, log *logrus.Logger) *Worker {
	return &Worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan Job),
		quit:       make(chan struct{}),
		wg:         wg,
		log:        log,
	}
}

func (w *Worker) start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			w.workerPool <- w.jobChannel

			select {
			case job := <-w.jobChannel:
				log := w.log.WithFields(logrus.Fields{"worker": w.id, "job": job.ID()})
				log.Info("Job started")
				if err := job.Execute(ctx); err != nil {
					log.WithError(err).Error("Job failed")
				} else {
					log.Info("Job finished")
				}
			case <-w.quit:
				return
			}
		}
	}()
}

func (w *Worker) stop() {
	close(w.quit)
}

// Dispatcher fans incoming jobs out to a fixed pool of workers.
type Dispatcher struct {
	maxWorkers int
	workerPool chan chan Job
	jobQueue   chan Job
	workers    []*Worker
	wg         sync.WaitGroup
	quit       chan struct{}
	log        *logrus.Logger
}

// NewDispatcher creates a dispatcher with maxWorkers workers and a job
// queue of the given size.
func NewDispatcher(maxWorkers, queueSize int, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		maxWorkers: maxWorkers,
		workerPool: make(chan chan Job, maxWorkers),
		jobQueue:   make(chan Job, queueSize),
		workers:    make([]*Worker, 0, maxWorkers),
		quit:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the workers and the dispatch loop. ctx is passed to every job;
// canceling it stops in-flight jobs at their next checkpoint.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.WithField("workers", d.maxWorkers).Info("Dispatcher starting")
	for i := 1; i <= d.maxWorkers; i++ {
		w := newWorker(i, d.workerPool, &d.wg, d.log)
		d.workers = append(d.workers, w)
		w.start(ctx)
	}
	go d.dispatch()
}

func (d *Dispatcher) dispatch() {
	for {
		select {
		case job := <-d.jobQueue:
			go func(job Job) {
				jobChannel := <-d.workerPool
				jobChannel <- job
			}(job)
		case <-d.quit:
			return
		}
	}
}

// Submit queues a job without blocking. ErrQueueFull is returned when the
// queue has no room; callers decide whether to retry or reject upstream.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case d.jobQueue <- job:
		d.log.WithField("job", job.ID()).Info("Job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop shuts down the dispatch loop and waits for workers to finish their
// current jobs.
func (d *Dispatcher) Stop() {
	d.log.Info("Dispatcher stopping")
	close(d.quit)
	for _, w := range d.workers {
		w.stop()
	}
	d.wg.Wait()
	d.log.Info("Dispatcher stopped")
}
