package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"shelterstat/logger"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Job represents a unit of work
type Job struct {
	ID      string
	Kind    string
	Execute func(ctx context.Context) error
}

// WorkerPool runs report jobs on a fixed number of goroutines.
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	wg          sync.WaitGroup
	stopOnce    sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, workerCount*2), // Buffer size = 2x workers
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < workerCount; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.Infof("Started worker pool with %d workers", workerCount)
	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			p.run(id, job)
		case <-p.ctx.Done():
			logger.Debugf("Worker %d stopped", id)
			return
		}
	}
}

func (p *WorkerPool) run(id int, job Job) {
	log := logger.WithFields(map[string]interface{}{
		"worker": id,
		"job_id": job.ID,
		"kind":   job.Kind,
	})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("job panicked: %v", r)
		}
	}()

	if err := job.Execute(p.ctx); err != nil {
		log.WithError(err).Warn("job failed")
		return
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("job completed")
}

// Submit queues a job, blocking while the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolStopped
	default:
	}
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still
// queued are dropped.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		logger.Info("Stopping worker pool...")
		p.cancel()
		p.wg.Wait()
		logger.Info("Worker pool stopped")
	})
}

// QueueSize returns the current number of jobs in queue
func (p *WorkerPool) QueueSize() int {
	return len(p.jobQueue)
}
