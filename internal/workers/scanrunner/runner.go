package scanrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"termslens/internal/ports"
)

// ErrStopped is returned by Submit once the pool has shut down.
var ErrStopped = errors.New("scan queue stopped")

// ScanProcessor performs the work for one claimed scan.
type ScanProcessor interface {
	Process(ctx context.Context, job ports.ScanJob) error
}

// Gauge receives the queue depth; prometheus.Gauge satisfies it.
type Gauge interface {
	Set(float64)
}

// Queue hands scan jobs to a fixed set of workers.
type Queue struct {
	jobs  chan ports.ScanJob
	log   logrus.FieldLogger
	depth Gauge

	mu      sync.RWMutex
	stopped bool
}

func NewQueue(size int, log logrus.FieldLogger, depth Gauge) *Queue {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Queue{jobs: make(chan ports.ScanJob, size), log: log, depth: depth}
}

// Submit enqueues job, blocking while the queue is full.
func (q *Queue) Submit(ctx context.Context, job ports.ScanJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	select {
	case q.jobs <- job:
		q.observe()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int { return len(q.jobs) }

func (q *Queue) observe() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.jobs)))
	}
}

// Run starts concurrency workers and blocks until ctx ends and every
// accepted job has been processed.
func (q *Queue) Run(ctx context.Context, processor ScanProcessor, concurrency int) error {
	if concurrency < 1 {
		return fmt.Errorf("scan workers: concurrency %d", concurrency)
	}
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			log := q.log.WithField("worker", idx)
			for job := range q.jobs {
				q.observe()
				// jobs already claimed their site; finish them even while shutting down
				_ = process(context.WithoutCancel(ctx), log, processor, job)
			}
		}(i)
	}
	q.log.WithField("workers", concurrency).Info("scan workers started")

	<-ctx.Done()
	q.mu.Lock()
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()
	wg.Wait()
	q.log.Info("scan workers stopped")
	return nil
}

// ProcessInline runs job on the caller's goroutine with the same handling the
// workers apply.
func ProcessInline(ctx context.Context, log logrus.FieldLogger, processor ScanProcessor, job ports.ScanJob) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return process(ctx, log.WithField("inline", true), processor, job)
}

func process(ctx context.Context, log logrus.FieldLogger, processor ScanProcessor, job ports.ScanJob) (err error) {
	log = log.WithFields(logrus.Fields{"job": job.ID, "domain": job.Site.Domain})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan job %s panicked: %v", job.ID, r)
			log.Error(err)
		}
	}()
	if err := processor.Process(ctx, job); err != nil {
		log.WithError(err).Warn("scan job failed")
		return err
	}
	log.Debug("scan job completed")
	return nil
}
