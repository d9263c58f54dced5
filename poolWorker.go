package main

import (
	"context"
	"sync"
	"time"

	"github.com/Zelak312/flowarr/pwcnet"
	"github.com/sirupsen/logrus"
)

// FlowEstimator computes the 2 x H x W flow from first to second.
type FlowEstimator interface {
	Estimate(ctx context.Context, first, second *pwcnet.Tensor) (*pwcnet.Tensor, error)
}

// JobStore is the persistence the workers need.
type JobStore interface {
	MarkJobAsDone(job *Job) error
	GetJobRetries(job *Job) (int, error)
	UpdateJobRetries(job *Job, retries int) error
	FailJob(job *Job, output string, progErr string) error
}

type PoolWorker struct {
	ctx         context.Context
	queue       *Queue
	store       JobStore
	config      *Config
	estimator   FlowEstimator
	hub         *Hub
	logger      *logrus.Entry
	workChannel chan Job
	workers     []*Worker
	waitGroup   sync.WaitGroup
}

func NewPoolWorker(ctx context.Context, queue *Queue, store JobStore, config *Config,
	estimator FlowEstimator, hub *Hub, logger *logrus.Entry) *PoolWorker {
	p := &PoolWorker{
		ctx:         ctx,
		queue:       queue,
		store:       store,
		config:      config,
		estimator:   estimator,
		hub:         hub,
		logger:      logger,
		workChannel: make(chan Job),
	}

	for i := 0; i < config.Workers; i++ {
		workerLogger := logger.WithField("worker", i)
		p.workers = append(p.workers, NewWorker(i, workerLogger, p, hub))
	}

	return p
}

// RunDispatcher feeds queued jobs to the workers until the context is done,
// then waits for the workers to return.
func (p *PoolWorker) RunDispatcher() {
	for _, worker := range p.workers {
		p.waitGroup.Add(1)
		go func(w *Worker) {
			defer p.waitGroup.Done()
			w.start()
		}(worker)
	}

	defer func() {
		close(p.workChannel)
		p.waitGroup.Wait()
		p.logger.Info("All workers stopped")
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		job, ok := p.queue.Dequeue()
		if !ok {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		select {
		case p.workChannel <- job:
		case <-p.ctx.Done():
			// Still in the database as not done, picked up on next start
			return
		}
	}
}

func (p *PoolWorker) GetWorkerInfos() []WorkerInfo {
	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, worker := range p.workers {
		infos = append(infos, worker.GetInfo())
	}

	return infos
}
