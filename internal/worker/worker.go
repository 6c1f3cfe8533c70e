package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/job"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag"
	"github.com/akolanti/mirage/pkg/logger_i"
)

var logger = logger_i.NewLogger("WorkerPool")

// Pool runs index jobs from the job service's channel. Workers grow on
// dispatcher signals up to MaxWorkerCount and retire after idleTimeout
// while more than minWorkers are alive.
type Pool struct {
	jobService   *job.Service
	indexService rag.Service

	stop        chan bool
	wg          *sync.WaitGroup
	workerCount int64
	minWorkers  int64
	idleTimeout time.Duration
	jobTimeout  time.Duration
}

func NewPool(jobService *job.Service, indexService rag.Service) *Pool {
	return &Pool{
		jobService:   jobService,
		indexService: indexService,
		minWorkers:   config.MinWorkerCount,
		idleTimeout:  config.IdleWorkerTimeout,
		jobTimeout:   config.IndexJobTimeout,
	}
}

// Start launches the dispatcher with one worker. Closing stopWorkerChan
// retires every worker and the dispatcher; waitGroup tracks all of them.
func (p *Pool) Start(stopWorkerChan chan bool, waitGroup *sync.WaitGroup) {
	p.stop = stopWorkerChan
	p.wg = waitGroup
	logger.Info("initializing worker pool")
	p.createWorker()
	p.wg.Add(1)
	go p.dispatcher()
}

func (p *Pool) WorkerCount() int64 {
	return atomic.LoadInt64(&p.workerCount)
}

func (p *Pool) dispatcher() {
	defer p.wg.Done()
	logger.Info("dispatcher started")
	for {
		select {
		case <-p.stop:
			logger.Info("dispatcher stopped")
			return
		case <-p.jobService.DispatcherChannel:
			if p.WorkerCount() < config.MaxWorkerCount {
				p.createWorker()
			}
		}
	}
}

func (p *Pool) createWorker() {
	p.wg.Add(1)
	n := atomic.AddInt64(&p.workerCount, 1)
	metrics.IncrementActiveWorkerCount()
	logger.Info("created new worker", "workerCount", n)
	go p.worker()
}

func (p *Pool) worker() {
	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()
	for {
		select {
		case currentJob := <-p.jobService.JobChannel:
			p.executeJob(currentJob)
			metrics.DecrementJobsInQueue()
			idle.Reset(p.idleTimeout)

		case <-p.stop:
			p.removeWorker("stop signal received")
			return

		case <-idle.C:
			// the last minWorkers workers stay around
			if p.WorkerCount() > p.minWorkers {
				p.removeWorker("idle timeout")
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}
