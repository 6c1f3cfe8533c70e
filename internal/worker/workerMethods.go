package worker

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/metrics"
)

func (p *Pool) executeJob(job jobModel.Job) {
	start := time.Now()
	ctxTrace := context.WithValue(context.Background(), config.TRACE_ID_KEY, job.TraceId)
	ctx, cancel := context.WithTimeout(ctxTrace, p.jobTimeout)
	defer cancel()
	log := logger.WithTrace(ctx).With("jobId", job.Id)
	log.Debug("processing job", "type", job.JobType)

	job = p.saveJobState(ctx, job, jobModel.JobStatusRunning)

	switch job.JobType {
	case jobModel.JobTypeIndexURL:
		job = p.indexService.IndexURL(ctx, job, func(j jobModel.Job) {
			p.saveJobState(ctx, j, jobModel.JobStatusRunning)
		})
	default:
		log.Error("unknown job type", "type", job.JobType)
		job.Error = jobModel.JobError{Code: http.StatusBadRequest, Message: "unknown job type " + string(job.JobType)}
		job.Status = jobModel.JobStatusError
	}

	job.EndTime = time.Now()
	final := jobModel.JobStatusComplete
	if job.Status == jobModel.JobStatusError {
		final = jobModel.JobStatusError
	}
	p.saveJobState(ctx, job, final)
	metrics.CaptureJobMetrics(string(final), time.Since(start))
}

func (p *Pool) removeWorker(reason string) {
	n := atomic.AddInt64(&p.workerCount, -1)
	metrics.DecrementActiveWorkerCount()
	logger.Info("removed worker", "reason", reason, "workerCount", n)
	p.wg.Done()
}

// saveJobState uses a fresh context so the final state is written even
// after the job's own deadline has passed.
func (p *Pool) saveJobState(ctx context.Context, job jobModel.Job, jobStatus jobModel.JobStatus) jobModel.Job {
	job.Status = jobStatus
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.jobService.JobStore.SaveJob(saveCtx, job); err != nil {
		logger.WithTrace(ctx).Error("failed to update job state", "jobId", job.Id, "error", err)
	}
	return job
}
