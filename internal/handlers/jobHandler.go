package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/job"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/google/uuid"
)

// JobHandler queues background jobs and answers status lookups.
type JobHandler struct {
	service *job.Service
	logger  *logger_i.Logger
}

func NewJobHandler(jobService *job.Service) *JobHandler {
	return &JobHandler{service: jobService, logger: logger_i.NewLogger("JobHandler")}
}

// SubmitIndexJob records the job as queued and hands it to the pool. The
// send blocks when the queue is full.
func (h *JobHandler) SubmitIndexJob(ctx context.Context, payload jobModel.JobPayload) (jobModel.Job, error) {
	traceId, _ := ctx.Value(config.TRACE_ID_KEY).(string)
	newJob := jobModel.Job{
		Id:          uuid.NewString(),
		TraceId:     traceId,
		JobType:     jobModel.JobTypeIndexURL,
		JobPayload:  payload,
		CreatedTime: time.Now(),
		Status:      jobModel.JobStatusQueued,
		CurrentStep: jobModel.IndexInit,
	}
	log := h.logger.WithTrace(ctx).With("jobId", newJob.Id)

	if err := h.service.JobStore.SaveJob(ctx, newJob); err != nil {
		log.Error("could not record job", "error", err)
		return jobModel.Job{}, err
	}

	metrics.IncrementJobsInQueue()
	select {
	case h.service.JobChannel <- newJob:
	case <-ctx.Done():
		metrics.DecrementJobsInQueue()
		return jobModel.Job{}, ctx.Err()
	}
	log.Info("queued index job", "url", payload.URL)

	// crawling is slow, so every index job asks for another worker; the
	// dispatcher caps the pool and idle workers retire on their own
	count := atomic.AddInt64(&h.service.RequestCount, 1)
	metrics.StartDispatcherSignalCount()
	log.Debug("signalling dispatcher", "requestCount", count)
	select {
	case h.service.DispatcherChannel <- true:
	default:
	}
	return newJob, nil
}

func (h *JobHandler) GetJobStatus(ctx context.Context, id string) (jobModel.Job, bool) {
	if id == "" {
		return jobModel.Job{}, false
	}
	return h.service.JobStore.GetJob(ctx, id)
}
