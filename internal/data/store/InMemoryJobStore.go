package store

import (
	"context"
	"sync"

	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/pkg/logger_i"
)

// InMemoryJobStore keeps jobs in process. Used when redis is unreachable.
type InMemoryJobStore struct {
	jobMutex *sync.RWMutex
	jobMap   map[string]jobModel.Job
	logger   *logger_i.Logger
}

func InitInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobMutex: new(sync.RWMutex),
		jobMap:   make(map[string]jobModel.Job),
		logger:   logger_i.NewLogger("InMem JobStore"),
	}
}

func (s *InMemoryJobStore) SaveJob(ctx context.Context, job jobModel.Job) error {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()
	s.jobMap[job.Id] = job
	s.logger.WithTrace(ctx).Debug("saved job", "jobId", job.Id, "status", job.Status)
	return nil
}

func (s *InMemoryJobStore) GetJob(ctx context.Context, jobId string) (jobModel.Job, bool) {
	s.jobMutex.RLock()
	defer s.jobMutex.RUnlock()
	job, found := s.jobMap[jobId]
	s.logger.WithTrace(ctx).Debug("job lookup", "jobId", jobId, "found", found)
	return job, found
}

func (s *InMemoryJobStore) DeleteJob(_ context.Context, jobID string) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()
	delete(s.jobMap, jobID)
}
