// Package rag runs the server side indexing jobs.
package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/akolanti/mirage/internal/adapter"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/indexer"
	"github.com/akolanti/mirage/internal/rag/ingest"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/pkg/logger_i"
)

// Service is all the worker pool sees of indexing.
type Service interface {
	// IndexURL crawls, chunks, embeds and stores the job's site. progress
	// is called whenever the job moves to a new step.
	IndexURL(ctx context.Context, job jobModel.Job, progress func(jobModel.Job)) jobModel.Job
}

// Loader extracts documents; ingest.LoadPublic in production.
type Loader func(ctx context.Context, kind ingest.Kind, target string, maxPages int) ([]commonModels.Document, []ingest.Skipped, error)

type service struct {
	store    vectorDB.Store
	embedder embedding.Embedder
	chunker  *chunker.Chunker
	load     Loader
	logger   *logger_i.Logger
}

type Option func(*service)

func WithLoader(l Loader) Option {
	return func(s *service) { s.load = l }
}

func NewService(store vectorDB.Store, em embedding.Embedder, ch *chunker.Chunker, opts ...Option) Service {
	s := &service{
		store:    store,
		embedder: em,
		chunker:  ch,
		load:     ingest.LoadPublic,
		logger:   logger_i.NewLogger("Index Service"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var errNothingIndexed = errors.New("no readable pages found")

func (s *service) IndexURL(ctx context.Context, job jobModel.Job, progress func(jobModel.Job)) jobModel.Job {
	log := s.logger.WithTrace(ctx).With("jobId", job.Id, "collection", job.JobPayload.CollectionName)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("url_indexing", time.Since(start)) }()

	step := func(st jobModel.InternalStatus) {
		job.CurrentStep = st
		log.Debug("index step", "step", st)
		if progress != nil {
			progress(job)
		}
	}

	step(jobModel.CrawlStep)
	docs, skipped, err := s.load(ctx, ingest.KindURL, job.JobPayload.URL, job.JobPayload.MaxPages)
	if err != nil {
		return s.jobError(job, log, fmt.Errorf("crawling %s: %w", job.JobPayload.URL, err))
	}
	job.JobPayload.Pages = len(docs)
	job.JobPayload.Skipped = len(skipped)
	if len(docs) == 0 {
		return s.jobError(job, log, errNothingIndexed)
	}

	step(jobModel.ChunkStep)
	chunks := s.chunker.SplitAll(docs)

	step(jobModel.EmbeddingStep)
	store := vectorDB.ForUser(s.store, job.JobPayload.UserID)
	handle, err := indexer.New(store, s.embedder, commonModels.LocationRemote).
		CreateOrReplaceCollection(ctx, job.JobPayload.CollectionName, chunks)
	if err != nil {
		return s.jobError(job, log, err)
	}

	job.JobPayload.Chunks = handle.Points
	job.CurrentStep = jobModel.Complete
	log.Info("site indexed", "pages", job.JobPayload.Pages, "chunks", handle.Points, "skipped", job.JobPayload.Skipped)
	return job
}

func (s *service) jobError(job jobModel.Job, log *logger_i.Logger, err error) jobModel.Job {
	log.Error("index job failed", "step", job.CurrentStep, "error", err)
	code, retry := adapter.StatusFor(err)
	if errors.Is(err, errNothingIndexed) {
		code, retry = http.StatusUnprocessableEntity, false
	}
	job.Error = jobModel.JobError{
		Code:    code,
		Message: err.Error(),
		Retry:   retry,
	}
	job.Status = jobModel.JobStatusError
	job.CurrentStep = jobModel.Error
	return job
}
