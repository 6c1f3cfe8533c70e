package jobModel

import (
	"context"
	"time"
)

type JobStatus string
type InternalStatus string

type JobType string

const (
	JobStatusQueued   JobStatus = "QUEUED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusError    JobStatus = "Error"

	IndexInit     InternalStatus = "Init"
	CrawlStep     InternalStatus = "Crawl"
	ChunkStep     InternalStatus = "Chunk"
	EmbeddingStep InternalStatus = "Embedding"
	VectorDBStep  InternalStatus = "VectorDB"
	Error         InternalStatus = "Error"

	Complete InternalStatus = "Complete"

	JobTypeIndexURL JobType = "IndexURL"
)

type Job struct {
	Id          string         `json:"id"`
	TraceId     string         `json:"trace_id"`
	JobType     JobType        `json:"job_type"`
	JobPayload  JobPayload     `json:"job_payload"`
	Error       JobError       `json:"error,omitempty"`
	CreatedTime time.Time      `json:"created_time"`
	EndTime     time.Time      `json:"end_time,omitempty"`
	Status      JobStatus      `json:"status"`
	CurrentStep InternalStatus `json:"current_step"`
}

type JobError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// JobPayload carries the request in and the counts out.
type JobPayload struct {
	UserID         string `json:"user_id"`
	CollectionName string `json:"collection_name"`
	URL            string `json:"url"`
	MaxPages       int    `json:"max_pages,omitempty"`

	Pages   int `json:"pages,omitempty"`
	Chunks  int `json:"chunks,omitempty"`
	Skipped int `json:"skipped,omitempty"`
}

type JobStore interface {
	GetJob(ctx context.Context, jobId string) (Job, bool)
	SaveJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, jobID string)
}
