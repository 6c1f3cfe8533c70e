package rag_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/rag"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/ingest"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/mirage/pkg/logger_i"
)

func init() {
	logger_i.Discard()
}

type MockEmbedder struct {
	OnBatchEmbedding func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	v, err := m.BatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *MockEmbedder) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if m.OnBatchEmbedding != nil {
		return m.OnBatchEmbedding(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func pages(docs ...string) rag.Loader {
	return func(ctx context.Context, kind ingest.Kind, target string, maxPages int) ([]commonModels.Document, []ingest.Skipped, error) {
		if kind != ingest.KindURL {
			return nil, nil, errors.New("expected a url crawl")
		}
		out := make([]commonModels.Document, len(docs))
		for i, d := range docs {
			out[i] = commonModels.Document{SourceID: target + "#" + d, Text: d, DocType: "html"}
		}
		return out, []ingest.Skipped{{Path: target + "/broken", Reason: "404"}}, nil
	}
}

func indexJob() jobModel.Job {
	return jobModel.Job{
		Id:      "index-job-1",
		JobType: jobModel.JobTypeIndexURL,
		JobPayload: jobModel.JobPayload{
			UserID:         "alice",
			CollectionName: "docs",
			URL:            "https://docs.example.com",
			MaxPages:       5,
		},
	}
}

func TestIndexURL_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		loader     rag.Loader
		embedder   *MockEmbedder
		wantStatus jobModel.JobStatus
		wantStep   jobModel.InternalStatus
		wantCode   int
		wantChunks int
	}{
		{
			name:       "Success",
			loader:     pages("Install the tool.", "Configure the tool."),
			embedder:   &MockEmbedder{},
			wantStep:   jobModel.Complete,
			wantChunks: 2,
		},
		{
			name: "Failure_Crawl",
			loader: func(context.Context, ingest.Kind, string, int) ([]commonModels.Document, []ingest.Skipped, error) {
				return nil, nil, errors.New("dial tcp: refused")
			},
			embedder:   &MockEmbedder{},
			wantStatus: jobModel.JobStatusError,
			wantStep:   jobModel.Error,
			wantCode:   http.StatusInternalServerError,
		},
		{
			name:       "Failure_No_Pages",
			loader:     pages(),
			embedder:   &MockEmbedder{},
			wantStatus: jobModel.JobStatusError,
			wantStep:   jobModel.Error,
			wantCode:   http.StatusUnprocessableEntity,
		},
		{
			name:   "Failure_Embedding",
			loader: pages("Install the tool."),
			embedder: &MockEmbedder{OnBatchEmbedding: func(context.Context, []string) ([][]float32, error) {
				return nil, commonModels.ErrRemoteUnavailable
			}},
			wantStatus: jobModel.JobStatusError,
			wantStep:   jobModel.Error,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memoryDB.New()
			s := rag.NewService(store, tt.embedder, chunker.New(100, chunker.WordCounter{}), rag.WithLoader(tt.loader))

			var steps []jobModel.InternalStatus
			ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "index-trace")
			result := s.IndexURL(ctx, indexJob(), func(j jobModel.Job) { steps = append(steps, j.CurrentStep) })

			if result.Status != tt.wantStatus {
				t.Errorf("status got %q, want %q", result.Status, tt.wantStatus)
			}
			if result.CurrentStep != tt.wantStep {
				t.Errorf("step got %q, want %q", result.CurrentStep, tt.wantStep)
			}
			if result.Error.Code != tt.wantCode {
				t.Errorf("error code got %d, want %d (%s)", result.Error.Code, tt.wantCode, result.Error.Message)
			}
			if len(steps) == 0 || steps[0] != jobModel.CrawlStep {
				t.Errorf("steps = %v", steps)
			}
			if tt.wantChunks > 0 {
				if result.JobPayload.Chunks != tt.wantChunks || store.Len(vectorDB.CollectionName("alice", "docs")) != tt.wantChunks {
					t.Errorf("chunks got %d (stored %d), want %d", result.JobPayload.Chunks, store.Len(vectorDB.CollectionName("alice", "docs")), tt.wantChunks)
				}
				if result.JobPayload.Pages != 2 || result.JobPayload.Skipped != 1 {
					t.Errorf("pages/skipped = %d/%d", result.JobPayload.Pages, result.JobPayload.Skipped)
				}
			}
		})
	}
}
