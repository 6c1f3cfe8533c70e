package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/data/redisStore"
	"github.com/akolanti/mirage/internal/data/store"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func init() {
	logger_i.Discard()
}

func newRedisJobStore(t *testing.T) (*miniredis.Miniredis, *redisStore.Store, *store.RedisJobStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rs := redisStore.NewStore(client)
	return mr, rs, store.NewRedisJobStore(rs)
}

func sampleJob(id string) jobModel.Job {
	return jobModel.Job{
		Id:          id,
		JobType:     jobModel.JobTypeIndexURL,
		Status:      jobModel.JobStatusRunning,
		CurrentStep: jobModel.CrawlStep,
		JobPayload: jobModel.JobPayload{
			UserID:         "alice",
			CollectionName: "docs_example_com",
			URL:            "https://docs.example.com/",
		},
	}
}

func TestRedisJobStore_Lifecycle(t *testing.T) {
	mr, rs, jobStore := newRedisJobStore(t)
	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")
	jobID := "job_abc_123"

	t.Run("Save and Get Roundtrip", func(t *testing.T) {
		if err := jobStore.SaveJob(ctx, sampleJob(jobID)); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}

		got, found := jobStore.GetJob(ctx, jobID)
		if !found {
			t.Fatal("job was saved but not found in redis")
		}
		if got.JobPayload.URL != "https://docs.example.com/" || got.CurrentStep != jobModel.CrawlStep {
			t.Errorf("data mismatch: %+v", got)
		}

		ttl := mr.TTL("job:" + jobID)
		if ttl <= 0 || ttl > config.RedisJobStoreTTL {
			t.Errorf("ttl = %v, want (0, %v]", ttl, config.RedisJobStoreTTL)
		}
	})

	t.Run("Get Non-Existent Job", func(t *testing.T) {
		if _, found := jobStore.GetJob(ctx, "ghost-id"); found {
			t.Error("expected found=false for a missing key")
		}
	})

	t.Run("Corrupt Value", func(t *testing.T) {
		if err := rs.Set(ctx, "job:broken", "{not json", time.Minute); err != nil {
			t.Fatal(err)
		}
		if _, found := jobStore.GetJob(ctx, "broken"); found {
			t.Error("expected found=false for an unreadable job")
		}
	})

	t.Run("Delete Job", func(t *testing.T) {
		jobStore.DeleteJob(ctx, jobID)
		exists, err := rs.Exists(ctx, "job:"+jobID)
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("job still exists in redis after DeleteJob")
		}
	})
}

func TestRedisJobStore_Expiry(t *testing.T) {
	mr, _, jobStore := newRedisJobStore(t)
	ctx := context.Background()

	if err := jobStore.SaveJob(ctx, sampleJob("old")); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(config.RedisJobStoreTTL + time.Second)
	if _, found := jobStore.GetJob(ctx, "old"); found {
		t.Error("job should have expired")
	}
}

func TestJobStores_Concurrent(t *testing.T) {
	_, _, redisJobs := newRedisJobStore(t)
	stores := map[string]jobModel.JobStore{
		"redis":    redisJobs,
		"inMemory": store.InitInMemoryJobStore(),
	}

	for name, js := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 50
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = js.SaveJob(ctx, sampleJob("race-job"))
					_, _ = js.GetJob(ctx, "race-job")
				}()
			}
			wg.Wait()

			if _, found := js.GetJob(ctx, "race-job"); !found {
				t.Fatal("job missing after concurrent saves")
			}
			js.DeleteJob(ctx, "race-job")
			if _, found := js.GetJob(ctx, "race-job"); found {
				t.Error("job still present after delete")
			}
		})
	}
}
