package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/mirage/internal/api"
	"github.com/akolanti/mirage/internal/data/store"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/handlers"
	"github.com/akolanti/mirage/internal/job"
	"github.com/akolanti/mirage/internal/rag"
	"github.com/akolanti/mirage/internal/rag/backend"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/ingest"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/mirage/internal/worker"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret-token"

func init() {
	logger_i.Discard()
}

type axisEmbedder struct{}

func (axisEmbedder) GetEmbedding(_ context.Context, q string) ([]float32, error) {
	return axis(q), nil
}

func (axisEmbedder) BatchEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = axis(t)
	}
	return out, nil
}

func axis(s string) []float32 {
	s = strings.ToLower(s)
	v := []float32{0.1, 0.1}
	if strings.Contains(s, "cat") {
		v[0] = 1
	}
	if strings.Contains(s, "dog") {
		v[1] = 1
	}
	return v
}

type MockProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	OnStream func(ctx context.Context, req llm.Request, sink llm.Sink) (string, error)
}

func (m *MockProvider) Stream(ctx context.Context, req llm.Request, sink llm.Sink) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	onStream := m.OnStream
	m.mu.Unlock()
	if onStream != nil {
		return onStream(ctx, req, sink)
	}
	sink("Hello, ")
	sink("world")
	return "Hello, world", nil
}

func (m *MockProvider) setOnStream(fn func(ctx context.Context, req llm.Request, sink llm.Sink) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OnStream = fn
}

func (m *MockProvider) seen() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

type fixture struct {
	srv      *httptest.Server
	store    *memoryDB.Store
	provider *MockProvider
	jobs     *store.InMemoryJobStore
}

func siteLoader(_ context.Context, _ ingest.Kind, target string, _ int) ([]commonModels.Document, []ingest.Skipped, error) {
	return []commonModels.Document{
		{SourceID: target + "/cats", Text: "Cats sleep sixteen hours a day."},
		{SourceID: target + "/dogs", Text: "Dogs enjoy long walks."},
	}, nil, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("MIRAGE_API_TOKEN", testToken)
	t.Setenv("MIRAGE_NO_AUTH", "")

	f := &fixture{
		store:    memoryDB.New(),
		provider: &MockProvider{},
		jobs:     store.InitInMemoryJobStore(),
	}
	service := job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.Job, 10),
		DispatcherChannel: make(chan bool, 1),
		JobStore:          f.jobs,
	})
	index := rag.NewService(f.store, axisEmbedder{}, chunker.New(100, chunker.WordCounter{}), rag.WithLoader(siteLoader))

	stop := make(chan bool)
	wg := &sync.WaitGroup{}
	worker.NewPool(service, index).Start(stop, wg)
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
	})

	h := handlers.New(handlers.Config{
		Store:    f.store,
		Embedder: axisEmbedder{},
		Provider: f.provider,
		Jobs:     handlers.NewJobHandler(service),
	})
	f.srv = httptest.NewServer(NewRouter(h))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) client(user string) *backend.RemoteClient {
	return backend.NewRemoteClient(f.srv.URL, user, testToken)
}

func (f *fixture) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	var e api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func TestCollections_RoundTripThroughClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.client("alice")

	points := []commonModels.Point{
		{ID: "7f9d1a3e-0000-4000-8000-000000000001", Vector: []float32{1, 0.1}, Payload: commonModels.Payload{Data: "cats purr", Source: "pets.txt"}},
		{ID: "7f9d1a3e-0000-4000-8000-000000000002", Vector: []float32{0.1, 1}, Payload: commonModels.Payload{Data: "dogs bark", Source: "pets.txt"}},
	}
	require.NoError(t, alice.ReplaceCollection(ctx, "pets", 2, points))

	names, err := alice.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pets"}, names)
	assert.Equal(t, 2, f.store.Len(vectorDB.CollectionName("alice", "pets")))

	ok, err := alice.CollectionExists(ctx, "pets")
	require.NoError(t, err)
	assert.True(t, ok)

	hits, err := alice.Search(ctx, "pets", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "cats purr", hits[0].Payload.Data)

	// other users never see alice's collections
	bob := f.client("bob")
	names, err = bob.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	_, err = bob.Search(ctx, "pets", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, commonModels.ErrSourceNotFound)

	_, err = alice.Search(ctx, "pets", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, commonModels.ErrDimensionMismatch)

	require.NoError(t, alice.DeleteCollection(ctx, "pets"))
	require.NoError(t, alice.DeleteCollection(ctx, "pets"), "deleting twice is fine")
	ok, err = alice.CollectionExists(ctx, "pets")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbedAndChatStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client("alice")

	vectors, err := c.BatchEmbedding(ctx, []string{"a cat", "a dog"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0.1}, {0.1, 1}}, vectors)

	var fragments []string
	reply, err := c.Stream(ctx, llm.Request{
		Model:    "gpt-4o-mini",
		Messages: []commonModels.ChatTurn{{Role: commonModels.RoleUser, Content: "hi"}},
	}, func(s string) { fragments = append(fragments, s) })
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", reply)
	assert.Equal(t, "Hello, world", strings.Join(fragments, ""))
	seen := f.provider.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "gpt-4o-mini", seen[0].Model)

	f.provider.setOnStream(func(context.Context, llm.Request, llm.Sink) (string, error) {
		return "", commonModels.ErrRemoteUnavailable
	})
	_, err = c.Stream(ctx, llm.Request{Messages: []commonModels.ChatTurn{{Role: commonModels.RoleUser, Content: "hi"}}}, nil)
	assert.ErrorIs(t, err, commonModels.ErrRemoteUnavailable)
}

func TestIndexURL_Job(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client("alice")

	queued, err := c.IndexURL(ctx, "pet_site", "https://pets.example.com/", 0)
	require.NoError(t, err)
	require.NotEmpty(t, queued.Id)
	assert.Equal(t, "/v1/status/"+queued.Id, queued.StatusURL)

	var status api.JobResponse
	require.Eventually(t, func() bool {
		status, err = c.JobStatus(ctx, queued.Id)
		return err == nil && status.Result.Status == string(jobModel.JobStatusComplete)
	}, 5*time.Second, 100*time.Millisecond)

	assert.Nil(t, status.Error)
	assert.Equal(t, "pet_site", status.CollectionName)
	assert.Equal(t, 2, status.Result.Pages)
	assert.Equal(t, 2, status.Result.Chunks)
	assert.Equal(t, 2, f.store.Len(vectorDB.CollectionName("alice", "pet_site")))

	_, err = c.JobStatus(ctx, "no-such-job")
	assert.ErrorIs(t, err, commonModels.ErrSourceNotFound)
}

func TestAuthAndValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/collections/list", "", api.UserRequest{UserID: "alice"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, decodeError(t, resp).Code)

	resp = f.post(t, "/v1/collections/list", "wrong", api.UserRequest{UserID: "alice"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err := backend.NewRemoteClient(f.srv.URL, "alice", "wrong").ListCollections(context.Background())
	assert.ErrorIs(t, err, commonModels.ErrUnauthorized)

	tests := []struct {
		name string
		path string
		body any
		want string
	}{
		{"missing user", "/v1/collections/list", api.UserRequest{}, "user_id"},
		{"control character in user id", "/v1/collections/list", api.UserRequest{UserID: "al\nice"}, "user_id"},
		{"no texts", "/v1/embed", api.EmbedRequest{}, "texts"},
		{"bad url", "/v1/index", api.IndexURLRequest{UserID: "alice", CollectionName: "x", URL: "ftp://example.com"}, "url"},
		{"size mismatch", "/v1/collections/create", api.CreateCollectionRequest{
			UserID: "alice", CollectionName: "x", VectorSize: 3,
			Points: []commonModels.Point{{ID: "1", Vector: []float32{1, 0}}},
		}, "dimension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.path, testToken, tt.body)
			assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnprocessableEntity}, resp.StatusCode)
			assert.Contains(t, decodeError(t, resp).Message, tt.want)
		})
	}

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/v1/embed", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
}

func TestMetricsAndHealthAreOpen(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/metrics", "/healthz"} {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
