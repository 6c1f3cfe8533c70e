package retriever

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/assembler"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/registry"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/mirage/pkg/logger_i"
)

func init() {
	logger_i.Discard()
}

type MockEmbedder struct {
	OnBatch func(ctx context.Context, texts []string) ([][]float32, error)
	calls   atomic.Int32
}

func (m *MockEmbedder) GetEmbedding(ctx context.Context, q string) ([]float32, error) {
	v, err := m.BatchEmbedding(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *MockEmbedder) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	return m.OnBatch(ctx, texts)
}

// keywordEmbedder places text on a "cat" axis and a "dog" axis.
func keywordEmbedder() *MockEmbedder {
	return &MockEmbedder{OnBatch: func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			v := []float32{0.1, 0.1}
			if strings.Contains(s, "cat") {
				v[0] = 1
			}
			if strings.Contains(s, "dog") {
				v[1] = 1
			}
			out[i] = v
		}
		return out, nil
	}}
}

type fixture struct {
	local, remote *memoryDB.Store
	embedder      *MockEmbedder
	retriever     *Retriever
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{local: memoryDB.New(), remote: memoryDB.New(), embedder: keywordEmbedder()}

	_ = f.local.CreateCollection(ctx, "local_notes", 2)
	_ = f.local.Upsert(ctx, "local_notes", []commonModels.Point{
		{ID: "1", Vector: []float32{1, 0.1}, Payload: commonModels.Payload{Data: "cats are mammals", Source: "local_notes"}},
	})
	_ = f.remote.CreateCollection(ctx, "web_docs", 2)
	_ = f.remote.Upsert(ctx, "web_docs", []commonModels.Point{
		{ID: "2", Vector: []float32{0.1, 1}, Payload: commonModels.Payload{Data: "dogs are mammals", Source: "web_docs"}},
	})
	// built with a different embedding backend
	_ = f.remote.CreateCollection(ctx, "old_docs", 3)

	reg := registry.New(f.local, f.remote, nil)
	f.retriever = New(reg,
		&Target{Store: f.local, Embedder: f.embedder},
		&Target{Store: f.remote, Embedder: f.embedder},
		f.embedder,
		chunker.New(5, chunker.WordCounter{}),
		cfg)
	return f
}

func TestRetrieve_CrossSourceScenario(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.retriever.Retrieve(context.Background(), Query{
		Text:    "are cats mammals?",
		Sources: []string{"local_notes", "web_docs"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 2 || len(res.Failures) != 0 {
		t.Fatalf("result = %+v", res)
	}

	text, cited := assembler.BuildContext(assembler.Rank(res.Hits, 10))
	if cited[0] != "local_notes" {
		t.Errorf("cited = %v", cited)
	}
	if !strings.HasPrefix(text, "local_notes: cats are mammals") || !strings.Contains(text, "web_docs: dogs are mammals") {
		t.Errorf("context = %q", text)
	}
}

func TestRetrieve_UnknownSourceRejected(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.retriever.Retrieve(context.Background(), Query{Text: "q", Sources: []string{"local_notes", "typo"}})

	var invalid *commonModels.InvalidSourceError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidSourceError", err)
	}
	if invalid.Unknown[0] != "typo" {
		t.Errorf("unknown = %v", invalid.Unknown)
	}
}

func TestRetrieve_DimensionMismatchIsReportedPerSource(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.retriever.Retrieve(context.Background(), Query{Text: "cat", Sources: []string{"old_docs", "local_notes"}})
	if err != nil {
		t.Fatalf("partial failure should not abort: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Source != "old_docs" {
		t.Fatalf("failures = %+v", res.Failures)
	}
	if !errors.Is(res.Failures[0].Err, commonModels.ErrDimensionMismatch) {
		t.Errorf("failure err = %v", res.Failures[0].Err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Payload.Source != "local_notes" {
		t.Errorf("hits = %+v", res.Hits)
	}
}

func TestRetrieve_AllSourcesFailed(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.retriever.Retrieve(context.Background(), Query{Text: "cat", Sources: []string{"old_docs"}})
	if !errors.Is(err, commonModels.ErrNoSources) {
		t.Errorf("err = %v, want ErrNoSources", err)
	}
	if !errors.Is(err, commonModels.ErrDimensionMismatch) {
		t.Errorf("err should carry the cause: %v", err)
	}
}

func TestRetrieve_DedupesSources(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.retriever.Retrieve(context.Background(), Query{Text: "cat", Sources: []string{"local_notes", "local_notes"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sources) != 1 || len(res.Hits) != 1 {
		t.Errorf("duplicate source searched twice: %+v", res.Sources)
	}
}

func TestRetrieve_MissingRemoteTarget(t *testing.T) {
	f := newFixture(t, Config{})
	r := New(registry.New(f.local, f.remote, nil), &Target{Store: f.local, Embedder: f.embedder}, nil, nil, chunker.New(5, chunker.WordCounter{}), Config{})
	res, err := r.Retrieve(context.Background(), Query{Text: "cat", Sources: []string{"local_notes", "web_docs"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Source != "web_docs" {
		t.Errorf("failures = %+v", res.Failures)
	}
}

func TestRetrieve_SmallTransientIsVerbatim(t *testing.T) {
	f := newFixture(t, Config{TransientTokenBudget: 100})
	doc := commonModels.Document{SourceID: "notes.txt", Text: "my cat is called Tom."}
	res, err := f.retriever.Retrieve(context.Background(), Query{Text: "cat name?", Transient: []commonModels.Document{doc}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Verbatim) != 1 || len(res.Hits) != 0 {
		t.Errorf("result = %+v", res)
	}
	if f.embedder.calls.Load() != 0 {
		t.Errorf("verbatim path should not embed, calls = %d", f.embedder.calls.Load())
	}
}

func TestRetrieve_LargeTransientIsSearchedAndDropped(t *testing.T) {
	f := newFixture(t, Config{TransientTokenBudget: 5, TopK: 1})
	doc := commonModels.Document{
		SourceID: "big.txt",
		Text:     "The dog sleeps all day long. My cat hunts mice at night. Birds sing in the morning sun.",
	}
	res, err := f.retriever.Retrieve(context.Background(), Query{Text: "cat", Transient: []commonModels.Document{doc}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Verbatim) != 0 {
		t.Error("over budget content returned verbatim")
	}
	if len(res.Hits) != 1 || !strings.Contains(res.Hits[0].Payload.Data, "cat") {
		t.Errorf("hits = %+v", res.Hits)
	}
	names, _ := f.retriever.scratch.ListCollections(context.Background())
	if len(names) != 0 {
		t.Errorf("transient collection leaked: %v", names)
	}
}

func TestRetrieve_NothingRequested(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.retriever.Retrieve(context.Background(), Query{Text: "hello"})
	if err != nil || len(res.Hits) != 0 {
		t.Errorf("res = %+v, err = %v", res, err)
	}
}
