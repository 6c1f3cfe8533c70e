package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/mirage/pkg/logger_i"
)

func init() {
	logger_i.Discard()
}

type MockEmbedder struct {
	OnBatch func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) GetEmbedding(ctx context.Context, q string) ([]float32, error) {
	v, err := m.OnBatch(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *MockEmbedder) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return m.OnBatch(ctx, texts)
}

// keywordEmbedder maps text onto two axes, "cat" and "dog".
func keywordEmbedder() *MockEmbedder {
	return &MockEmbedder{OnBatch: func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			v := []float32{0.01, 0.01}
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

type refreshCounter struct{ n int }

func (r *refreshCounter) RefreshCache(context.Context) error {
	r.n++
	return nil
}

func chunks(source string, texts ...string) []commonModels.Chunk {
	out := make([]commonModels.Chunk, len(texts))
	for i, t := range texts {
		out[i] = commonModels.Chunk{Text: t, SourceID: source}
	}
	return out
}

func TestCreateOrReplace_ReplacesContent(t *testing.T) {
	ctx := context.Background()
	store := memoryDB.New()
	reg := &refreshCounter{}
	idx := New(store, keywordEmbedder(), commonModels.LocationLocal, WithRegistry(reg), WithBatchSize(1))

	if _, err := idx.CreateOrReplaceCollection(ctx, "X", chunks("a.txt", "cats purr", "cats nap")); err != nil {
		t.Fatal(err)
	}
	h, err := idx.CreateOrReplaceCollection(ctx, "X", chunks("b.txt", "dogs bark"))
	if err != nil {
		t.Fatal(err)
	}
	if h.Points != 1 || h.VectorSize != 2 {
		t.Errorf("handle = %+v", h)
	}
	if reg.n != 2 {
		t.Errorf("registry refreshed %d times, want 2", reg.n)
	}

	hits, err := store.Search(ctx, "X", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Payload.Data != "dogs bark" || hits[0].Payload.Source != "b.txt" {
		t.Errorf("residual chunks after reindex: %+v", hits)
	}
}

func TestCreateOrReplace_EmbeddingFailureKeepsOld(t *testing.T) {
	ctx := context.Background()
	store := memoryDB.New()
	idx := New(store, keywordEmbedder(), commonModels.LocationLocal)
	if _, err := idx.CreateOrReplaceCollection(ctx, "X", chunks("a", "cats")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("embedding backend down")
	failing := New(store, &MockEmbedder{OnBatch: func(context.Context, []string) ([][]float32, error) { return nil, boom }}, commonModels.LocationLocal)
	if _, err := failing.CreateOrReplaceCollection(ctx, "X", chunks("b", "dogs")); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if store.Len("X") != 1 {
		t.Errorf("old collection touched, len = %d", store.Len("X"))
	}
}

func TestCreateOrReplace_AssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	store := memoryDB.New()
	idx := New(store, keywordEmbedder(), commonModels.LocationLocal)
	if _, err := idx.CreateOrReplaceCollection(ctx, "ids", chunks("s", "cat one", "cat two", "cat three")); err != nil {
		t.Fatal(err)
	}
	if store.Len("ids") != 3 {
		t.Errorf("points collapsed, len = %d", store.Len("ids"))
	}
}

func TestCreateOrReplace_RejectsEmpty(t *testing.T) {
	idx := New(memoryDB.New(), keywordEmbedder(), commonModels.LocationLocal)
	if _, err := idx.CreateOrReplaceCollection(context.Background(), "", chunks("s", "x")); !errors.Is(err, commonModels.ErrEmptyCollectionName) {
		t.Errorf("empty name err = %v", err)
	}
	if _, err := idx.CreateOrReplaceCollection(context.Background(), "n", nil); err == nil {
		t.Error("expected error for no chunks")
	}
}

func TestDeleteCollection_Idempotent(t *testing.T) {
	ctx := context.Background()
	reg := &refreshCounter{}
	idx := New(memoryDB.New(), keywordEmbedder(), commonModels.LocationLocal, WithRegistry(reg))
	_, _ = idx.CreateOrReplaceCollection(ctx, "gone", chunks("s", "cat"))

	for i := 0; i < 2; i++ {
		if err := idx.DeleteCollection(ctx, "gone"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if ok, _ := idx.CollectionExists(ctx, "gone"); ok {
		t.Error("collection still exists")
	}
	if reg.n != 3 {
		t.Errorf("refreshes = %d, want 3", reg.n)
	}
}
