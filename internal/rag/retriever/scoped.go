package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
	"github.com/google/uuid"
)

// scopedCollection is a throwaway collection in the scratch store. Close
// must be called on every path; it is safe to call twice.
type scopedCollection struct {
	store *memoryDB.Store
	name  string
}

func newScopedCollection(ctx context.Context, store *memoryDB.Store, e embedding.Embedder, chunks []commonModels.Chunk) (*scopedCollection, error) {
	if len(chunks) == 0 {
		return nil, errors.New("transient content is empty")
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.EmbedInBatches(ctx, e, texts, config.EmbeddingBatchSize)
	if err != nil {
		return nil, fmt.Errorf("embedding transient content: %w", err)
	}

	points := make([]commonModels.Point, len(chunks))
	for i, c := range chunks {
		points[i] = commonModels.Point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: commonModels.Payload{Data: c.Text, Source: c.SourceID},
		}
	}
	s := &scopedCollection{store: store, name: "transient-" + uuid.NewString()}
	if err := store.ReplaceCollection(ctx, s.name, uint64(len(vectors[0])), points); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *scopedCollection) Search(ctx context.Context, vec []float32, limit int) ([]commonModels.SearchHit, error) {
	return s.store.Search(ctx, s.name, vec, limit)
}

func (s *scopedCollection) Close() {
	_ = s.store.DeleteCollection(context.Background(), s.name)
}
