package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/google/uuid"
)

// CacheRefresher is told about every create and delete.
type CacheRefresher interface {
	RefreshCache(ctx context.Context) error
}

type CollectionHandle struct {
	Name       string
	VectorSize uint64
	Points     int
	Location   commonModels.Location
}

type Indexer struct {
	store     vectorDB.Store
	embedder  embedding.Embedder
	registry  CacheRefresher
	location  commonModels.Location
	batchSize int
	logger    *logger_i.Logger
}

type Option func(*Indexer)

func WithBatchSize(n int) Option {
	return func(i *Indexer) { i.batchSize = n }
}

func WithRegistry(r CacheRefresher) Option {
	return func(i *Indexer) { i.registry = r }
}

func New(store vectorDB.Store, embedder embedding.Embedder, location commonModels.Location, opts ...Option) *Indexer {
	i := &Indexer{
		store:    store,
		embedder: embedder,
		location: location,
		logger:   logger_i.NewLogger("Indexer").With("location", string(location)),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// CreateOrReplaceCollection embeds every chunk first and only then replaces
// the collection, so an embedding failure leaves the old one untouched.
func (i *Indexer) CreateOrReplaceCollection(ctx context.Context, name string, chunks []commonModels.Chunk) (CollectionHandle, error) {
	log := i.logger.WithTrace(ctx).With("collection", name)
	if name == "" {
		return CollectionHandle{}, commonModels.ErrEmptyCollectionName
	}
	if len(chunks) == 0 {
		return CollectionHandle{}, fmt.Errorf("%s: nothing to index", name)
	}
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("indexing", time.Since(start)) }()

	texts := make([]string, len(chunks))
	for k, c := range chunks {
		texts[k] = c.Text
	}
	log.Info("embedding chunks", "count", len(texts))
	vectors, err := embedding.EmbedInBatches(ctx, i.embedder, texts, i.batchSize)
	if err != nil {
		return CollectionHandle{}, fmt.Errorf("indexing %s: %w", name, err)
	}

	size := uint64(len(vectors[0]))
	points := make([]commonModels.Point, len(chunks))
	for k, c := range chunks {
		if uint64(len(vectors[k])) != size {
			return CollectionHandle{}, fmt.Errorf("indexing %s: chunk %d has %d dimensions, expected %d: %w", name, k, len(vectors[k]), size, commonModels.ErrDimensionMismatch)
		}
		points[k] = commonModels.Point{
			ID:      uuid.NewString(),
			Vector:  vectors[k],
			Payload: commonModels.Payload{Data: c.Text, Source: c.SourceID},
		}
	}

	if err := i.replace(ctx, name, size, points); err != nil {
		return CollectionHandle{}, fmt.Errorf("writing %s: %w", name, err)
	}
	metrics.AddChunksIndexed(string(i.location), len(points))
	log.Info("collection indexed", "points", len(points), "vectorSize", size)

	i.refresh(ctx)
	return CollectionHandle{Name: name, VectorSize: size, Points: len(points), Location: i.location}, nil
}

func (i *Indexer) replace(ctx context.Context, name string, size uint64, points []commonModels.Point) error {
	if r, ok := i.store.(vectorDB.Replacer); ok {
		return r.ReplaceCollection(ctx, name, size, points)
	}
	if err := i.store.DeleteCollection(ctx, name); err != nil {
		return err
	}
	if err := i.store.CreateCollection(ctx, name, size); err != nil {
		return err
	}
	return i.store.Upsert(ctx, name, points)
}

func (i *Indexer) CollectionExists(ctx context.Context, name string) (bool, error) {
	return i.store.CollectionExists(ctx, name)
}

// DeleteCollection removes name; a missing collection is not an error.
func (i *Indexer) DeleteCollection(ctx context.Context, name string) error {
	if err := i.store.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	i.logger.WithTrace(ctx).Info("collection deleted", "collection", name)
	i.refresh(ctx)
	return nil
}

func (i *Indexer) refresh(ctx context.Context) {
	if i.registry == nil {
		return
	}
	if err := i.registry.RefreshCache(ctx); err != nil {
		i.logger.WithTrace(ctx).Warn("source cache refresh failed", "error", err)
	}
}
