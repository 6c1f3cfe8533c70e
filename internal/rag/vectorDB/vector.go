package vectorDB

import (
	"context"
	"math"
	"sort"

	"github.com/akolanti/mirage/internal/domain/commonModels"
)

// Store is a vector store holding named collections of points.
// Local, remote and transient stores all satisfy it.
type Store interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)
	// DeleteCollection succeeds when the collection is already gone.
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, points []commonModels.Point) error
	Search(ctx context.Context, name string, vector []float32, limit int) ([]commonModels.SearchHit, error)
}

// Replacer is implemented by stores that can swap a whole collection in one
// step, so readers never see it half populated.
type Replacer interface {
	ReplaceCollection(ctx context.Context, name string, vectorSize uint64, points []commonModels.Point) error
}

// Cosine returns the cosine similarity of a and b, 0 for zero vectors.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// TopHits scores every point against query and keeps the best limit.
// Callers must have checked dimensions already.
func TopHits(points []commonModels.Point, query []float32, limit int) []commonModels.SearchHit {
	hits := make([]commonModels.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, commonModels.SearchHit{Score: Cosine(query, p.Vector), Payload: p.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
