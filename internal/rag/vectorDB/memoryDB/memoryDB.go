package memoryDB

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
)

type collection struct {
	size   uint64
	points map[string]commonModels.Point
}

// Store keeps collections in process memory. It backs transient sources
// and tests.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) CreateCollection(_ context.Context, name string, vectorSize uint64) error {
	if name == "" {
		return commonModels.ErrEmptyCollectionName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	s.collections[name] = &collection{size: vectorSize, points: make(map[string]commonModels.Point)}
	return nil
}

func (s *Store) ReplaceCollection(_ context.Context, name string, vectorSize uint64, points []commonModels.Point) error {
	if name == "" {
		return commonModels.ErrEmptyCollectionName
	}
	c := &collection{size: vectorSize, points: make(map[string]commonModels.Point, len(points))}
	for _, p := range points {
		if uint64(len(p.Vector)) != vectorSize {
			return fmt.Errorf("point %s: %w", p.ID, commonModels.ErrDimensionMismatch)
		}
		c.points[p.ID] = p
	}
	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
	return nil
}

func (s *Store) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Store) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, points []commonModels.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, commonModels.ErrSourceNotFound)
	}
	for _, p := range points {
		if uint64(len(p.Vector)) != c.size {
			return fmt.Errorf("point %s: %w", p.ID, commonModels.ErrDimensionMismatch)
		}
		c.points[p.ID] = p
	}
	return nil
}

func (s *Store) Search(_ context.Context, name string, vector []float32, limit int) ([]commonModels.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, commonModels.ErrSourceNotFound)
	}
	if uint64(len(vector)) != c.size {
		return nil, fmt.Errorf("%s expects %d dimensions, query has %d: %w", name, c.size, len(vector), commonModels.ErrDimensionMismatch)
	}
	points := make([]commonModels.Point, 0, len(c.points))
	for _, p := range c.points {
		points = append(points, p)
	}
	// map order is random, keep ties deterministic
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return vectorDB.TopHits(points, vector, limit), nil
}

// Len reports the number of points in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}
