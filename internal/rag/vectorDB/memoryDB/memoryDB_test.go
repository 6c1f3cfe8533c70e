package memoryDB

import (
	"context"
	"errors"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
)

func TestStore_SearchOrdersByCosine(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateCollection(ctx, "t", 2); err != nil {
		t.Fatal(err)
	}
	_ = s.Upsert(ctx, "t", []commonModels.Point{
		{ID: "1", Vector: []float32{0, 1}, Payload: commonModels.Payload{Data: "up"}},
		{ID: "2", Vector: []float32{1, 0}, Payload: commonModels.Payload{Data: "right"}},
	})

	hits, err := s.Search(ctx, "t", []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Payload.Data != "right" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestStore_Errors(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateCollection(ctx, "", 2); !errors.Is(err, commonModels.ErrEmptyCollectionName) {
		t.Errorf("empty name err = %v", err)
	}
	if _, err := s.Search(ctx, "missing", []float32{1}, 1); !errors.Is(err, commonModels.ErrSourceNotFound) {
		t.Errorf("missing err = %v", err)
	}
	_ = s.CreateCollection(ctx, "c", 2)
	if _, err := s.Search(ctx, "c", []float32{1, 2, 3}, 1); !errors.Is(err, commonModels.ErrDimensionMismatch) {
		t.Errorf("dimension err = %v", err)
	}
	if err := s.DeleteCollection(ctx, "never-existed"); err != nil {
		t.Errorf("delete should be idempotent, got %v", err)
	}
}

func TestStore_Replace(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.ReplaceCollection(ctx, "r", 1, []commonModels.Point{{ID: "a", Vector: []float32{1}}, {ID: "b", Vector: []float32{1}}})
	_ = s.ReplaceCollection(ctx, "r", 1, []commonModels.Point{{ID: "c", Vector: []float32{1}}})
	if n := s.Len("r"); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}
