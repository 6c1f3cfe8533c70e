package vectorDB_test

import (
	"context"
	"errors"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
)

func TestUserStore_IsolatesUsers(t *testing.T) {
	ctx := context.Background()
	base := memoryDB.New()
	alice := vectorDB.ForUser(base, "alice")
	bob := vectorDB.ForUser(base, "bob")

	points := []commonModels.Point{{ID: "1", Vector: []float32{1, 0}, Payload: commonModels.Payload{Data: "alice's notes", Source: "a.txt"}}}
	if err := alice.ReplaceCollection(ctx, "notes", 2, points); err != nil {
		t.Fatal(err)
	}

	if ok, _ := base.CollectionExists(ctx, vectorDB.CollectionName("alice", "notes")); !ok {
		t.Fatal("expected the prefixed collection in the base store")
	}

	names, err := alice.ListCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "notes" {
		t.Errorf("alice sees %v", names)
	}

	names, _ = bob.ListCollections(ctx)
	if len(names) != 0 {
		t.Errorf("bob should see nothing, got %v", names)
	}
	if _, err := bob.Search(ctx, "notes", []float32{1, 0}, 5); !errors.Is(err, commonModels.ErrSourceNotFound) {
		t.Errorf("bob search err = %v", err)
	}

	hits, err := alice.Search(ctx, "notes", []float32{1, 0}, 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits = %v, err = %v", hits, err)
	}

	if err := alice.DeleteCollection(ctx, "notes"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := alice.CollectionExists(ctx, "notes"); ok {
		t.Error("collection should be gone")
	}
}

func TestUserStore_EmptyName(t *testing.T) {
	u := vectorDB.ForUser(memoryDB.New(), "alice")
	if err := u.CreateCollection(context.Background(), "", 2); !errors.Is(err, commonModels.ErrEmptyCollectionName) {
		t.Errorf("err = %v", err)
	}
}

func TestUserStore_UnderscoreSuffixedUsersStayApart(t *testing.T) {
	ctx := context.Background()
	base := memoryDB.New()
	owner := vectorDB.ForUser(base, "alice_")
	other := vectorDB.ForUser(base, "alice")

	points := []commonModels.Point{{ID: "1", Vector: []float32{1, 0}, Payload: commonModels.Payload{Data: "private", Source: "s"}}}
	if err := owner.ReplaceCollection(ctx, "secret", 2, points); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"secret", "_secret"} {
		if _, err := other.Search(ctx, name, []float32{1, 0}, 5); !errors.Is(err, commonModels.ErrSourceNotFound) {
			t.Errorf("search %q from alice: err = %v", name, err)
		}
	}
	names, err := other.ListCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("alice sees %v", names)
	}
	if err := other.DeleteCollection(ctx, "_secret"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := owner.CollectionExists(ctx, "secret"); !ok {
		t.Error("alice_'s collection was removed by alice")
	}
}

func TestCollectionName_Distinct(t *testing.T) {
	pairs := [][2]string{{"alice", "alice_"}, {"a", "a_"}, {"a__b", "a"}, {"", "_"}}
	for _, p := range pairs {
		if vectorDB.CollectionName(p[0], "_x") == vectorDB.CollectionName(p[1], "x") ||
			vectorDB.CollectionName(p[1], "_x") == vectorDB.CollectionName(p[0], "x") {
			t.Errorf("users %q and %q collide", p[0], p[1])
		}
	}
}
