package vectorDB

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
)

// UserStore confines a shared store to one user's collections. Names are
// stored as u_<hex(user)>__<name>; hex never contains '_', so the first
// separator always ends the user part.
type UserStore struct {
	base   Store
	prefix string
}

func ForUser(base Store, userID string) *UserStore {
	return &UserStore{base: base, prefix: userPrefix(userID)}
}

// CollectionName is the name userID's collection has in the shared store.
func CollectionName(userID, name string) string {
	return userPrefix(userID) + name
}

func userPrefix(userID string) string {
	return config.UserCollectionPrefix + hex.EncodeToString([]byte(userID)) + config.UserCollectionSep
}

func (u *UserStore) full(name string) (string, error) {
	if name == "" {
		return "", commonModels.ErrEmptyCollectionName
	}
	return u.prefix + name, nil
}

func (u *UserStore) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	full, err := u.full(name)
	if err != nil {
		return err
	}
	return u.base.CreateCollection(ctx, full, vectorSize)
}

func (u *UserStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	full, err := u.full(name)
	if err != nil {
		return false, err
	}
	return u.base.CollectionExists(ctx, full)
}

// ListCollections returns only this user's collections, without the prefix.
func (u *UserStore) ListCollections(ctx context.Context) ([]string, error) {
	all, err := u.base.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, n := range all {
		if rest, ok := strings.CutPrefix(n, u.prefix); ok && rest != "" {
			names = append(names, rest)
		}
	}
	return names, nil
}

func (u *UserStore) DeleteCollection(ctx context.Context, name string) error {
	full, err := u.full(name)
	if err != nil {
		return err
	}
	return u.base.DeleteCollection(ctx, full)
}

func (u *UserStore) Upsert(ctx context.Context, name string, points []commonModels.Point) error {
	full, err := u.full(name)
	if err != nil {
		return err
	}
	return u.base.Upsert(ctx, full, points)
}

func (u *UserStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]commonModels.SearchHit, error) {
	full, err := u.full(name)
	if err != nil {
		return nil, err
	}
	return u.base.Search(ctx, full, vector, limit)
}

// ReplaceCollection swaps the collection in one step when the base store
// can, otherwise it recreates and fills it.
func (u *UserStore) ReplaceCollection(ctx context.Context, name string, vectorSize uint64, points []commonModels.Point) error {
	full, err := u.full(name)
	if err != nil {
		return err
	}
	if r, ok := u.base.(Replacer); ok {
		return r.ReplaceCollection(ctx, full, vectorSize, points)
	}
	if err := u.base.DeleteCollection(ctx, full); err != nil {
		return err
	}
	if err := u.base.CreateCollection(ctx, full, vectorSize); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	return u.base.Upsert(ctx, full, points)
}
