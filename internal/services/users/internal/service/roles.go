package service

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

type roleStore interface {
	GetRoleID(ctx context.Context, name string) (int64, error)
}

// roleCatalog caches role name to id lookups. Roles are never renamed, so entries do not expire.
type roleCatalog struct {
	cache *ristretto.Cache[string, int64]
}

func newRoleCatalog(maxKeys int64) *roleCatalog {
	c, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: maxKeys * 10,
		MaxCost:     maxKeys,
		BufferItems: 64,
		// cost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to create role catalog cache: %v", err))
	}

	return &roleCatalog{cache: c}
}

// IDs resolves role names, going to the store only for names not seen before
func (rc *roleCatalog) IDs(ctx context.Context, rs roleStore, names ...string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, found := rc.cache.Get(name); found {
			ids = append(ids, id)
			continue
		}

		id, err := rs.GetRoleID(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}

		rc.cache.Set(name, id, 1)
		ids = append(ids, id)
	}

	return ids, nil
}

func (rc *roleCatalog) Close() {
	rc.cache.Close()
}
