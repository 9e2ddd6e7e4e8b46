package clustercache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/repo"
)

// Reader serves cluster lookups through an expirable LRU. Suggestion and
// conflict detection hit the same few clusters repeatedly per request, so a
// small cache spares the matrix decode. Cached clusters must be treated as
// read-only.
type Reader struct {
	clusters *repo.TextClusterRepo
	lru      *expirable.LRU[string, *model.TextCluster]
}

func NewReader(clusters *repo.TextClusterRepo, size int, ttl time.Duration) *Reader {
	return &Reader{
		clusters: clusters,
		lru:      expirable.NewLRU[string, *model.TextCluster](size, nil, ttl),
	}
}

func (r *Reader) Get(ctx context.Context, clusterID string) (*model.TextCluster, error) {
	if cluster, ok := r.lru.Get(clusterID); ok {
		return cluster, nil
	}
	cluster, err := r.clusters.GetByID(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	r.lru.Add(clusterID, cluster)
	return cluster, nil
}

func (r *Reader) Invalidate(clusterID string) {
	r.lru.Remove(clusterID)
}

// Purge drops every cached cluster; ingestion calls this after replacing an
// exercise's clusters wholesale.
func (r *Reader) Purge() {
	r.lru.Purge()
}
