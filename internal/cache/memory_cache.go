package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/permaweb/cu-core/internal/engine"
)

// MemoryCache is an in-process Cache implementation backed by a mutex
// and per-process sorted slices. It implements the exact same
// write-once contract as LevelDBCache and is used by the evaluator's
// own unit tests and by the CLI when no cache directory is configured,
// where spinning up a leveldb directory is unnecessary overhead.
type MemoryCache struct {
	mu   sync.Mutex
	recs map[string][]engine.EvaluationRecord // sorted by SortKey, per processId
}

// NewMemoryCache constructs an empty in-memory Cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{recs: make(map[string][]engine.EvaluationRecord)}
}

var _ engine.Cache = (*MemoryCache)(nil)

func (c *MemoryCache) LatestAtOrBefore(ctx context.Context, processID string, sortKey engine.SortKey) (engine.EvaluationRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := c.recs[processID]
	idx := sort.Search(len(recs), func(i int) bool { return recs[i].SortKey.Compare(sortKey) > 0 })
	if idx == 0 {
		return engine.EvaluationRecord{}, false, nil
	}
	return recs[idx-1], true, nil
}

func (c *MemoryCache) Save(ctx context.Context, rec engine.EvaluationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := c.recs[rec.ProcessID]
	idx := sort.Search(len(recs), func(i int) bool { return recs[i].SortKey.Compare(rec.SortKey) >= 0 })
	if idx < len(recs) && recs[idx].SortKey == rec.SortKey {
		if recs[idx].EqualIgnoringCachedAt(rec) {
			return nil
		}
		return &engine.IntegrityError{ProcessID: rec.ProcessID, SortKey: rec.SortKey}
	}

	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now().UTC()
	}
	recs = append(recs, engine.EvaluationRecord{})
	copy(recs[idx+1:], recs[idx:])
	recs[idx] = rec
	c.recs[rec.ProcessID] = recs
	return nil
}

func (c *MemoryCache) Range(ctx context.Context, processID string, from, to engine.SortKey) ([]engine.EvaluationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := c.recs[processID]
	out := make([]engine.EvaluationRecord, 0, len(recs))
	for _, r := range recs {
		if r.SortKey.Compare(from) < 0 {
			continue
		}
		if to != engine.Latest && r.SortKey.Compare(to) >= 0 {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
