package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/permaweb/cu-core/internal/engine"
)

// LevelDBCache is the production Evaluation Cache, grounded on the
// ava-labs-timestampvm pack's block-state-over-a-Database pattern
// (GetBlock/PutBlock keyed by id) but backed directly by
// github.com/syndtr/goleveldb rather than avalanchego's database
// abstraction, since this module has no other use for avalanchego's
// consensus-oriented Database interface.
type LevelDBCache struct {
	db  *leveldb.DB
	log engine.Logger
}

// OpenLevelDBCache opens (creating if absent) a leveldb store at dir.
func OpenLevelDBCache(dir string, log engine.Logger) (*LevelDBCache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb cache at %s: %w", dir, err)
	}
	return &LevelDBCache{db: db, log: log}, nil
}

var _ engine.Cache = (*LevelDBCache)(nil)

// Close releases the underlying leveldb handle.
func (c *LevelDBCache) Close() error { return c.db.Close() }

// LatestAtOrBefore seeks to the first key >= target within the
// process's key range, then steps back one if it overshot, giving the
// highest sortKey <= the requested one in O(log n).
func (c *LevelDBCache) LatestAtOrBefore(ctx context.Context, processID string, sortKey engine.SortKey) (engine.EvaluationRecord, bool, error) {
	target := key(processID, sortKey)
	rng := &util.Range{Start: key(processID, engine.Genesis), Limit: prefixUpperBound(processID)}

	iter := c.db.NewIterator(rng, nil)
	defer iter.Release()

	positioned := iter.Seek(target)
	switch {
	case positioned && bytes.Equal(iter.Key(), target):
		// exact match
	case positioned:
		if !iter.Prev() {
			return engine.EvaluationRecord{}, false, iter.Error()
		}
	default:
		if !iter.Last() {
			return engine.EvaluationRecord{}, false, iter.Error()
		}
	}
	if err := iter.Error(); err != nil {
		return engine.EvaluationRecord{}, false, err
	}

	var rec engine.EvaluationRecord
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return engine.EvaluationRecord{}, false, fmt.Errorf("decode cached record: %w", err)
	}
	return rec, true, nil
}

// Save upserts rec. An identical existing record (modulo CachedAt) is a
// no-op; a conflicting one is a fatal *engine.IntegrityError.
func (c *LevelDBCache) Save(ctx context.Context, rec engine.EvaluationRecord) error {
	k := key(rec.ProcessID, rec.SortKey)

	existing, err := c.db.Get(k, nil)
	if err == nil {
		var prev engine.EvaluationRecord
		if err := json.Unmarshal(existing, &prev); err != nil {
			return fmt.Errorf("decode existing record: %w", err)
		}
		if prev.EqualIgnoringCachedAt(rec) {
			return nil
		}
		return &engine.IntegrityError{ProcessID: rec.ProcessID, SortKey: rec.SortKey}
	}
	if err != leveldb.ErrNotFound {
		return &engine.TransientIOError{Op: "read before save", Err: err}
	}

	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := c.db.Put(k, data, nil); err != nil {
		return &engine.TransientIOError{Op: "save record", Err: err}
	}
	if c.log != nil {
		c.log.Debugf("cached record for process %s at sortKey %s", rec.ProcessID, rec.SortKey)
	}
	return nil
}

// Range enumerates records for processID in [from, to). A zero value
// for to means "through the latest record".
func (c *LevelDBCache) Range(ctx context.Context, processID string, from, to engine.SortKey) ([]engine.EvaluationRecord, error) {
	start := key(processID, from)
	limit := prefixUpperBound(processID)
	if to != engine.Latest {
		limit = key(processID, to)
	}

	iter := c.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()

	var out []engine.EvaluationRecord
	for iter.Next() {
		var rec engine.EvaluationRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode cached record: %w", err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
