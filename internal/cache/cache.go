// Package cache implements engine.Cache, the content-addressed
// evaluation cache described in spec.md §4.3: persist
// (processId, sortKey) → EvaluationRecord and answer "closest cached
// state at or before sortKey S".
package cache

import "github.com/permaweb/cu-core/internal/engine"

// key joins a processId and sortKey into one byte string whose
// lexicographic order matches (processId, sortKey) order: sort keys
// are opaque but lexicographically comparable per spec.md §3, so a
// plain byte-wise ordered store (leveldb) gives "closest at or before"
// for free via a seek-and-step-back.
func key(processID string, sortKey engine.SortKey) []byte {
	b := make([]byte, 0, len(processID)+1+len(sortKey))
	b = append(b, processID...)
	b = append(b, 0x00)
	b = append(b, sortKey...)
	return b
}

// prefixUpperBound returns the smallest key that is strictly greater
// than every key with the given processId prefix, for bounding range
// scans to one process.
func prefixUpperBound(processID string) []byte {
	b := make([]byte, 0, len(processID)+1)
	b = append(b, processID...)
	b = append(b, 0x01)
	return b
}
