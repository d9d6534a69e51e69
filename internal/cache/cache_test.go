package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/cu-core/internal/engine"
)

func rec(processID string, sortKey engine.SortKey, n int) engine.EvaluationRecord {
	return engine.EvaluationRecord{
		ProcessID: processID,
		SortKey:   sortKey,
		Action:    json.RawMessage(`{"type":"inc"}`),
		Output:    engine.HandlerOutput{State: json.RawMessage(`{"n":` + itoaTest(n) + `}`)},
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func runCacheSuite(t *testing.T, newCache func() engine.Cache) {
	ctx := context.Background()

	t.Run("latest at or before with no records", func(t *testing.T) {
		c := newCache()
		_, ok, err := c.LatestAtOrBefore(ctx, "p1", "0005")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save then latest at or before exact and gap", func(t *testing.T) {
		c := newCache()
		require.NoError(t, c.Save(ctx, rec("p1", "0001", 1)))
		require.NoError(t, c.Save(ctx, rec("p1", "0003", 3)))

		got, ok, err := c.LatestAtOrBefore(ctx, "p1", "0003")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, engine.SortKey("0003"), got.SortKey)

		got, ok, err = c.LatestAtOrBefore(ctx, "p1", "0002")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, engine.SortKey("0001"), got.SortKey)

		_, ok, err = c.LatestAtOrBefore(ctx, "p1", "0000")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save is idempotent for identical records", func(t *testing.T) {
		c := newCache()
		r := rec("p1", "0001", 1)
		require.NoError(t, c.Save(ctx, r))
		require.NoError(t, c.Save(ctx, r))
	})

	t.Run("save rejects conflicting record at same key", func(t *testing.T) {
		c := newCache()
		require.NoError(t, c.Save(ctx, rec("p1", "0001", 1)))
		err := c.Save(ctx, rec("p1", "0001", 2))
		require.Error(t, err)
		var integrity *engine.IntegrityError
		require.ErrorAs(t, err, &integrity)
	})

	t.Run("range scoped to process and bounds", func(t *testing.T) {
		c := newCache()
		require.NoError(t, c.Save(ctx, rec("p1", "0001", 1)))
		require.NoError(t, c.Save(ctx, rec("p1", "0002", 2)))
		require.NoError(t, c.Save(ctx, rec("p1", "0003", 3)))
		require.NoError(t, c.Save(ctx, rec("p2", "0001", 9)))

		got, err := c.Range(ctx, "p1", engine.Genesis, engine.Latest)
		require.NoError(t, err)
		require.Len(t, got, 3)

		got, err = c.Range(ctx, "p1", "0001", "0003")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, engine.SortKey("0001"), got[0].SortKey)
		assert.Equal(t, engine.SortKey("0002"), got[1].SortKey)
	})
}

func TestMemoryCache(t *testing.T) {
	runCacheSuite(t, func() engine.Cache { return NewMemoryCache() })
}

func TestLevelDBCache(t *testing.T) {
	runCacheSuite(t, func() engine.Cache {
		dir := t.TempDir()
		c, err := OpenLevelDBCache(dir, nil)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	})
}
