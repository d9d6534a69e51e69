package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/permaweb/cu-core/internal/engine"
)

func TestFilterCronKeepsOnlyCronRecords(t *testing.T) {
	recs := []engine.EvaluationRecord{
		{SortKey: "0001", Cron: false},
		{SortKey: "0002", Cron: true},
		{SortKey: "0003", Cron: false},
		{SortKey: "0004", Cron: true},
	}

	got := filterCron(recs)

	assert.Len(t, got, 2)
	assert.Equal(t, engine.SortKey("0002"), got[0].SortKey)
	assert.Equal(t, engine.SortKey("0004"), got[1].SortKey)
}

func TestFilterCronEmptyInput(t *testing.T) {
	assert.Empty(t, filterCron(nil))
}
