package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "review-insights/internal/testing"
	"review-insights/pkg/events"
)

func TestSQLEventStoreAppendListReplay(t *testing.T) {
	dbt := testutil.NewDBTest(t)
	store := events.NewSQLEventStore(dbt.DB, 0)
	ctx := context.Background()

	b := events.NewBase("run-1", "place-1")
	other := events.NewBase("run-x", "place-2")
	require.NoError(t, store.Publish(ctx,
		events.BatchSucceeded{Base: b, Batch: 0, ReviewIDs: []string{"r1", "r2"}, Analyzed: 2},
		events.RunCompleted{Base: events.NewBase("run-1", "place-1"), Analyzed: 2, Batches: 1},
		events.RunCompleted{Base: other, Analyzed: 9},
	))

	list, err := store.ListByPlace(ctx, "place-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, events.TypeBatchSucceeded, list[0].Type)
	assert.Less(t, list[0].Seq, list[1].Seq)

	newest, err := store.ListByPlace(ctx, "place-1", 1)
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, events.TypeRunCompleted, newest[0].Type)

	st, err := store.Replay(ctx, "place-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 2, st.TotalAnalyzed)
	assert.Equal(t, "run-1", st.LastRunID)
}
