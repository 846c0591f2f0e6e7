package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "Results", "runs.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id, err := store.Record(ctx, Run{
			RanAt:     base.Add(time.Duration(i) * time.Minute),
			Accuracy:  0.9 + float64(i)/100,
			F1Score:   0.8,
			NTrain:    140,
			NTest:     60,
			ModelPath: "Model/drug_pipeline.json",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	runs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(3), runs[0].ID)
	assert.InDelta(t, 0.92, runs[0].Accuracy, 1e-12)
	assert.True(t, runs[0].RanAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, 60, runs[1].NTest)
	assert.Equal(t, "Model/drug_pipeline.json", runs[1].ModelPath)
}

func TestStoreReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.Record(ctx, Run{RanAt: time.Now(), Accuracy: 1, F1Score: 1, NTrain: 7, NTest: 3, ModelPath: "m.json"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
