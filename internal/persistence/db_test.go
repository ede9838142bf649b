package persistence_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/persistence"
)

func openTemp(t *testing.T) *persistence.DB {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func generate(t *testing.T) *atlas.Result {
	t.Helper()
	req := atlas.Request{
		Center:     geodesy.GeoPoint{Lat: 47.5, Lon: 8.2},
		EdgeMeters: 5000,
		Width:      6,
		Height:     4,
		Regions:    3,
	}
	res, err := atlas.Run(context.Background(), req, environment.NewNoiseProvider(7), atlas.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, res.Partition)
	return res
}

func TestSaveAndLoadRun(t *testing.T) {
	db := openTemp(t)
	res := generate(t)

	info, err := db.SaveRun(res, "crisp", "noise:7")
	require.NoError(t, err)
	assert.Len(t, info.ID, 36)
	assert.Equal(t, 24, info.HexCount)
	assert.Zero(t, info.FailureCount)
	assert.Equal(t, res.Partition.ToleranceMet, info.ToleranceMet)

	run, err := db.LoadRun(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, run.ID)
	assert.Equal(t, "noise:7", run.Source)
	assert.Equal(t, "crisp", run.Mode)
	assert.Equal(t, 6, run.Width)
	assert.Equal(t, 4, run.Height)
	assert.Equal(t, 3, run.Regions)
	assert.WithinDuration(t, info.CreatedAt, run.CreatedAt, time.Millisecond)

	assert.Equal(t, res.Records(), run.Hexes)
	assert.Equal(t, res.Summaries(), run.Regions)
	assert.Empty(t, run.Failures)
}

func TestHexLookup(t *testing.T) {
	db := openTemp(t)
	res := generate(t)
	info, err := db.SaveRun(res, "crisp", "noise:7")
	require.NoError(t, err)

	want := res.Records()[5]
	got, err := db.Hex(info.ID, want.Q, want.R)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = db.Hex(info.ID, 100, 100)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = db.Hex("missing", want.Q, want.R)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTemp(t)
	res := generate(t)

	var ids []string
	for i := 0; i < 3; i++ {
		info, err := db.SaveRun(res, "fuzzy", "noise:7")
		require.NoError(t, err)
		ids = append(ids, info.ID)
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, "fuzzy", runs[0].Mode)
}

func TestDeleteRun(t *testing.T) {
	db := openTemp(t)
	info, err := db.SaveRun(generate(t), "crisp", "noise:7")
	require.NoError(t, err)

	require.NoError(t, db.DeleteRun(info.ID))
	_, err = db.LoadRun(info.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = db.Hex(info.ID, 0, 0)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	assert.ErrorIs(t, db.DeleteRun(info.ID), persistence.ErrNotFound)
}

func TestSaveRunWithSegmentError(t *testing.T) {
	db := openTemp(t)
	req := atlas.Request{
		Center:     geodesy.GeoPoint{Lat: 60, Lon: 10},
		EdgeMeters: 10000,
		Width:      3,
		Height:     5,
		Regions:    14,
	}
	opts := atlas.DefaultOptions()
	opts.PoleLimit = 60.2
	res, err := atlas.Run(context.Background(), req, environment.NewNoiseProvider(1), opts)
	require.NoError(t, err)
	require.Error(t, res.SegmentErr)

	info, err := db.SaveRun(res, "crisp", "noise:1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.FailureCount)
	assert.False(t, info.ToleranceMet)

	run, err := db.LoadRun(info.ID)
	require.NoError(t, err)
	assert.Equal(t, res.SegmentErr.Error(), run.SegmentError)
	assert.Len(t, run.Failures, 3)
	assert.Empty(t, run.Regions)
	assert.Len(t, run.Hexes, 12)
	for _, h := range run.Hexes {
		assert.Nil(t, h.Region)
	}
}
