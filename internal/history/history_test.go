// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf-harvester/pkg/types"
)

var t0 = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "logs", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	clock := t0
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func result(inst, url string, status types.Status, file string) *types.HarvestResult {
	r := types.NewHarvestResult(types.HarvestTask{Institution: inst, StartURL: url})
	r.Status = status
	r.FilePath = file
	r.Notes = "note for " + inst
	r.AddAction("accepted_cookies")
	r.StartedAt = t0
	r.Finalize(t0.Add(5 * time.Second))
	return r
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, types.ProfileInstitutional, "input.csv")
	require.NoError(t, err)
	assert.Len(t, runID, 36)

	require.NoError(t, s.RecordResult(ctx, runID, result("Acme", "https://a.example", types.StatusDownloaded, "downloads/acme.pdf")))
	require.NoError(t, s.RecordResult(ctx, runID, result("Bravo", "https://b.example", types.StatusNotFound, "")))
	require.NoError(t, s.RecordResult(ctx, runID, result("Charlie", "https://c.example", types.StatusManualRequired, "")))
	require.NoError(t, s.FinishRun(ctx, runID))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, "institutional", run.Profile)
	assert.Equal(t, "input.csv", run.Input)
	assert.True(t, run.FinishedAt.Valid)
	assert.Equal(t, 1, run.Downloaded)
	assert.Equal(t, 1, run.NotFound)
	assert.Equal(t, 1, run.ManualRequired)
	assert.Equal(t, 0, run.Errors)
	assert.Equal(t, 3, run.Total())

	results, err := s.Results(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Acme", results[0].Institution)
	assert.Equal(t, types.StatusDownloaded, results[0].Status)
	assert.Equal(t, []string{"accepted_cookies"}, results[0].Actions)
	assert.True(t, t0.Add(5*time.Second).Equal(results[0].FinishedAt))
	assert.Equal(t, "Charlie", results[2].Institution)
}

func TestStore_FinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.FinishRun(context.Background(), "missing"))
}

func TestStore_LatestRunID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.LatestRunID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = s.BeginRun(ctx, types.ProfileUnknown, "first.csv")
	require.NoError(t, err)
	second, err := s.BeginRun(ctx, types.ProfileUnknown, "second.csv")
	require.NoError(t, err)

	id, err = s.LatestRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, id)
}

func TestStore_AlreadyDownloaded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	present := filepath.Join(dir, "acme.pdf")
	require.NoError(t, os.WriteFile(present, []byte("%PDF"), 0o644))

	runID, err := s.BeginRun(ctx, types.ProfileUnknown, "input.csv")
	require.NoError(t, err)
	require.NoError(t, s.RecordResult(ctx, runID, result("Acme", "https://a.example", types.StatusDownloaded, present)))
	require.NoError(t, s.RecordResult(ctx, runID, result("Bravo", "https://b.example", types.StatusDownloaded, filepath.Join(dir, "gone.pdf"))))
	require.NoError(t, s.RecordResult(ctx, runID, result("Charlie", "https://c.example", types.StatusNotFound, "")))

	skip := s.AlreadyDownloaded(ctx)
	tests := []struct {
		task types.HarvestTask
		want bool
	}{
		{types.HarvestTask{Institution: "Acme", StartURL: "https://a.example"}, true},
		{types.HarvestTask{Institution: "Acme", StartURL: "https://other.example"}, false},
		{types.HarvestTask{Institution: "Bravo", StartURL: "https://b.example"}, false},
		{types.HarvestTask{Institution: "Charlie", StartURL: "https://c.example"}, false},
	}
	for _, tt := range tests {
		reason, got := skip(tt.task)
		assert.Equal(t, tt.want, got, tt.task.Institution+" "+tt.task.StartURL)
		if got {
			assert.Contains(t, reason, present)
		}
	}

	r, err := s.LastDownload(ctx, types.HarvestTask{Institution: "Zulu", StartURL: "https://z.example"})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestOpen_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.BeginRun(context.Background(), types.ProfileRetail, "x.csv")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
