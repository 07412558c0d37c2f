package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/storage"
)

func sampleReport() *Report {
	started := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	rep := &Report{
		RunID:      "run-42",
		StartedAt:  started,
		FinishedAt: started.Add(95 * time.Second),
		Result:     ResultSuccess,
	}
	rep.AddTable(TableReport{Table: "persons", Before: 100, After: 130, New: 30, Updated: 70, Protected: 2})
	rep.AddTable(TableReport{Table: "score_records", Before: 400, After: 460, New: 60, Updated: 300, Rejected: 3, Skipped: 5})
	rep.AddNote("responses collection: 1 page abandoned")
	return rep
}

func TestPublish_WritesArtifactAndHistory(t *testing.T) {
	dir := t.TempDir()
	runs := storage.NewInMemoryRunStore()
	rep := sampleReport()

	require.NoError(t, New(dir, runs).Publish(context.Background(), rep))

	raw, err := os.ReadFile(filepath.Join(dir, "sync-report-run-42.txt"))
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "sync run run-42")
	assert.Contains(t, text, "result:   success")
	assert.Contains(t, text, "persons")
	assert.Contains(t, text, "note: responses collection: 1 page abandoned")

	history, err := runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "run-42", history[0].RunID)
	assert.Equal(t, ResultSuccess, history[0].Result)
	assert.Equal(t, "tables=2 new=90 updated=370 protected=2 rejected=3 skipped=5 errors=0", history[0].Summary)

	var tables []TableReport
	require.NoError(t, json.Unmarshal([]byte(history[0].Tables), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "persons", tables[0].Table)
	assert.Equal(t, 30, tables[0].New)
}

func TestPublish_NoDirSkipsArtifact(t *testing.T) {
	runs := storage.NewInMemoryRunStore()
	require.NoError(t, New("", runs).Publish(context.Background(), sampleReport()))

	history, err := runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPublish_NilRunStoreStillWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New(dir, nil).Publish(context.Background(), sampleReport()))

	_, err := os.Stat(filepath.Join(dir, "sync-report-run-42.txt"))
	assert.NoError(t, err)
}

func TestSummary_AggregatesCounters(t *testing.T) {
	got := Summary(sampleReport())
	assert.Equal(t, "tables=2 new=90 updated=370 protected=2 rejected=3 skipped=5 errors=0", got)
}
