package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/evtrack/internal/eklt"
)

func openTestStore(t *testing.T) (*MatchStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matches.db")
	s, err := OpenMatchStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sampleList(id string, t0 float64) eklt.MatchList {
	return eklt.MatchList{
		{PatchID: id, Previous: eklt.Feature{Timestamp: t0, X: 10, Y: 20}, Current: eklt.Feature{Timestamp: t0 + 0.01, X: 11, Y: 20.5}},
		{PatchID: id + "-b", Previous: eklt.Feature{Timestamp: t0, X: 40, Y: 41}, Current: eklt.Feature{Timestamp: t0 + 0.01, X: 39.5, Y: 41}},
	}
}

func TestOpenMatchStore_Migrates(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	require.NoError(t, s.Close())

	// Reopening an up-to-date database is a no-op.
	again, err := OpenMatchStore(path)
	require.NoError(t, err)
	defer again.Close()
	v, err = again.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestMatchStore_RoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	run := &Run{Label: "seq-01", ParamsJSON: json.RawMessage(`{"patch_size":25}`)}
	require.NoError(t, s.StartRun(run))
	require.NotEmpty(t, run.RunID)
	require.NotZero(t, run.CreatedAt)

	lists := []eklt.MatchList{sampleList("p1", 1.0), {}, sampleList("p2", 2.0)}
	for i, ml := range lists {
		require.NoError(t, s.InsertMatchList(run.RunID, i, float64(i+1), ml))
	}

	n, err := s.CountMatchLists(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.MatchLists(run.RunID)
	require.NoError(t, err)
	want := []StoredMatchList{
		{Seq: 0, FlushedAt: 1, Matches: lists[0]},
		{Seq: 1, FlushedAt: 2, Matches: eklt.MatchList{}},
		{Seq: 2, FlushedAt: 3, Matches: lists[2]},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("match lists mismatch (-want +got):\n%s", diff)
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "seq-01", runs[0].Label)
	assert.JSONEq(t, `{"patch_size":25}`, string(runs[0].ParamsJSON))
}

func TestMatchStore_DuplicateSeqRejected(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	run := &Run{}
	require.NoError(t, s.StartRun(run))

	require.NoError(t, s.InsertMatchList(run.RunID, 0, 1, sampleList("p", 1)))
	assert.Error(t, s.InsertMatchList(run.RunID, 0, 1, sampleList("q", 1)))

	// The failed insert left nothing behind.
	got, err := s.MatchLists(run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p", got[0].Matches[0].PatchID)
}

func TestMatchStore_UnknownRun(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	assert.Error(t, s.InsertMatchList("nope", 0, 1, nil), "foreign key enforced")

	got, err := s.MatchLists("nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchStore_PatchTrack(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	run := &Run{}
	require.NoError(t, s.StartRun(run))
	require.NoError(t, s.InsertMatchList(run.RunID, 0, 1, sampleList("p", 1)))
	require.NoError(t, s.InsertMatchList(run.RunID, 1, 2, sampleList("p", 2)))

	track, err := s.PatchTrack("p")
	require.NoError(t, err)
	want := []eklt.Feature{sampleList("p", 1)[0].Current, sampleList("p", 2)[0].Current}
	if diff := cmp.Diff(want, track); diff != "" {
		t.Errorf("track mismatch (-want +got):\n%s", diff)
	}
}
