package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsxia/pkg/dsx/model"
)

func TestPutGetRoundTrip(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)

	job := &model.Job{Name: "JOB_A", FilePath: "/export/a.dsx"}
	idx.Put("JOB_A", "/export/a.dsx", job, "abc123", "2026-01-01T00:00:00Z")

	got, ok := idx.Get("JOB_A", "/export/a.dsx")
	require.True(t, ok)
	assert.Equal(t, "JOB_A", got.Name)

	assert.True(t, idx.IsCached("JOB_A", "/export/a.dsx", "abc123"))
	assert.False(t, idx.IsCached("JOB_A", "/export/a.dsx", "different"))
}

func TestInvalidateFileRemovesAllJobsForPath(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)

	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A"}, "h1", "t")
	idx.Put("JOB_B", "/export/a.dsx", &model.Job{Name: "JOB_B"}, "h1", "t")
	idx.Put("JOB_C", "/export/b.dsx", &model.Job{Name: "JOB_C"}, "h2", "t")

	idx.InvalidateFile("/export/a.dsx")

	assert.False(t, idx.IsCached("JOB_A", "/export/a.dsx", ""))
	assert.False(t, idx.IsCached("JOB_B", "/export/a.dsx", ""))
	assert.True(t, idx.IsCached("JOB_C", "/export/b.dsx", ""))
}

func TestJobsByTableMatchesFullOrBareName(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)

	job := &model.Job{
		Name: "JOB_A",
		SourceTables: []model.TableRef{
			{Schema: "BIDWADM", TableName: "ACCP", FullName: "BIDWADM.ACCP"},
		},
	}
	idx.Put("JOB_A", "/export/a.dsx", job, "h", "t")

	assert.Len(t, idx.JobsByTable("ACCP", "BIDWADM"), 1)
	assert.Len(t, idx.JobsByTable("accp", ""), 1)
	assert.Empty(t, idx.JobsByTable("NOPE", ""))
}

func TestJobsByColumnNarrowedToTable(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)

	job := &model.Job{
		Name: "JOB_A",
		Columns: map[string][]model.Column{
			"BIDWADM.ACCP": {{Name: "ACCP_ID"}},
		},
	}
	idx.Put("JOB_A", "/export/a.dsx", job, "h", "t")

	assert.Len(t, idx.JobsByColumn("ACCP_ID", "ACCP", "BIDWADM"), 1)
	assert.Empty(t, idx.JobsByColumn("ACCP_ID", "OTHER", "BIDWADM"))
	assert.Len(t, idx.JobsByColumn("accp_id", "", ""), 1)
}

func TestFlushThenReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	idx := New(NewStore(dir, true), nil)
	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A", FilePath: "/export/a.dsx"}, "h1", "t")
	require.NoError(t, idx.Flush())

	reloaded := New(NewStore(dir, true), nil)
	job, ok := reloaded.Get("JOB_A", "/export/a.dsx")
	require.True(t, ok)
	assert.Equal(t, "JOB_A", job.Name)
}

func TestFileCachedTrueWhenAllJobsMatchHash(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A"}, "h1", "t")
	idx.Put("JOB_B", "/export/a.dsx", &model.Job{Name: "JOB_B"}, "h1", "t")

	cached, count := idx.FileCached("/export/a.dsx", "h1")
	assert.True(t, cached)
	assert.Equal(t, 2, count)
}

func TestFileCachedFalseWhenHashChanged(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A"}, "h1", "t")

	cached, count := idx.FileCached("/export/a.dsx", "h2")
	assert.False(t, cached)
	assert.Equal(t, 0, count)
}

func TestFileCachedFalseWhenNoEntriesForPath(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A"}, "h1", "t")

	cached, count := idx.FileCached("/export/other.dsx", "h1")
	assert.False(t, cached)
	assert.Equal(t, 0, count)
}

func TestFileCachedFalseWhenOneOfSeveralJobsStale(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A"}, "h1", "t")
	idx.Put("JOB_B", "/export/a.dsx", &model.Job{Name: "JOB_B"}, "h2", "t")

	cached, count := idx.FileCached("/export/a.dsx", "h1")
	assert.False(t, cached)
	assert.Equal(t, 0, count)
}

func TestClearRemovesEverything(t *testing.T) {
	idx := New(NewStore(t.TempDir(), false), nil)
	idx.Put("JOB_A", "/export/a.dsx", &model.Job{Name: "JOB_A"}, "h", "t")
	idx.Clear()
	assert.Empty(t, idx.AllJobs())
}
