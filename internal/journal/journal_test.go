package journal

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "journal", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndListSubmissions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSubmission(ctx, Submission{
		Reference: "ref-1", Business: "glow-spa", UserID: 42, Name: "Ann", Email: "ann@example.com",
		EventDate: "2026-10-21", EventTime: 600, Duration: 90, ServiceIDs: []int64{1, 2},
		ClientTZ: "Europe/Paris", Status: StatusSubmitted, RedirectURL: "https://pay.example/1",
		CreatedAt: base,
	}))
	require.NoError(t, db.RecordSubmission(ctx, Submission{
		Reference: "ref-2", Business: "glow-spa", EventDate: "2026-10-22", EventTime: 540,
		Duration: 30, ServiceIDs: []int64{1}, Status: StatusNotAvailable, Error: "slot taken",
		CreatedAt: base.Add(time.Hour),
	}))

	all, err := db.Submissions(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ref-1", all[0].Reference)
	assert.Equal(t, []int64{1, 2}, all[0].ServiceIDs)
	assert.Equal(t, 600, all[0].EventTime)
	assert.True(t, base.Equal(all[0].CreatedAt))
	assert.Equal(t, StatusNotAvailable, all[1].Status)
	assert.Equal(t, "slot taken", all[1].Error)

	later, err := db.Submissions(ctx, base.Add(30*time.Minute), time.Time{})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "ref-2", later[0].Reference)
}

func TestRecordCancellation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordCancellation(ctx, Cancellation{
		Business: "glow-spa", ProductID: "p-9", ProductType: "booking", Status: "failed", Error: "timeout",
	}))

	got, err := db.Cancellations(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-9", got[0].ProductID)
	assert.Equal(t, "timeout", got[0].Error)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestExportXLSX(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordSubmission(ctx, Submission{
		Reference: "ref-1", Business: "glow-spa", EventDate: "2026-10-21", EventTime: 570,
		Duration: 90, ServiceIDs: []int64{1, 2}, Status: StatusSubmitted,
	}))
	require.NoError(t, db.RecordCancellation(ctx, Cancellation{
		Business: "glow-spa", ProductID: "p-1", ProductType: "booking", Status: "ok",
	}))

	var buf bytes.Buffer
	require.NoError(t, db.ExportXLSX(ctx, &buf, time.Time{}, time.Time{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Submissions", "Cancellations"}, f.GetSheetList())

	rows, err := f.GetRows("Submissions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, submissionColumns, rows[0])
	assert.Equal(t, "ref-1", rows[1][1])
	assert.Equal(t, "09:30", rows[1][7])
	assert.Equal(t, "1,2", rows[1][9])

	rows, err = f.GetRows("Cancellations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p-1", rows[1][2])
}
