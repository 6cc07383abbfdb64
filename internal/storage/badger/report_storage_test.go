package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReportStorageRoundTripAndOrdering(t *testing.T) {
	storage := NewReportStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()
	now := time.Now()

	for i, id := range []string{"oldest", "middle", "newest"} {
		report := &models.BatchReport{
			ID:        id,
			Uploader:  "ops@example.com",
			Units:     i + 1,
			StartedAt: now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, storage.SaveReport(ctx, report))
	}

	got, err := storage.GetReport(ctx, "middle")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Units)

	reports, err := storage.ListReports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "newest", reports[0].ID)
	assert.Equal(t, "middle", reports[1].ID)

	_, err = storage.GetReport(ctx, "missing")
	assert.True(t, errors.Is(err, ErrReportNotFound))

	assert.Error(t, storage.SaveReport(ctx, &models.BatchReport{}))
}

func TestReportStorageDeleteReportsBefore(t *testing.T) {
	storage := NewReportStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.SaveReport(ctx, &models.BatchReport{ID: "stale", StartedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, storage.SaveReport(ctx, &models.BatchReport{ID: "fresh", StartedAt: now}))

	deleted, err := storage.DeleteReportsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	reports, err := storage.ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "fresh", reports[0].ID)
}
