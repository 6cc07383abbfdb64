package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

// ErrReportNotFound is returned by GetReport for unknown ids
var ErrReportNotFound = errors.New("batch report not found")

// ReportStorage implements interfaces.ReportStorage for Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.ReportStorage = (*ReportStorage)(nil)

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) *ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.BatchReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to store batch report: %w", err)
	}
	return nil
}

func (s *ReportStorage) GetReport(ctx context.Context, id string) (*models.BatchReport, error) {
	var report models.BatchReport
	if err := s.db.Store().Get(id, &report); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to get batch report: %w", err)
	}
	return &report, nil
}

// ListReports returns the most recent reports first
func (s *ReportStorage) ListReports(ctx context.Context, limit int) ([]models.BatchReport, error) {
	var reports []models.BatchReport
	if err := s.db.Store().Find(&reports, nil); err != nil {
		return nil, fmt.Errorf("failed to list batch reports: %w", err)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// DeleteReportsBefore removes reports that started before cutoff and returns how many went
func (s *ReportStorage) DeleteReportsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []models.BatchReport
	if err := s.db.Store().Find(&stale, badgerhold.Where("StartedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale batch reports: %w", err)
	}

	for _, report := range stale {
		if err := s.db.Store().Delete(report.ID, models.BatchReport{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return 0, fmt.Errorf("failed to delete batch report %s: %w", report.ID, err)
		}
	}

	if len(stale) > 0 {
		s.logger.Debug().Int("deleted", len(stale)).Str("cutoff", cutoff.Format(time.RFC3339)).Msg("Pruned batch reports")
	}
	return len(stale), nil
}
