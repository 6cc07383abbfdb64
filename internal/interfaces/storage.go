package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tcsync/internal/models"
)

// ReportStorage persists batch reports for operators
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.BatchReport) error
	GetReport(ctx context.Context, id string) (*models.BatchReport, error)
	ListReports(ctx context.Context, limit int) ([]models.BatchReport, error)
	DeleteReportsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
