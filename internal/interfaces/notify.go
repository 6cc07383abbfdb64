package interfaces

import (
	"context"

	"github.com/ternarybob/tcsync/internal/models"
)

// Mailer delivers a rendered email
type Mailer interface {
	Send(ctx context.Context, email *models.Email) error
}

// PDFService handles PDF generation from markdown
type PDFService interface {
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}

// CertificateRenderer produces the PNG uploaded alongside a certificate
type CertificateRenderer interface {
	Render(ctx context.Context, unit *models.UploadUnit) ([]byte, error)
}

// Notifier composes the end-of-batch messages. Uploader notices and engineering
// alerts are separate calls and never share a message.
type Notifier interface {
	CertificateFailures(ctx context.Context, uploader, fileName string, failures []models.FailureRecord, images []models.CertificateImage) error
	StudentFailures(ctx context.Context, uploader, fileName string, failures []models.FailureRecord) error
	Unverified(ctx context.Context, uploader string, failures []models.FailureRecord) error
	SystemAlert(ctx context.Context, records []models.SystemErrorRecord) error
}
