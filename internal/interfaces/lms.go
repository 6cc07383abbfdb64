package interfaces

import (
	"context"

	"github.com/ternarybob/tcsync/internal/models"
)

// LocalStore is the LMS persistence this worker reads and compensates against.
// Deleting rows that do not exist is not an error.
type LocalStore interface {
	GetUser(ctx context.Context, userID string) (*models.LocalUser, error)
	CreateUser(ctx context.Context, user *models.LocalUser) error
	DeleteUsers(ctx context.Context, userIDs []string) error
	DeleteCertificates(ctx context.Context, certificateNumbers []string) error
	SaveCertificate(ctx context.Context, record *models.CertificateRecord) (*models.SaveResult, error)
	UpdateUser(ctx context.Context, userID string, update *models.LocalUserUpdate) error
}

// PhotoStore keeps user head shots on local disk
type PhotoStore interface {
	Download(ctx context.Context, photoURL string) (string, error)
	Path(name string) string
}
