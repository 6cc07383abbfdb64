package interfaces

import (
	"context"

	"github.com/ternarybob/tcsync/internal/models"
)

// RemotePortal drives one authenticated Training Connect browser page
type RemotePortal interface {
	Login(ctx context.Context) error
	// Search returns profile URLs; an empty slice means no results.
	Search(ctx context.Context, kind models.SearchKind, query string) ([]string, error)
	OpenProfile(ctx context.Context, profileURL string) error
	ExtractProfileFields(ctx context.Context) (*models.ProfileFields, error)
	AddToCourseProvider(ctx context.Context, link string) error
	// FillCreateForm submits the create-student form and returns the inline validation messages.
	FillCreateForm(ctx context.Context, form models.StudentForm) ([]string, error)
	FillCertificateForm(ctx context.Context, profileURL string, form models.CertificateForm) error
	Close() error
}

// PortalLauncher starts a fresh browser and page
type PortalLauncher interface {
	Launch(ctx context.Context) (RemotePortal, error)
}
