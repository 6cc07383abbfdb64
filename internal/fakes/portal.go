// Package fakes provides in-memory collaborators for exercising the worker without a browser,
// database or mail server.
package fakes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

// ErrLogin is returned by FakePortal.Login while LoginFailures is positive
var ErrLogin = errors.New("fake login failure")

// Portal is a scripted RemotePortal that records every call
type Portal struct {
	mu sync.Mutex

	LoginFailures  int
	SearchResults  map[models.SearchKind]map[string][]string
	Profiles       map[string]*models.ProfileFields
	SearchErr      error
	CreateMessages []string
	CreateErr      error
	CertificateErr error
	// SubmitLands makes CreateErr and CertificateErr arrive after the form was saved,
	// like a confirmation page that timed out. Created students become searchable by name.
	SubmitLands bool

	Calls           []string
	Logins          int
	Created         []models.StudentForm
	Certificates    []models.CertificateForm
	AddedToProvider []string
	Closed          int

	current string
}

var _ interfaces.RemotePortal = (*Portal)(nil)

// NewPortal returns an empty portal with no search results
func NewPortal() *Portal {
	return &Portal{
		SearchResults: make(map[models.SearchKind]map[string][]string),
		Profiles:      make(map[string]*models.ProfileFields),
	}
}

// AddResult registers a search result URL and its profile
func (p *Portal) AddResult(kind models.SearchKind, query string, profile *models.ProfileFields) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addResult(kind, query, profile)
}

func (p *Portal) addResult(kind models.SearchKind, query string, profile *models.ProfileFields) {
	if p.SearchResults[kind] == nil {
		p.SearchResults[kind] = make(map[string][]string)
	}
	p.SearchResults[kind][query] = append(p.SearchResults[kind][query], profile.URL)
	p.Profiles[profile.URL] = profile
}

func (p *Portal) record(call string) {
	p.Calls = append(p.Calls, call)
}

// CallCount returns the number of portal operations performed, logins included
func (p *Portal) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

func (p *Portal) Login(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("login")
	p.Logins++
	if p.LoginFailures > 0 {
		p.LoginFailures--
		return ErrLogin
	}
	return nil
}

func (p *Portal) Search(ctx context.Context, kind models.SearchKind, query string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("search:" + string(kind))
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	return append([]string(nil), p.SearchResults[kind][query]...), nil
}

func (p *Portal) OpenProfile(ctx context.Context, profileURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("open")
	if _, ok := p.Profiles[profileURL]; !ok {
		return fmt.Errorf("no profile at %s", profileURL)
	}
	p.current = profileURL
	return nil
}

func (p *Portal) ExtractProfileFields(ctx context.Context) (*models.ProfileFields, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("extract")
	profile, ok := p.Profiles[p.current]
	if !ok {
		return nil, errors.New("no profile open")
	}
	copied := *profile
	return &copied, nil
}

func (p *Portal) AddToCourseProvider(ctx context.Context, link string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("add_to_provider")
	p.AddedToProvider = append(p.AddedToProvider, link)
	return nil
}

func (p *Portal) FillCreateForm(ctx context.Context, form models.StudentForm) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("create")
	if p.CreateErr != nil {
		if p.SubmitLands {
			p.Created = append(p.Created, form)
			p.addResult(models.SearchName, form.FirstName+" "+form.LastName, &models.ProfileFields{
				URL:   fmt.Sprintf("https://portal.test/students/new-%d", len(p.Created)),
				Email: form.Email,
				Phone: form.Phone,
			})
		}
		return nil, p.CreateErr
	}
	p.Created = append(p.Created, form)
	return p.CreateMessages, nil
}

func (p *Portal) FillCertificateForm(ctx context.Context, profileURL string, form models.CertificateForm) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("certificate")
	if p.CertificateErr != nil {
		if p.SubmitLands {
			p.Certificates = append(p.Certificates, form)
		}
		return p.CertificateErr
	}
	p.Certificates = append(p.Certificates, form)
	return nil
}

func (p *Portal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed++
	return nil
}

// Launcher hands out the same scripted portal on every launch
type Launcher struct {
	Portal    *Portal
	LaunchErr error
	Launches  int
}

var _ interfaces.PortalLauncher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context) (interfaces.RemotePortal, error) {
	l.Launches++
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	return l.Portal, nil
}
