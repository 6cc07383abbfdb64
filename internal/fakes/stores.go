package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

// LocalStore keeps LMS users in memory and records deletes
type LocalStore struct {
	mu sync.Mutex

	Users       map[string]*models.LocalUser
	SaveErr     error
	SaveCreates bool
	UpdateErr   error
	DeleteErr   error

	Saved               []*models.CertificateRecord
	Updates             map[string]*models.LocalUserUpdate
	DeletedUsers        []string
	DeletedCertificates []string
}

var _ interfaces.LocalStore = (*LocalStore)(nil)

// NewLocalStore returns an empty store
func NewLocalStore() *LocalStore {
	return &LocalStore{
		Users:   make(map[string]*models.LocalUser),
		Updates: make(map[string]*models.LocalUserUpdate),
	}
}

func (s *LocalStore) GetUser(ctx context.Context, userID string) (*models.LocalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.Users[userID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *LocalStore) CreateUser(ctx context.Context, user *models.LocalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(s.Users)+1)
	}
	copied := *user
	s.Users[user.ID] = &copied
	return nil
}

func (s *LocalStore) DeleteUsers(ctx context.Context, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	for _, id := range userIDs {
		delete(s.Users, id)
		s.DeletedUsers = append(s.DeletedUsers, id)
	}
	return nil
}

func (s *LocalStore) DeleteCertificates(ctx context.Context, numbers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.DeletedCertificates = append(s.DeletedCertificates, numbers...)
	for _, number := range numbers {
		kept := s.Saved[:0]
		for _, record := range s.Saved {
			if record.CertificateNumber != number {
				kept = append(kept, record)
			}
		}
		s.Saved = kept
	}
	return nil
}

func (s *LocalStore) SaveCertificate(ctx context.Context, record *models.CertificateRecord) (*models.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return nil, s.SaveErr
	}
	s.Saved = append(s.Saved, record)
	user := models.LocalUser{
		ID:          fmt.Sprintf("cert-holder-%d", len(s.Saved)),
		FirstName:   record.FirstName,
		LastName:    record.LastName,
		Email:       record.Email,
		PhoneNumber: record.PhoneNumber,
	}
	if s.SaveCreates {
		s.Users[user.ID] = &user
	}
	return &models.SaveResult{User: user, UserCreated: s.SaveCreates}, nil
}

func (s *LocalStore) UpdateUser(ctx context.Context, userID string, update *models.LocalUserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.Updates[userID] = update
	return nil
}

// PhotoStore pretends every download succeeds
type PhotoStore struct {
	Dir       string
	Downloads []string
	Err       error
}

var _ interfaces.PhotoStore = (*PhotoStore)(nil)

func (s *PhotoStore) Download(ctx context.Context, url string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.Downloads = append(s.Downloads, url)
	return fmt.Sprintf("photo-%d.jpeg", len(s.Downloads)), nil
}

func (s *PhotoStore) Path(name string) string {
	return s.Dir + "/" + name
}

// Mailer records sent emails
type Mailer struct {
	mu    sync.Mutex
	Err   error
	Panic string
	Sent  []*models.Email
}

var _ interfaces.Mailer = (*Mailer)(nil)

func (m *Mailer) Send(ctx context.Context, email *models.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Panic != "" {
		panic(m.Panic)
	}
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, email)
	return nil
}

// SentTo returns the emails addressed to recipient
func (m *Mailer) SentTo(recipient string) []*models.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Email
	for _, email := range m.Sent {
		for _, to := range email.To {
			if to == recipient {
				out = append(out, email)
				break
			}
		}
	}
	return out
}

// Renderer returns a fixed image for every certificate
type Renderer struct {
	Err     error
	Panic   string
	Renders int
}

var _ interfaces.CertificateRenderer = (*Renderer)(nil)

func (r *Renderer) Render(ctx context.Context, unit *models.UploadUnit) ([]byte, error) {
	r.Renders++
	if r.Panic != "" {
		panic(r.Panic)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return []byte("\x89PNG-certificate"), nil
}

// PDF returns the markdown bytes as the document
type PDF struct{}

var _ interfaces.PDFService = PDF{}

func (PDF) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	return []byte("%PDF-" + title + "\n" + markdown), nil
}

// Queue is an in-memory FIFO
type Queue struct {
	mu     sync.Mutex
	Items  []string
	LenErr error
}

var _ interfaces.QueueStore = (*Queue)(nil)

func (q *Queue) Push(ctx context.Context, payload string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Items = append(q.Items, payload)
	return true, nil
}

func (q *Queue) Pop(ctx context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.Items) == 0 {
		return "", false, nil
	}
	item := q.Items[0]
	q.Items = q.Items[1:]
	return item, true, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.LenErr != nil {
		return 0, q.LenErr
	}
	return int64(len(q.Items)), nil
}

func (q *Queue) Close() error { return nil }
