package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/metrics"
)

// ErrSessionExhausted is returned once every login attempt has failed
var ErrSessionExhausted = errors.New("portal session could not be established")

// State is the lifecycle position of the portal session
type State int

const (
	NoSession State = iota
	Launching
	Authenticating
	Authenticated
	AuthenticationFailed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case Launching:
		return "launching"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case AuthenticationFailed:
		return "authentication_failed"
	default:
		return "unknown"
	}
}

// Manager owns the single portal session used by the worker
type Manager struct {
	launcher    interfaces.PortalLauncher
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      arbor.ILogger

	mu     sync.Mutex
	portal interfaces.RemotePortal
	state  State
}

// NewManager creates a manager; no browser is started until EnsureSession
func NewManager(launcher interfaces.PortalLauncher, config *common.SessionConfig, logger arbor.ILogger) *Manager {
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Manager{
		launcher:    launcher,
		maxAttempts: maxAttempts,
		backoff:     common.Duration(config.Backoff, 5*time.Second),
		sleep:       sleepContext,
		logger:      logger,
		state:       NoSession,
	}
}

// EnsureSession returns the authenticated portal, launching and logging in when needed
func (m *Manager) EnsureSession(ctx context.Context) (interfaces.RemotePortal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Authenticated && m.portal != nil {
		return m.portal, nil
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := m.sleep(ctx, m.backoff); err != nil {
				m.state = NoSession
				return nil, err
			}
		}

		portal, err := m.open(ctx)
		if err == nil {
			m.portal = portal
			m.state = Authenticated
			metrics.SessionAttempts.WithLabelValues("success").Inc()
			metrics.SessionActive.Set(1)
			m.logger.Info().Int("attempt", attempt).Msg("Portal session established")
			return portal, nil
		}

		if ctx.Err() != nil {
			m.state = NoSession
			return nil, ctx.Err()
		}

		lastErr = err
		m.state = AuthenticationFailed
		metrics.SessionAttempts.WithLabelValues("failure").Inc()
		m.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", m.maxAttempts).
			Msg("Portal session attempt failed")
	}

	m.state = NoSession
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrSessionExhausted, m.maxAttempts, lastErr)
}

func (m *Manager) open(ctx context.Context) (interfaces.RemotePortal, error) {
	m.state = Launching
	portal, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	m.state = Authenticating
	if err := portal.Login(ctx); err != nil {
		if closeErr := portal.Close(); closeErr != nil {
			m.logger.Debug().Err(closeErr).Msg("Failed to close browser after login failure")
		}
		return nil, err
	}
	return portal, nil
}

// Teardown closes the browser and forgets the login
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.portal != nil {
		if err := m.portal.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to close portal session")
		}
		m.portal = nil
		m.logger.Debug().Msg("Portal session closed")
	}
	m.state = NoSession
	metrics.SessionActive.Set(0)
}

// State reports the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LoggedIn reports whether an authenticated session is open
func (m *Manager) LoggedIn() bool {
	return m.State() == Authenticated
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
