package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/fakes"
)

func newTestManager(launcher *fakes.Launcher) (*Manager, *[]time.Duration) {
	manager := NewManager(launcher, &common.SessionConfig{MaxAttempts: 5, Backoff: "5s"}, arbor.NewLogger())
	var waits []time.Duration
	manager.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return manager, &waits
}

func TestEnsureSessionExhaustsAfterFiveAttempts(t *testing.T) {
	portal := fakes.NewPortal()
	portal.LoginFailures = 100
	launcher := &fakes.Launcher{Portal: portal}
	manager, waits := newTestManager(launcher)

	_, err := manager.EnsureSession(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExhausted))
	assert.Equal(t, 5, portal.Logins)
	assert.Equal(t, 5, launcher.Launches)
	assert.Equal(t, 5, portal.Closed)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, *waits)
	assert.Equal(t, NoSession, manager.State())
}

func TestEnsureSessionRecoversAfterFailures(t *testing.T) {
	portal := fakes.NewPortal()
	portal.LoginFailures = 2
	launcher := &fakes.Launcher{Portal: portal}
	manager, waits := newTestManager(launcher)

	got, err := manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, portal, got)
	assert.Equal(t, 3, portal.Logins)
	assert.Len(t, *waits, 2)
	assert.True(t, manager.LoggedIn())

	// A live session is reused without logging in again.
	_, err = manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, portal.Logins)
}

func TestTeardownForcesNewLogin(t *testing.T) {
	portal := fakes.NewPortal()
	launcher := &fakes.Launcher{Portal: portal}
	manager, _ := newTestManager(launcher)

	_, err := manager.EnsureSession(context.Background())
	require.NoError(t, err)

	manager.Teardown()
	assert.False(t, manager.LoggedIn())
	assert.Equal(t, 1, portal.Closed)

	_, err = manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, portal.Logins)
	assert.Equal(t, 2, launcher.Launches)
}

func TestEnsureSessionLaunchFailure(t *testing.T) {
	launcher := &fakes.Launcher{LaunchErr: errors.New("chrome not found")}
	manager, waits := newTestManager(launcher)

	_, err := manager.EnsureSession(context.Background())
	require.ErrorIs(t, err, ErrSessionExhausted)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, 5, launcher.Launches)
	assert.Len(t, *waits, 4)
}

func TestEnsureSessionStopsOnCancel(t *testing.T) {
	portal := fakes.NewPortal()
	portal.LoginFailures = 100
	manager := NewManager(&fakes.Launcher{Portal: portal}, &common.SessionConfig{MaxAttempts: 5, Backoff: "1h"}, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := manager.EnsureSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
