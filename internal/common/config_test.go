package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, "training_connect", config.Queue.Name)
	assert.Equal(t, 5, config.Session.MaxAttempts)
	assert.Equal(t, 5, config.Queue.UnitMaxAttempts)
	assert.Equal(t, 9, config.Matching.MaxCandidates)
	assert.Equal(t, 3, config.Mail.SendAttempts)
	assert.Equal(t, 5, config.Portal.ProfileFields.Phone)
	assert.Equal(t, 7, config.Portal.ProfileFields.BirthDate)
}

func TestLoadFromFilesMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[queue]
name = "base_queue"
poll_interval = "2s"

[company]
name = "Base Co"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[queue]
name = "override_queue"

[alerts]
recipients = ["ops@example.com"]
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "override_queue", config.Queue.Name)
	assert.Equal(t, "2s", config.Queue.PollInterval)
	assert.Equal(t, "Base Co", config.Company.Name)
	assert.Equal(t, []string{"ops@example.com"}, config.Alerts.Recipients)
}

func TestLoadFromFilesEnvOverrides(t *testing.T) {
	t.Setenv("TRAINING_CONNECT_EMAIL", "legacy@example.com")
	t.Setenv("TCSYNC_PORTAL_PASSWORD", "secret")
	t.Setenv("REDIS_URI", "redis://cache:6379/2")
	t.Setenv("TCSYNC_REDIS_URL", "redis://preferred:6379/2")
	t.Setenv("USE_EMAIL", "false")
	t.Setenv("TCSYNC_ALERT_RECIPIENTS", "a@example.com, b@example.com")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "legacy@example.com", config.Portal.Username)
	assert.Equal(t, "secret", config.Portal.Password)
	assert.Equal(t, "redis://preferred:6379/2", config.Redis.URL)
	assert.False(t, config.Mail.Enabled)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, config.Alerts.Recipients)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad duration", func(c *Config) { c.Session.Backoff = "five seconds" }},
		{"unknown backend", func(c *Config) { c.Queue.Backend = "sqs" }},
		{"zero session attempts", func(c *Config) { c.Session.MaxAttempts = 0 }},
		{"bad cron", func(c *Config) { c.Housekeeping.Schedule = "every day" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, Duration("3s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("nope", time.Minute))
}
