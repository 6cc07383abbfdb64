package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved runtime settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("tcsync", GetVersion())

	logger.Info().
		Str("environment", config.Environment).
		Str("queue_backend", config.Queue.Backend).
		Str("queue_name", config.Queue.Name).
		Bool("training_connect_enabled", config.Features.TrainingConnectEnabled).
		Bool("mail_enabled", config.Mail.Enabled).
		Msg("tcsync configuration")
}
