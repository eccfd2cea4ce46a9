package bootstrap

import (
	appconfig "github.com/wolfman30/moving-call-relay/internal/config"
	"github.com/wolfman30/moving-call-relay/internal/notify"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// BuildHandoffAlerter wires handoff email alerts. Without a SendGrid key the
// stub sender logs the alert instead; without a recipient alerts are off.
func BuildHandoffAlerter(cfg *appconfig.Config, logger *logging.Logger) *notify.HandoffAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || cfg.HandoffNotifyEmail == "" {
		logger.Info("handoff email alerts disabled")
		return nil
	}

	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
		logger.Info("handoff email alerts via sendgrid", "to", cfg.HandoffNotifyEmail)
	} else {
		sender = notify.NewStubEmailSender(logger)
		logger.Warn("SENDGRID_API_KEY not set; handoff alerts are logged only")
	}
	return notify.NewHandoffAlerter(sender, cfg.HandoffNotifyEmail, cfg.CompanyName, logger)
}
