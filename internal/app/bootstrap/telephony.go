package bootstrap

import (
	appconfig "github.com/wolfman30/moving-call-relay/internal/config"
	"github.com/wolfman30/moving-call-relay/internal/conversation"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/internal/telephony"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// Provider names used in metrics, logs and admin requests.
const (
	ProviderDialpad = "dialpad"
	ProviderTwilio  = "twilio"
)

// BuildTelephonyActions returns the action clients that have credentials,
// keyed by provider. A missing provider simply has no entry.
func BuildTelephonyActions(cfg *appconfig.Config, audio *telephony.AudioCache, m *metrics.RelayMetrics, logger *logging.Logger) map[string]telephony.Actions {
	if logger == nil {
		logger = logging.Default()
	}
	out := make(map[string]telephony.Actions)
	if cfg == nil {
		return out
	}

	if cfg.DialpadAPIToken != "" {
		client, err := telephony.NewDialpadClient(telephony.DialpadClientConfig{
			APIToken: cfg.DialpadAPIToken,
			BaseURL:  cfg.DialpadAPIBase,
			Metrics:  m,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("failed to create dialpad client", "error", err)
		} else {
			out[ProviderDialpad] = client
		}
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		audioBase := ""
		if cfg.PublicBaseURL != "" {
			audioBase = cfg.PublicBaseURL + "/audio"
		} else {
			logger.Warn("PUBLIC_BASE_URL not set; twilio audio playback disabled")
		}
		client, err := telephony.NewTwilioClient(telephony.TwilioClientConfig{
			AccountSID:      cfg.TwilioAccountSID,
			AuthToken:       cfg.TwilioAuthToken,
			AudioBaseURL:    audioBase,
			Audio:           audio,
			Voice:           cfg.TwilioVoice,
			TransferMessage: conversation.TransferMessage,
			Metrics:         m,
			Logger:          logger,
		})
		if err != nil {
			logger.Error("failed to create twilio client", "error", err)
		} else {
			out[ProviderTwilio] = client
		}
	}
	return out
}
