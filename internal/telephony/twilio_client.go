package telephony

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

type callUpdater interface {
	UpdateCall(sid string, params *twilioapi.UpdateCallParams) (*twilioapi.ApiV2010Call, error)
}

// TwilioClientConfig configures TwilioClient.
type TwilioClientConfig struct {
	AccountSID string
	AuthToken  string
	// AudioBaseURL is the public URL prefix under which AudioCache clips are
	// served, e.g. https://relay.example.com/audio.
	AudioBaseURL string
	Audio        *AudioCache
	// Voice is the <Say> voice used for the transfer announcement.
	Voice           string
	TransferMessage string
	Metrics         *metrics.RelayMetrics
	Logger          *logging.Logger
}

// TwilioClient controls in-progress Twilio calls by replacing their TwiML.
// Answering is implicit on Twilio: the voice webhook reply answers the call.
type TwilioClient struct {
	api             callUpdater
	audio           *AudioCache
	audioBaseURL    string
	voice           string
	transferMessage string
	metrics         *metrics.RelayMetrics
	logger          *logging.Logger
}

// NewTwilioClient builds a call-control client on the Twilio REST API. It
// fails without an account SID and auth token.
func NewTwilioClient(cfg TwilioClientConfig) (*TwilioClient, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio client: account sid and auth token required")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioClient(rest.Api, cfg), nil
}

func newTwilioClient(api callUpdater, cfg TwilioClientConfig) *TwilioClient {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Voice == "" {
		cfg.Voice = "Polly.Amy"
	}
	return &TwilioClient{
		api:             api,
		audio:           cfg.Audio,
		audioBaseURL:    strings.TrimRight(cfg.AudioBaseURL, "/"),
		voice:           cfg.Voice,
		transferMessage: cfg.TransferMessage,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
}

func (c *TwilioClient) Answer(_ context.Context, callID string) Result {
	return c.record("answer", callID, ok())
}

// PlayAudio parks the clip in the audio cache and redirects the call to a
// <Play> of its public URL.
func (c *TwilioClient) PlayAudio(_ context.Context, callID string, audio []byte) Result {
	if c.audio == nil || c.audioBaseURL == "" {
		return c.record("play", callID, failed(fmt.Errorf("twilio: audio hosting not configured")))
	}
	if len(audio) == 0 {
		return c.record("play", callID, failed(fmt.Errorf("twilio: audio required")))
	}
	id := c.audio.Put(audio)
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoicePlay{Url: fmt.Sprintf("%s/%s.mp3", c.audioBaseURL, id)},
	})
	if err != nil {
		return c.record("play", callID, failed(fmt.Errorf("twilio: render play: %w", err)))
	}
	return c.record("play", callID, c.update(callID, doc))
}

func (c *TwilioClient) Transfer(_ context.Context, callID, target string) Result {
	if strings.TrimSpace(target) == "" {
		return c.record("transfer", callID, failed(fmt.Errorf("twilio: transfer target required")))
	}
	var verbs []twiml.Element
	if c.transferMessage != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: c.transferMessage, Voice: c.voice})
	}
	verbs = append(verbs, &twiml.VoiceDial{Number: target})
	doc, err := twiml.Voice(verbs)
	if err != nil {
		return c.record("transfer", callID, failed(fmt.Errorf("twilio: render transfer: %w", err)))
	}
	return c.record("transfer", callID, c.update(callID, doc))
}

func (c *TwilioClient) update(callID, doc string) Result {
	if strings.TrimSpace(callID) == "" {
		return failed(fmt.Errorf("twilio: call sid required"))
	}
	params := &twilioapi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := c.api.UpdateCall(callID, params); err != nil {
		return failed(fmt.Errorf("twilio: update call: %w", err))
	}
	return ok()
}

func (c *TwilioClient) record(action, callID string, result Result) Result {
	c.metrics.ObserveTelephony("twilio", action, result.Success)
	if !result.Success {
		c.logger.Warn("twilio: action failed", "call_id", callID, "action", action, "error", result.Error)
	}
	return result
}
