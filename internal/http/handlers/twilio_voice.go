package handlers

import (
	"net/http"

	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/internal/relay"
	"github.com/wolfman30/moving-call-relay/internal/twiliovoice"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

// TwilioVoiceHandlerConfig configures TwilioVoiceHandler. A nil Validator
// disables signature checks.
type TwilioVoiceHandlerConfig struct {
	Dispatcher callEventDispatcher
	Renderer   twiliovoice.Renderer
	Validator  *twiliovoice.SignatureValidator
	Metrics    *metrics.RelayMetrics
	Logger     *logging.Logger
}

// TwilioVoiceHandler serves the Twilio voice, speech and status webhooks.
type TwilioVoiceHandler struct {
	dispatcher callEventDispatcher
	renderer   twiliovoice.Renderer
	validator  *twiliovoice.SignatureValidator
	metrics    *metrics.RelayMetrics
	logger     *logging.Logger
}

// NewTwilioVoiceHandler creates a handler for Twilio voice, speech and status
// callbacks. Signatures are checked only when a Validator is set.
func NewTwilioVoiceHandler(cfg TwilioVoiceHandlerConfig) *TwilioVoiceHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Renderer.Voice == "" {
		cfg.Renderer = twiliovoice.NewRenderer("")
	}
	return &TwilioVoiceHandler{
		dispatcher: cfg.Dispatcher,
		renderer:   cfg.Renderer,
		validator:  cfg.Validator,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Voice handles POST /twilio/voice, the first webhook of a call.
func (h *TwilioVoiceHandler) Voice(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, twiliovoice.Form.VoiceEvent)
}

// Speech handles POST /twilio/speech, the <Gather> action.
func (h *TwilioVoiceHandler) Speech(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, twiliovoice.Form.SpeechEvent)
}

// Status handles POST /twilio/status callbacks.
func (h *TwilioVoiceHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, twiliovoice.Form.StatusEvent)
}

func (h *TwilioVoiceHandler) handle(w http.ResponseWriter, r *http.Request, toEvent func(twiliovoice.Form) relay.CallEvent) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	form, err := twiliovoice.ParseForm(r)
	if err != nil {
		h.logger.Warn("twilio: failed to parse webhook", "path", r.URL.Path, "error", err)
		h.writeTwiML(w, fallbackTwiML)
		return
	}
	if h.validator != nil && !h.validator.Valid(r, form.Params) {
		h.metrics.IncRejected("twilio")
		h.logger.Warn("twilio: invalid signature", "path", r.URL.Path, "call_id", form.CallSID)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	dir := h.dispatcher.OnCallEvent(r.Context(), toEvent(form))
	doc, err := h.renderer.Render(dir, form.To)
	if err != nil {
		h.logger.Error("twilio: failed to render twiml", "call_id", form.CallSID, "error", err)
		doc = fallbackTwiML
	}
	h.writeTwiML(w, doc)
}

func (h *TwilioVoiceHandler) writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
