package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/wolfman30/moving-call-relay/internal/dialpad"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/internal/relay"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

type callEventDispatcher interface {
	OnCallEvent(ctx context.Context, ev relay.CallEvent) relay.Directive
}

// DialpadWebhookHandlerConfig configures DialpadWebhookHandler.
type DialpadWebhookHandlerConfig struct {
	Dispatcher    callEventDispatcher
	WebhookSecret string
	CallRouterID  string
	Metrics       *metrics.RelayMetrics
	Logger        *logging.Logger
}

// DialpadWebhookHandler serves Dialpad call router and call event webhooks.
// Every response is 200 so Dialpad does not retry or drop the call.
type DialpadWebhookHandler struct {
	dispatcher callEventDispatcher
	secret     string
	renderer   dialpad.Renderer
	metrics    *metrics.RelayMetrics
	logger     *logging.Logger
}

// NewDialpadWebhookHandler creates a handler for Dialpad call events.
func NewDialpadWebhookHandler(cfg DialpadWebhookHandlerConfig) *DialpadWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.WebhookSecret == "" {
		cfg.Logger.Warn("dialpad webhook secret not set; accepting unsigned JSON webhooks")
	}
	return &DialpadWebhookHandler{
		dispatcher: cfg.Dispatcher,
		secret:     cfg.WebhookSecret,
		renderer:   dialpad.NewRenderer(cfg.CallRouterID),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Root handles POST / (the call router target).
func (h *DialpadWebhookHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dialpad.RouteAuto)
}

// CallRouting handles POST /webhook/call-routing.
func (h *DialpadWebhookHandler) CallRouting(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dialpad.RouteCallRouting)
}

// IncomingCall handles POST /webhook/incoming-call.
func (h *DialpadWebhookHandler) IncomingCall(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dialpad.RouteIncomingCall)
}

// Speech handles POST /webhook/speech.
func (h *DialpadWebhookHandler) Speech(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dialpad.RouteSpeech)
}

// Generic handles POST /webhook.
func (h *DialpadWebhookHandler) Generic(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dialpad.RouteGeneric)
}

func (h *DialpadWebhookHandler) handle(w http.ResponseWriter, r *http.Request, route dialpad.Route) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("dialpad: failed to read body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusOK, dialpad.Default())
		return
	}

	payload, err := dialpad.Decode(body, r.Header.Get("Content-Type"), h.secret)
	if err != nil {
		h.metrics.IncRejected("dialpad")
		h.logger.Warn("dialpad: rejected webhook", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusOK, dialpad.Default())
		return
	}

	ev := payload.Event(route)
	dir := h.dispatcher.OnCallEvent(r.Context(), ev)
	h.logger.Debug("dialpad: directive",
		"path", r.URL.Path,
		"call_id", ev.CallID,
		"event_kind", ev.Kind,
		"directive", dir.Kind,
	)
	writeJSON(w, http.StatusOK, h.renderer.Render(dir))
}
