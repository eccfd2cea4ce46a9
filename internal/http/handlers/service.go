package handlers

import (
	"io"
	"net/http"

	"github.com/wolfman30/moving-call-relay/internal/dialpad"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// ServiceHandler serves health, echo and catch-all endpoints.
type ServiceHandler struct {
	logger *logging.Logger
}

func NewServiceHandler(logger *logging.Logger) *ServiceHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ServiceHandler{logger: logger}
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WebhookTest echoes receipt of any payload, for wiring up a provider.
func (h *ServiceHandler) WebhookTest(w http.ResponseWriter, r *http.Request) {
	h.logRequest("test webhook received", r)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// CatchAll acknowledges requests to unknown paths so misconfigured
// webhooks show up in logs instead of failing calls.
func (h *ServiceHandler) CatchAll(w http.ResponseWriter, r *http.Request) {
	h.logRequest("unrouted request", r)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ServiceHandler) logRequest(msg string, r *http.Request) {
	args := []any{"method", r.Method, "path", r.URL.Path, "content_type", r.Header.Get("Content-Type")}
	if dialpad.IsJWT(r.Header.Get("Content-Type")) {
		args = append(args, "body", "[JWT token]")
	} else if body, err := io.ReadAll(io.LimitReader(r.Body, 4096)); err == nil && len(body) > 0 {
		args = append(args, "body", string(body))
	}
	h.logger.Info(msg, args...)
}
