package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moving-call-relay/internal/callgraph"
	"github.com/wolfman30/moving-call-relay/internal/conversation"
	"github.com/wolfman30/moving-call-relay/internal/handoff"
	"github.com/wolfman30/moving-call-relay/internal/telephony"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// AdminCallsHandlerConfig configures AdminCallsHandler. Actions is keyed by
// provider name ("dialpad", "twilio"); Handoffs and Synthesizer are optional.
type AdminCallsHandlerConfig struct {
	Registry        *callgraph.Registry
	Handoffs        handoff.Store
	Actions         map[string]telephony.Actions
	Synthesizer     conversation.Synthesizer
	DefaultProvider string
	// DefaultTargets is the transfer destination per provider when a
	// request names none.
	DefaultTargets map[string]string
	Logger         *logging.Logger
}

// AdminCallsHandler exposes live conversations and saved handoffs to
// dispatch staff, and lets them step into a call.
type AdminCallsHandler struct {
	registry        *callgraph.Registry
	handoffs        handoff.Store
	actions         map[string]telephony.Actions
	synth           conversation.Synthesizer
	defaultProvider string
	defaultTargets  map[string]string
	logger          *logging.Logger
}

// NewAdminCallsHandler creates the staff-facing call handler. Without an
// explicit DefaultProvider the first configured provider by name is used.
func NewAdminCallsHandler(cfg AdminCallsHandlerConfig) *AdminCallsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DefaultProvider == "" && len(cfg.Actions) > 0 {
		names := make([]string, 0, len(cfg.Actions))
		for name := range cfg.Actions {
			names = append(names, name)
		}
		sort.Strings(names)
		cfg.DefaultProvider = names[0]
	}
	return &AdminCallsHandler{
		registry:        cfg.Registry,
		handoffs:        cfg.Handoffs,
		actions:         cfg.Actions,
		synth:           cfg.Synthesizer,
		defaultProvider: cfg.DefaultProvider,
		defaultTargets:  cfg.DefaultTargets,
		logger:          cfg.Logger,
	}
}

// CallSummary is one row of the live call list.
type CallSummary struct {
	CallID         string                 `json:"callId"`
	RelatedCallIDs []string               `json:"relatedCallIds"`
	State          callgraph.State        `json:"currentState"`
	CustomerInfo   callgraph.CustomerInfo `json:"customerInfo"`
	MessageCount   int                    `json:"messageCount"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// ListCalls handles GET /admin/calls.
func (h *AdminCallsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List()
	calls := make([]CallSummary, 0, len(records))
	for _, rec := range records {
		calls = append(calls, CallSummary{
			CallID:         rec.CallID,
			RelatedCallIDs: rec.RelatedCallIDs,
			State:          rec.State,
			CustomerInfo:   rec.CustomerInfo,
			MessageCount:   len(rec.Transcript),
			CreatedAt:      rec.CreatedAt,
			UpdatedAt:      rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls, "total": len(calls)})
}

// GetCall handles GET /admin/calls/{callID}; any linked identifier works.
func (h *AdminCallsHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.registry.GetByAnyID(chi.URLParam(r, "callID"))
	if !ok {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteCall handles DELETE /admin/calls/{callID}, dropping the whole graph.
func (h *AdminCallsHandler) DeleteCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	removed := h.registry.RemoveGraph(callID)
	if removed == 0 {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	h.logger.Info("admin removed conversation", "call_id", callID, "removed_ids", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type transferRequest struct {
	Provider string `json:"provider"`
	Target   string `json:"target"`
}

// TransferCall handles POST /admin/calls/{callID}/transfer.
func (h *AdminCallsHandler) TransferCall(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	actions, provider, ok := h.provider(req.Provider)
	if !ok {
		jsonError(w, "unknown provider", http.StatusBadRequest)
		return
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		target = h.defaultTargets[provider]
	}
	if target == "" {
		jsonError(w, "target required", http.StatusBadRequest)
		return
	}
	callID := chi.URLParam(r, "callID")
	result := actions.Transfer(r.Context(), callID, target)
	h.logger.Info("admin transfer", "call_id", callID, "provider", provider, "success", result.Success)
	writeResult(w, result)
}

type sayRequest struct {
	Provider string `json:"provider"`
	Text     string `json:"text"`
}

// SayToCall handles POST /admin/calls/{callID}/say: the text is synthesized
// and played into the live call.
func (h *AdminCallsHandler) SayToCall(w http.ResponseWriter, r *http.Request) {
	var req sayRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		jsonError(w, "text required", http.StatusBadRequest)
		return
	}
	if h.synth == nil {
		jsonError(w, "speech synthesis not configured", http.StatusServiceUnavailable)
		return
	}
	actions, provider, ok := h.provider(req.Provider)
	if !ok {
		jsonError(w, "unknown provider", http.StatusBadRequest)
		return
	}
	audio, err := h.synth.Synthesize(r.Context(), text)
	if err != nil {
		h.logger.Error("admin say: synthesis failed", "error", err)
		jsonError(w, "speech synthesis failed", http.StatusBadGateway)
		return
	}
	callID := chi.URLParam(r, "callID")
	result := actions.PlayAudio(r.Context(), callID, audio)
	if result.Success {
		h.registry.AppendMessage(callID, callgraph.RoleAssistant, text)
	}
	h.logger.Info("admin say", "call_id", callID, "provider", provider, "success", result.Success)
	writeResult(w, result)
}

// ListHandoffs handles GET /admin/handoffs?limit=N, newest first.
func (h *AdminCallsHandler) ListHandoffs(w http.ResponseWriter, r *http.Request) {
	if h.handoffs == nil {
		jsonError(w, "handoff store not configured", http.StatusServiceUnavailable)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.handoffs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list handoffs", "error", err)
		jsonError(w, "failed to list handoffs", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []handoff.Handoff{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"handoffs": list, "total": len(list)})
}

// GetHandoff handles GET /admin/handoffs/{callID}.
func (h *AdminCallsHandler) GetHandoff(w http.ResponseWriter, r *http.Request) {
	if h.handoffs == nil {
		jsonError(w, "handoff store not configured", http.StatusServiceUnavailable)
		return
	}
	callID := chi.URLParam(r, "callID")
	item, err := h.handoffs.Get(r.Context(), callID)
	if errors.Is(err, handoff.ErrNotFound) {
		jsonError(w, "handoff not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load handoff", "call_id", callID, "error", err)
		jsonError(w, "failed to load handoff", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *AdminCallsHandler) provider(name string) (telephony.Actions, string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = h.defaultProvider
	}
	actions, ok := h.actions[name]
	if !ok || actions == nil {
		return nil, name, false
	}
	return actions, name, true
}
