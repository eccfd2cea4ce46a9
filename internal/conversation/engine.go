package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/moving-call-relay/internal/callgraph"
	"github.com/wolfman30/moving-call-relay/internal/handoff"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// ErrConversationNotFound is returned when a turn targets a call that is not
// (or no longer) registered, e.g. because it hung up mid-turn.
var ErrConversationNotFound = errors.New("conversation: not found")

// Handoff reasons recorded on saved handoffs.
const (
	ReasonTransferRequested = "transfer_requested"
	ReasonAIFallback        = "ai_fallback"
)

// HandoffNotifier is told about every saved handoff.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, h handoff.Handoff) error
}

// EngineConfig wires the engine's collaborators. Handoffs and Notifier are
// optional.
type EngineConfig struct {
	Registry    *callgraph.Registry
	Completer   Completer
	Handoffs    handoff.Store
	Notifier    HandoffNotifier
	Metrics     *metrics.RelayMetrics
	Logger      *logging.Logger
	SaveTimeout time.Duration
	Now         func() time.Time
}

// TurnOutcome is what the telephony layer needs to answer a speech event.
type TurnOutcome struct {
	// CallID is the primary identifier of the conversation after the turn.
	CallID   string
	Reply    string
	Transfer bool
	State    callgraph.State
	// Fallback is true when the model failed and the canned reply was used.
	Fallback bool
}

// Engine runs speech turns: record what the caller said, ask the model what
// to say next, fold the answer back into the conversation.
type Engine struct {
	registry    *callgraph.Registry
	completer   Completer
	handoffs    handoff.Store
	notifier    HandoffNotifier
	metrics     *metrics.RelayMetrics
	logger      *logging.Logger
	saveTimeout time.Duration
	now         func() time.Time

	turns    *turnLocks
	inflight sync.WaitGroup
}

// NewEngine creates an Engine. Registry and Completer are required.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Registry == nil {
		panic("conversation: registry cannot be nil")
	}
	if cfg.Completer == nil {
		panic("conversation: completer cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		registry:    cfg.Registry,
		completer:   cfg.Completer,
		handoffs:    cfg.Handoffs,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		saveTimeout: cfg.SaveTimeout,
		now:         cfg.Now,
		turns:       newTurnLocks(),
	}
}

// RunTurn processes one utterance for the conversation owning anyID. The
// model call happens outside the registry lock; turns for the same
// conversation are serialized so their replies land in order.
//
// A conversation removed while the model was thinking yields
// ErrConversationNotFound and the model's answer is discarded.
func (e *Engine) RunTurn(ctx context.Context, anyID, speech string) (TurnOutcome, error) {
	speech = strings.TrimSpace(speech)
	unlock, ok := e.lockConversation(anyID)
	if !ok {
		return TurnOutcome{}, ErrConversationNotFound
	}
	defer unlock()

	if !e.registry.AppendMessage(anyID, callgraph.RoleCustomer, speech) {
		return TurnOutcome{}, ErrConversationNotFound
	}
	snapshot, ok := e.registry.GetByAnyID(anyID)
	if !ok {
		return TurnOutcome{}, ErrConversationNotFound
	}

	logger := e.logger.With("call_id", snapshot.CallID)
	started := time.Now()
	result, err := e.completer.Complete(ctx, Request{
		CallID:       snapshot.CallID,
		Transcript:   snapshot.Transcript,
		State:        snapshot.State,
		CustomerInfo: snapshot.CustomerInfo,
	})
	fallback := err != nil
	if fallback {
		logger.Warn("ai completion failed, using fallback", "error", err)
		result = FallbackResult()
	}
	e.metrics.ObserveCompletion(fallback, time.Since(started).Seconds())

	reply := result.NextQuestion
	if reply == "" && result.TransferToHuman {
		reply = TransferMessage
	}
	applied := e.registry.Apply(anyID, callgraph.Update{
		Fields: result.FieldUpdates,
		State:  result.NewState,
		Reply:  reply,
	})
	if !applied {
		logger.Info("conversation ended during turn, discarding reply")
		return TurnOutcome{}, ErrConversationNotFound
	}

	final, ok := e.registry.GetByAnyID(anyID)
	if !ok {
		return TurnOutcome{}, ErrConversationNotFound
	}
	outcome := TurnOutcome{
		CallID:   final.CallID,
		Reply:    reply,
		Transfer: result.TransferToHuman,
		State:    final.State,
		Fallback: fallback,
	}
	if outcome.Transfer {
		reason := ReasonTransferRequested
		if fallback {
			reason = ReasonAIFallback
		}
		e.saveHandoff(final, reason)
	}
	return outcome, nil
}

// lockConversation holds the turn lock of every identifier of the
// conversation owning anyID. A link only ever adds identifiers, so a turn
// still running under a pre-link set shares at least one key with any turn
// started on the merged conversation. The set is re-read after locking and
// the locks are retaken until it is stable.
func (e *Engine) lockConversation(anyID string) (func(), bool) {
	for {
		rec, ok := e.registry.GetByAnyID(anyID)
		if !ok {
			return nil, false
		}
		held := rec.Identifiers()
		unlock := e.turns.lockAll(held)

		current, ok := e.registry.GetByAnyID(anyID)
		if !ok {
			unlock()
			return nil, false
		}
		if containsAll(held, current.Identifiers()) {
			return unlock, true
		}
		unlock()
	}
}

func containsAll(set, ids []string) bool {
	for _, id := range ids {
		found := false
		for _, have := range set {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// saveHandoff persists and announces the handoff in the background so the
// webhook reply is not delayed. Wait blocks until these finish.
func (e *Engine) saveHandoff(rec callgraph.Record, reason string) {
	if e.handoffs == nil && e.notifier == nil {
		return
	}
	h := handoff.FromRecord(rec, reason, e.now())

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.saveTimeout)
		defer cancel()

		logger := e.logger.With("call_id", h.CallID, "handoff_id", h.ID)
		if e.handoffs != nil {
			err := e.handoffs.Save(ctx, h)
			e.metrics.ObserveHandoff(err)
			if err != nil {
				logger.Error("failed to save handoff", "error", err)
			} else {
				logger.Info("handoff saved", "reason", reason, "transcript_len", len(h.Transcript))
			}
		}
		if e.notifier != nil {
			if err := e.notifier.NotifyHandoff(ctx, h); err != nil {
				logger.Warn("failed to send handoff alert", "error", err)
			}
		}
	}()
}

// Wait blocks until every background handoff save has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
