package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/moving-call-relay/internal/callgraph"
	"github.com/wolfman30/moving-call-relay/internal/conversation"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/internal/telephony"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// Spoken prompts.
const (
	GreetingTemplate          = "Thank you for calling %s, where we make moving easy. This is our virtual assistant. I'd be happy to help gather some information about your move. May I have your name please?"
	ConnectedGreetingTemplate = "Thank you for calling %s. I'm your virtual assistant. How can I help you with your move today?"
	LostTrackMessage          = "I'm sorry, but I've lost track of our conversation. Please call back."
)

const liveActionTimeout = 20 * time.Second

// Config wires a Dispatcher. Actions and Synthesizer are only needed in
// live-action mode.
type Config struct {
	// Provider labels metrics and logs, e.g. "dialpad" or "twilio".
	Provider          string
	Registry          *callgraph.Registry
	Engine            *conversation.Engine
	Greeting          string
	ConnectedGreeting string
	TransferTarget    string
	// LiveActions makes the dispatcher also drive the call through Actions:
	// answer new ringing calls, play prompts as synthesized audio, transfer.
	LiveActions bool
	Actions     telephony.Actions
	Synthesizer conversation.Synthesizer
	Metrics     *metrics.RelayMetrics
	Logger      *logging.Logger
}

// Dispatcher implements the call event flow shared by every provider.
type Dispatcher struct {
	provider          string
	registry          *callgraph.Registry
	engine            *conversation.Engine
	greeting          string
	connectedGreeting string
	transferTarget    string
	live              bool
	actions           telephony.Actions
	synth             conversation.Synthesizer
	metrics           *metrics.RelayMetrics
	logger            *logging.Logger

	background sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for one telephony provider. Registry and
// Engine are required; live call-control actions run only when LiveActions is
// set and Actions is non-nil.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Registry == nil || cfg.Engine == nil {
		panic("relay: registry and engine are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Provider == "" {
		cfg.Provider = "unknown"
	}
	if cfg.Greeting == "" {
		cfg.Greeting = Greeting("")
	}
	if cfg.ConnectedGreeting == "" {
		cfg.ConnectedGreeting = ConnectedGreeting("")
	}
	live := cfg.LiveActions && cfg.Actions != nil
	if cfg.LiveActions && !live {
		cfg.Logger.Warn("live actions requested without a telephony client; disabled", "provider", cfg.Provider)
	}
	return &Dispatcher{
		provider:          cfg.Provider,
		registry:          cfg.Registry,
		engine:            cfg.Engine,
		greeting:          cfg.Greeting,
		connectedGreeting: cfg.ConnectedGreeting,
		transferTarget:    cfg.TransferTarget,
		live:              live,
		actions:           cfg.Actions,
		synth:             cfg.Synthesizer,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger.With("provider", cfg.Provider),
	}
}

// OnCallEvent applies ev to the registry and returns the directive to send
// back. It never fails: malformed events yield DirectiveDefault and upstream
// failures are absorbed into fallback prompts.
func (d *Dispatcher) OnCallEvent(ctx context.Context, ev CallEvent) Directive {
	started := time.Now()
	dir := d.dispatch(ctx, ev)
	d.metrics.ObserveWebhook(d.provider, string(ev.Kind), string(dir.Kind), time.Since(started).Seconds())
	return dir
}

func (d *Dispatcher) dispatch(ctx context.Context, ev CallEvent) Directive {
	callID := strings.TrimSpace(ev.CallID)
	if callID == "" {
		d.logger.Warn("call event without call id", "event_kind", ev.Kind, "state", ev.State)
		return Directive{Kind: DirectiveDefault}
	}
	logger := d.logger.With("call_id", callID, "event_kind", ev.Kind)

	switch ev.Kind {
	case KindRouting:
		rec, created, ok := d.begin(logger, callID, ev.Refs(), d.greeting)
		if !ok {
			return Directive{Kind: DirectiveDefault}
		}
		// Repeated routing requests replay the question the caller still owes us.
		message := d.greeting
		if !created {
			message = lastAssistantMessage(rec, d.greeting)
		}
		return d.prompt(ctx, callID, rec.CallID, message)

	case KindRinging, KindConnected:
		greeting := d.greeting
		if ev.Kind == KindConnected {
			greeting = d.connectedGreeting
		}
		rec, created, ok := d.begin(logger, callID, ev.Refs(), greeting)
		if !ok {
			return Directive{Kind: DirectiveDefault}
		}
		if !created {
			return Directive{Kind: DirectiveAck, CallID: rec.CallID}
		}
		if ev.Kind == KindRinging {
			d.answer(ctx, callID)
		}
		return d.prompt(ctx, callID, rec.CallID, greeting)

	case KindSpeech:
		return d.speech(ctx, logger, callID, ev)

	case KindHangup:
		removed := d.registry.RemoveGraph(callID)
		args := []any{"removed_ids", removed}
		for k, v := range ev.Fields {
			args = append(args, k, v)
		}
		logger.Info("call ended", args...)
		return Directive{Kind: DirectiveAck}

	default:
		logger.Debug("unhandled call state", "state", ev.State)
		return Directive{Kind: DirectiveAck}
	}
}

// begin creates or joins the conversation for callID. The greeting is
// recorded as the first assistant message of a new conversation.
func (d *Dispatcher) begin(logger *logging.Logger, callID string, refs callgraph.Refs, greeting string) (callgraph.Record, bool, bool) {
	rec, outcome, err := d.registry.CreateOrJoin(callID, refs)
	if err != nil {
		logger.Warn("failed to create conversation", "error", err)
		return callgraph.Record{}, false, false
	}
	switch outcome {
	case callgraph.OutcomeCreated:
		d.registry.AppendMessage(callID, callgraph.RoleAssistant, greeting)
		logger.Info("conversation started", "master_call_id", refs.MasterCallID, "operator_call_id", refs.OperatorCallID)
	case callgraph.OutcomeJoined:
		d.metrics.IncLinks()
		logger.Info("call joined existing conversation", "conversation_id", rec.CallID)
	}
	return rec, outcome == callgraph.OutcomeCreated, true
}

func (d *Dispatcher) speech(ctx context.Context, logger *logging.Logger, callID string, ev CallEvent) Directive {
	text := strings.TrimSpace(ev.Speech)
	if text == "" {
		logger.Debug("no speech detected")
		return Directive{Kind: DirectiveAck}
	}

	if _, ok := d.registry.GetByAnyID(callID); !ok {
		if !ev.CreateIfMissing {
			logger.Warn("speech for unknown conversation")
			return Directive{Kind: DirectiveHangup, Message: LostTrackMessage}
		}
		if _, _, err := d.registry.Create(callID, ev.Refs()); err != nil {
			logger.Warn("failed to create conversation for speech", "error", err)
			return Directive{Kind: DirectiveDefault}
		}
		logger.Info("conversation started from speech")
	}

	outcome, err := d.engine.RunTurn(ctx, callID, text)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		logger.Info("conversation ended before the reply was ready")
		if ev.CreateIfMissing {
			return Directive{Kind: DirectiveAck}
		}
		return Directive{Kind: DirectiveHangup, Message: LostTrackMessage}
	}
	if err != nil {
		logger.Error("speech turn failed", "error", err)
		return Directive{Kind: DirectiveTransfer, Message: conversation.FallbackMessage, Target: d.transferTarget}
	}

	if outcome.Transfer {
		logger.Info("transferring to specialist", "conversation_id", outcome.CallID, "fallback", outcome.Fallback)
		d.transfer(ctx, callID, outcome.Reply)
		return Directive{Kind: DirectiveTransfer, Message: outcome.Reply, Target: d.transferTarget, CallID: outcome.CallID}
	}
	return d.prompt(ctx, callID, outcome.CallID, outcome.Reply)
}

func (d *Dispatcher) prompt(ctx context.Context, callID, conversationID, message string) Directive {
	if d.live {
		d.play(ctx, callID, message)
	}
	return Directive{Kind: DirectivePrompt, Message: message, CallID: conversationID}
}

func (d *Dispatcher) answer(ctx context.Context, callID string) {
	if !d.live {
		return
	}
	d.runLive(ctx, func(ctx context.Context) {
		d.actions.Answer(ctx, callID)
	})
}

func (d *Dispatcher) play(ctx context.Context, callID, message string) {
	if d.synth == nil {
		return
	}
	d.runLive(ctx, func(ctx context.Context) {
		audio, err := d.synth.Synthesize(ctx, message)
		if err != nil {
			d.logger.Warn("speech synthesis failed", "call_id", callID, "error", err)
			return
		}
		d.actions.PlayAudio(ctx, callID, audio)
	})
}

func (d *Dispatcher) transfer(ctx context.Context, callID, message string) {
	if !d.live || d.transferTarget == "" {
		return
	}
	d.runLive(ctx, func(ctx context.Context) {
		if d.synth != nil && message != "" {
			if audio, err := d.synth.Synthesize(ctx, message); err == nil {
				d.actions.PlayAudio(ctx, callID, audio)
			}
		}
		d.actions.Transfer(ctx, callID, d.transferTarget)
	})
}

// runLive performs telephony actions after the webhook has been answered.
func (d *Dispatcher) runLive(ctx context.Context, fn func(ctx context.Context)) {
	d.background.Add(1)
	go func() {
		defer d.background.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), liveActionTimeout)
		defer cancel()
		fn(actx)
	}()
}

// Wait blocks until background telephony actions have finished.
func (d *Dispatcher) Wait() {
	d.background.Wait()
}

func lastAssistantMessage(rec callgraph.Record, fallback string) string {
	for i := len(rec.Transcript) - 1; i >= 0; i-- {
		if rec.Transcript[i].Role == callgraph.RoleAssistant && rec.Transcript[i].Content != "" {
			return rec.Transcript[i].Content
		}
	}
	return fallback
}
