// Package relay turns provider-neutral call events into conversation updates
// and response directives.
package relay

import "github.com/wolfman30/moving-call-relay/internal/callgraph"

// Kind classifies an inbound call event.
type Kind string

const (
	KindRouting   Kind = "routing"
	KindRinging   Kind = "ringing"
	KindConnected Kind = "connected"
	KindSpeech    Kind = "speech"
	KindHangup    Kind = "hangup"
	KindOther     Kind = "other"
)

// CallEvent is one webhook delivery after provider decoding.
type CallEvent struct {
	CallID           string
	MasterCallID     string
	EntryPointCallID string
	OperatorCallID   string
	Kind             Kind
	// State is the raw provider state, kept for logging.
	State  string
	Speech string
	// CreateIfMissing starts a conversation for speech on an unknown call
	// instead of ending the call.
	CreateIfMissing bool
	// Fields carries extra payload values worth logging (durations, links).
	Fields map[string]string
}

// Refs returns the call-graph references carried by the event.
func (e CallEvent) Refs() callgraph.Refs {
	return callgraph.Refs{
		MasterCallID:     e.MasterCallID,
		EntryPointCallID: e.EntryPointCallID,
		OperatorCallID:   e.OperatorCallID,
	}
}

// DirectiveKind is what the provider should do next.
type DirectiveKind string

const (
	// DirectivePrompt speaks Message and listens for the answer.
	DirectivePrompt DirectiveKind = "prompt"
	// DirectiveTransfer speaks Message and connects the caller to Target.
	DirectiveTransfer DirectiveKind = "transfer"
	// DirectiveAck acknowledges the event without changing the call.
	DirectiveAck DirectiveKind = "ack"
	// DirectiveDefault hands the call back to the provider's default routing.
	DirectiveDefault DirectiveKind = "default"
	// DirectiveHangup speaks Message and ends the call.
	DirectiveHangup DirectiveKind = "hangup"
)

// Directive is the provider-neutral response to a CallEvent.
type Directive struct {
	Kind    DirectiveKind
	Message string
	Target  string
	// CallID is the primary identifier of the conversation, when one exists.
	CallID string
}
