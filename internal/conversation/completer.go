package conversation

import (
	"context"

	"github.com/wolfman30/moving-call-relay/internal/callgraph"
)

// Canned replies spoken by the assistant.
const (
	FallbackMessage = "I'm having trouble processing that. Let me connect you with one of our moving specialists."
	TransferMessage = "Thank you for providing that information. I'll connect you with one of our moving specialists who can help you further."
)

// Request is the conversation context handed to the model for one turn.
type Request struct {
	CallID       string
	Transcript   []callgraph.Message
	State        callgraph.State
	CustomerInfo callgraph.CustomerInfo
}

// Result is the model's decision for one turn.
type Result struct {
	NextQuestion    string
	TransferToHuman bool
	NewState        callgraph.State
	// FieldUpdates holds newly extracted customer info keyed by field name.
	FieldUpdates map[string]string
}

// Completer produces the next assistant turn.
type Completer interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// FallbackResult is used whenever the model cannot be reached or its answer
// cannot be parsed: the caller is handed to a specialist.
func FallbackResult() Result {
	return Result{
		NextQuestion:    FallbackMessage,
		TransferToHuman: true,
		NewState:        callgraph.StateError,
	}
}
