// Package handoff persists conversations that were transferred to a human
// specialist so the specialist can see what the caller already said.
package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/moving-call-relay/internal/callgraph"
)

// ErrNotFound is returned when no handoff exists for a call.
var ErrNotFound = errors.New("handoff: not found")

// Handoff is the snapshot of a conversation taken when it was transferred.
type Handoff struct {
	ID             string                 `json:"id"`
	CallID         string                 `json:"callId"`
	RelatedCallIDs []string               `json:"relatedCallIds"`
	CustomerInfo   callgraph.CustomerInfo `json:"customerInfo"`
	Transcript     []callgraph.Message    `json:"transcript"`
	State          callgraph.State        `json:"state"`
	Reason         string                 `json:"reason,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// Store persists handoffs. Saving the same call twice replaces the earlier copy.
type Store interface {
	Save(ctx context.Context, h Handoff) error
	Get(ctx context.Context, callID string) (*Handoff, error)
	// List returns the most recent handoffs first.
	List(ctx context.Context, limit int) ([]Handoff, error)
}

// FromRecord builds a handoff from a conversation snapshot.
func FromRecord(rec callgraph.Record, reason string, now time.Time) Handoff {
	related := append([]string{}, rec.RelatedCallIDs...)
	for _, id := range []string{rec.MasterCallID, rec.EntryPointCallID, rec.OperatorCallID} {
		if id != "" && id != rec.CallID && !contains(related, id) {
			related = append(related, id)
		}
	}
	return Handoff{
		ID:             uuid.NewString(),
		CallID:         rec.CallID,
		RelatedCallIDs: related,
		CustomerInfo:   rec.CustomerInfo,
		Transcript:     append([]callgraph.Message{}, rec.Transcript...),
		State:          rec.State,
		Reason:         reason,
		CreatedAt:      now.UTC(),
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
