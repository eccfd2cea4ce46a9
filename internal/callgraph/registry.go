package callgraph

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// ErrEmptyCallID is returned by Create when no primary identifier is given.
var ErrEmptyCallID = errors.New("callgraph: call id required")

// Registry owns every live conversation and the identifier index that maps any
// known call identifier (primary, master, entry-point, operator, related) to
// the primary key of exactly one record.
//
// Every method runs under a single lock, so each operation is atomic with
// respect to concurrent webhook deliveries. Lookups for unknown identifiers are
// a normal outcome and are reported through boolean results.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	index   map[string]string

	now    func() time.Time
	strict bool
	logger *logging.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStrictTransitions makes AdvanceState and Apply reject transitions that
// are not in the Transitions table.
func WithStrictTransitions(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		index:   make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a conversation for callID, or returns the existing one when
// callID is already known (creation is idempotent so redelivered webhooks are
// harmless). Each reference that already resolves to another conversation is
// linked; references that resolve to nothing become aliases of the result.
//
// created is true only when a new logical conversation was started. It is
// false when callID was already known or was absorbed into an existing
// conversation through one of its references.
func (r *Registry) Create(callID string, refs Refs) (rec Record, created bool, err error) {
	rec, outcome, err := r.CreateOrJoin(callID, refs)
	return rec, outcome == OutcomeCreated, err
}

// CreateOutcome says what CreateOrJoin did with a call identifier.
type CreateOutcome int

const (
	// OutcomeCreated started a new conversation.
	OutcomeCreated CreateOutcome = iota + 1
	// OutcomeKnown found callID already registered.
	OutcomeKnown
	// OutcomeJoined attached a new callID to an existing conversation
	// through one of its references.
	OutcomeJoined
)

// CreateOrJoin behaves like Create and reports, under the same lock, whether
// callID was new, already known or joined to an existing conversation.
func (r *Registry) CreateOrJoin(callID string, refs Refs) (Record, CreateOutcome, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return Record{}, 0, ErrEmptyCallID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Resolve everything before mutating so one merge cannot re-point an
	// identifier that a later reference still needs to find.
	var linked []*Record
	seen := make(map[*Record]bool)
	known := false
	if self := r.resolveLocked(callID); self != nil {
		linked = append(linked, self)
		seen[self] = true
		known = true
	}
	var unknown []string
	for _, ref := range refs.ordered() {
		ref = cleanRef(ref, callID)
		if ref == "" {
			continue
		}
		existing := r.resolveLocked(ref)
		if existing == nil {
			unknown = append(unknown, ref)
			continue
		}
		if !seen[existing] {
			linked = append(linked, existing)
			seen[existing] = true
		}
	}

	now := r.now()
	if len(linked) == 0 {
		fresh := &Record{
			CallID:           callID,
			MasterCallID:     cleanRef(refs.MasterCallID, callID),
			EntryPointCallID: cleanRef(refs.EntryPointCallID, callID),
			OperatorCallID:   cleanRef(refs.OperatorCallID, callID),
			RelatedCallIDs:   []string{},
			Transcript:       []Message{},
			State:            StateGreeting,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		r.records[callID] = fresh
		for _, id := range fresh.Identifiers() {
			r.index[id] = callID
		}
		r.logger.Debug("conversation created", "call_id", callID)
		return fresh.clone(), OutcomeCreated, nil
	}

	survivor := linked[0]
	for _, candidate := range linked[1:] {
		if candidate.CreatedAt.Before(survivor.CreatedAt) {
			survivor = candidate
		}
	}
	for _, other := range linked {
		if other != survivor {
			r.mergeLocked(survivor, other, now)
		}
	}
	for _, id := range append([]string{callID}, unknown...) {
		if _, ok := r.index[id]; ok {
			continue
		}
		survivor.addRelated(id)
		r.index[id] = survivor.CallID
	}
	if known {
		return survivor.clone(), OutcomeKnown, nil
	}
	return survivor.clone(), OutcomeJoined, nil
}

// Get looks up a conversation by its exact primary identifier.
func (r *Registry) Get(callID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// GetByAnyID resolves any identifier in a conversation's call graph.
func (r *Registry) GetByAnyID(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.resolveLocked(id)
	if rec == nil {
		return Record{}, false
	}
	return rec.clone(), true
}

// Link declares that callID and relatedID belong to the same conversation.
// When both resolve to distinct records the younger one is absorbed into the
// older. It reports false when either side is unknown.
func (r *Registry) Link(callID, relatedID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.resolveLocked(callID)
	b := r.resolveLocked(relatedID)
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	survivor, absorbed := older(a, b)
	r.mergeLocked(survivor, absorbed, r.now())
	return true
}

// AppendMessage adds one transcript entry to the conversation owning anyID.
func (r *Registry) AppendMessage(anyID string, role Role, content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.resolveLocked(anyID)
	if rec == nil {
		return false
	}
	now := r.now()
	rec.Transcript = append(rec.Transcript, Message{Role: role, Content: content, Timestamp: now})
	rec.UpdatedAt = now
	return true
}

// UpdateCustomerInfo applies every known, non-empty field in updates.
func (r *Registry) UpdateCustomerInfo(anyID string, updates map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.resolveLocked(anyID)
	if rec == nil {
		return false
	}
	for name, value := range updates {
		rec.CustomerInfo.Set(name, value)
	}
	rec.UpdatedAt = r.now()
	return true
}

// AdvanceState sets the conversation state. In loose mode (the default) any
// non-empty state is accepted; in strict mode the Transitions table applies.
func (r *Registry) AdvanceState(anyID string, next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.resolveLocked(anyID)
	if rec == nil {
		return false
	}
	if !r.setStateLocked(rec, next) {
		return false
	}
	rec.UpdatedAt = r.now()
	return true
}

// Apply folds one AI turn into the conversation atomically: field updates,
// state change, then the assistant reply. A rejected state change does not
// prevent the rest of the update.
func (r *Registry) Apply(anyID string, u Update) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.resolveLocked(anyID)
	if rec == nil {
		return false
	}
	now := r.now()
	for name, value := range u.Fields {
		rec.CustomerInfo.Set(name, value)
	}
	if u.State != "" {
		r.setStateLocked(rec, u.State)
	}
	if u.Reply != "" {
		rec.Transcript = append(rec.Transcript, Message{Role: RoleAssistant, Content: u.Reply, Timestamp: now})
	}
	rec.UpdatedAt = now
	return true
}

// RemoveOne deletes the conversation whose primary identifier is callID,
// together with its aliases so none of them is left pointing at nothing.
// Identifiers that are only aliases are not accepted here.
func (r *Registry) RemoveOne(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[callID]
	if !ok {
		return false
	}
	r.dropLocked(rec)
	return true
}

// RemoveGraph resolves anyID and deletes the conversation along with every
// identifier in its call graph. It returns the number of identifiers removed.
func (r *Registry) RemoveGraph(anyID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.resolveLocked(anyID)
	if rec == nil {
		return 0
	}
	return r.dropLocked(rec)
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// List returns snapshots of every live conversation, oldest first.
func (r *Registry) List() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PruneIdle removes conversations with no activity for longer than maxIdle and
// returns their primary identifiers.
func (r *Registry) PruneIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var pruned []string
	for primary, rec := range r.records {
		if rec.UpdatedAt.Before(cutoff) {
			r.dropLocked(rec)
			pruned = append(pruned, primary)
		}
	}
	sort.Strings(pruned)
	return pruned
}

func (r *Registry) resolveLocked(id string) *Record {
	if id == "" {
		return nil
	}
	if rec, ok := r.records[id]; ok {
		return rec
	}
	if primary, ok := r.index[id]; ok {
		return r.records[primary]
	}
	return nil
}

// mergeLocked folds absorbed into survivor: survivor's non-empty fields win,
// absorbed transcript entries follow survivor's, and every identifier of
// absorbed is re-pointed at survivor.
func (r *Registry) mergeLocked(survivor, absorbed *Record, now time.Time) {
	survivor.CustomerInfo.FillFrom(absorbed.CustomerInfo)
	survivor.Transcript = append(survivor.Transcript, absorbed.Transcript...)
	for _, id := range absorbed.Identifiers() {
		survivor.addRelated(id)
		r.index[id] = survivor.CallID
	}
	for _, id := range survivor.Identifiers() {
		r.index[id] = survivor.CallID
	}
	delete(r.records, absorbed.CallID)
	survivor.UpdatedAt = now

	r.logger.Info("linked conversations",
		"call_id", survivor.CallID,
		"absorbed_call_id", absorbed.CallID,
		"related_count", len(survivor.RelatedCallIDs),
	)
}

func (r *Registry) dropLocked(rec *Record) int {
	removed := 0
	for _, id := range rec.Identifiers() {
		if primary, ok := r.index[id]; ok && primary == rec.CallID {
			delete(r.index, id)
			removed++
		}
	}
	delete(r.records, rec.CallID)
	return removed
}

func (r *Registry) setStateLocked(rec *Record, next State) bool {
	if next == "" {
		return false
	}
	if r.strict && !CanTransition(rec.State, next) {
		r.logger.Warn("rejected state transition",
			"call_id", rec.CallID,
			"from", rec.State,
			"to", next,
		)
		return false
	}
	rec.State = next
	return true
}

func older(a, b *Record) (survivor, absorbed *Record) {
	if b.CreatedAt.Before(a.CreatedAt) {
		return b, a
	}
	return a, b
}

func cleanRef(ref, self string) string {
	ref = strings.TrimSpace(ref)
	if ref == self {
		return ""
	}
	return ref
}
