package callgraph

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps so creation order is
// observable through CreatedAt.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(opts ...Option) (*Registry, *fakeClock) {
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewRegistry(opts...), clock
}

func TestCreate_InitializesRecord(t *testing.T) {
	reg, _ := newTestRegistry()

	rec, created, err := reg.Create("C1", Refs{MasterCallID: "M1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "C1", rec.CallID)
	assert.Equal(t, "M1", rec.MasterCallID)
	assert.Equal(t, StateGreeting, rec.State)
	assert.Empty(t, rec.Transcript)
	assert.Empty(t, rec.CustomerInfo.Map())
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestCreate_EmptyCallID(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, err := reg.Create("  ", Refs{})
	require.ErrorIs(t, err, ErrEmptyCallID)
	assert.Equal(t, 0, reg.Len())
}

func TestCreate_IsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry()

	_, created, err := reg.Create("C1", Refs{})
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, reg.AppendMessage("C1", RoleCustomer, "hello"))

	rec, created, err := reg.Create("C1", Refs{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, rec.Transcript, 1, "second create must not reset the conversation")
	assert.Equal(t, 1, reg.Len())
}

func TestCreate_SelfReferenceIgnored(t *testing.T) {
	reg, _ := newTestRegistry()
	rec, _, err := reg.Create("C1", Refs{MasterCallID: "C1", OperatorCallID: "C1"})
	require.NoError(t, err)
	assert.Empty(t, rec.MasterCallID)
	assert.Empty(t, rec.OperatorCallID)
	assert.Equal(t, []string{"C1"}, rec.Identifiers())
}

func TestGet_ExactKeyOnly(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, err := reg.Create("C1", Refs{EntryPointCallID: "E1"})
	require.NoError(t, err)

	_, ok := reg.Get("C1")
	assert.True(t, ok)
	_, ok = reg.Get("E1")
	assert.False(t, ok, "Get must not resolve secondary identifiers")

	rec, ok := reg.GetByAnyID("E1")
	require.True(t, ok)
	assert.Equal(t, "C1", rec.CallID)
}

func TestGetByAnyID_ResolvesEverySecondaryIdentifier(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, err := reg.Create("C1", Refs{MasterCallID: "M", EntryPointCallID: "E", OperatorCallID: "O"})
	require.NoError(t, err)

	for _, id := range []string{"C1", "M", "E", "O"} {
		rec, ok := reg.GetByAnyID(id)
		require.True(t, ok, id)
		assert.Equal(t, "C1", rec.CallID, id)
	}
	_, ok := reg.GetByAnyID("nope")
	assert.False(t, ok)
	_, ok = reg.GetByAnyID("")
	assert.False(t, ok)
}

func TestScenario_CreateAppendLinkTeardown(t *testing.T) {
	reg, _ := newTestRegistry()

	_, _, err := reg.Create("C1", Refs{})
	require.NoError(t, err)
	require.True(t, reg.AppendMessage("C1", RoleCustomer, "my name is Joe"))

	rec, ok := reg.GetByAnyID("C1")
	require.True(t, ok)
	require.Len(t, rec.Transcript, 1)
	assert.Equal(t, RoleCustomer, rec.Transcript[0].Role)

	require.True(t, reg.UpdateCustomerInfo("C1", map[string]string{FieldName: "Joe"}))

	_, created, err := reg.Create("C2", Refs{MasterCallID: "C1"})
	require.NoError(t, err)
	assert.False(t, created, "C2 joins the existing conversation")

	linked, ok := reg.GetByAnyID("C2")
	require.True(t, ok)
	assert.Equal(t, "Joe", linked.CustomerInfo.Name)

	assert.Positive(t, reg.RemoveGraph("C2"))
	_, ok = reg.GetByAnyID("C1")
	assert.False(t, ok)
	_, ok = reg.GetByAnyID("C2")
	assert.False(t, ok)
}

func TestResolutionSymmetry(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, err := reg.Create("B", Refs{})
	require.NoError(t, err)
	reg.UpdateCustomerInfo("B", map[string]string{FieldEmail: "b@example.com"})

	_, _, err = reg.Create("A", Refs{MasterCallID: "B"})
	require.NoError(t, err)

	a, ok := reg.GetByAnyID("A")
	require.True(t, ok)
	b, ok := reg.GetByAnyID("B")
	require.True(t, ok)
	assert.Equal(t, a.CallID, b.CallID)
	assert.Equal(t, a.CustomerInfo, b.CustomerInfo)
	assert.Equal(t, "b@example.com", a.CustomerInfo.Email)
}

func TestLink_FieldMergeMonotonicity(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("OLD", Refs{})
	_, _, _ = reg.Create("NEW", Refs{})

	reg.UpdateCustomerInfo("OLD", map[string]string{
		FieldName:     "Ana",
		FieldMoveDate: "June 3",
	})
	reg.UpdateCustomerInfo("NEW", map[string]string{
		FieldName:          "Anna",
		FieldOriginAddress: "1 Main St",
	})

	require.True(t, reg.Link("NEW", "OLD"))

	rec, ok := reg.GetByAnyID("NEW")
	require.True(t, ok)
	assert.Equal(t, "OLD", rec.CallID, "older conversation survives")
	assert.Equal(t, "Ana", rec.CustomerInfo.Name, "existing non-empty value wins")
	assert.Equal(t, "June 3", rec.CustomerInfo.MoveDate)
	assert.Equal(t, "1 Main St", rec.CustomerInfo.OriginAddress, "gaps are filled from the linked side")
	assert.Equal(t, 1, reg.Len())
	assert.True(t, rec.HasRelated("NEW"))
}

func TestLink_TranscriptsConcatenateWithoutRewritingSurvivor(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("OLD", Refs{})
	_, _, _ = reg.Create("NEW", Refs{})
	reg.AppendMessage("OLD", RoleAssistant, "welcome")
	reg.AppendMessage("OLD", RoleCustomer, "hi")
	reg.AppendMessage("NEW", RoleCustomer, "operator leg")

	before, _ := reg.Get("OLD")
	require.True(t, reg.Link("OLD", "NEW"))
	after, _ := reg.Get("OLD")

	require.Len(t, after.Transcript, 3)
	assert.Equal(t, before.Transcript, after.Transcript[:2])
	assert.Equal(t, "operator leg", after.Transcript[2].Content)
}

func TestLink_UnknownSideIsNoop(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("A", Refs{})
	assert.False(t, reg.Link("A", "ghost"))
	assert.False(t, reg.Link("ghost", "A"))

	rec, _ := reg.Get("A")
	assert.Empty(t, rec.RelatedCallIDs)
}

func TestLink_SameConversationIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("A", Refs{OperatorCallID: "O"})
	assert.True(t, reg.Link("A", "O"))
	assert.True(t, reg.Link("A", "O"))

	rec, _ := reg.Get("A")
	assert.Empty(t, rec.RelatedCallIDs)
	assert.Equal(t, 1, reg.Len())
}

func TestCreate_LinksEveryReference(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("M", Refs{})
	_, _, _ = reg.Create("O", Refs{})
	reg.UpdateCustomerInfo("M", map[string]string{FieldName: "Mo"})
	reg.UpdateCustomerInfo("O", map[string]string{FieldPropertyType: "condo"})

	rec, created, err := reg.Create("C", Refs{MasterCallID: "M", OperatorCallID: "O", EntryPointCallID: "E"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "M", rec.CallID)
	assert.Equal(t, "Mo", rec.CustomerInfo.Name)
	assert.Equal(t, "condo", rec.CustomerInfo.PropertyType)
	assert.Equal(t, 1, reg.Len())

	for _, id := range []string{"M", "O", "C", "E"} {
		got, ok := reg.GetByAnyID(id)
		require.True(t, ok, id)
		assert.Equal(t, "M", got.CallID, id)
	}
}

func TestCreate_ReferenceToAliasOfAnotherConversation(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("X", Refs{OperatorCallID: "X-op"})
	_, _, _ = reg.Create("Y", Refs{OperatorCallID: "Y-op"})

	rec, _, err := reg.Create("Z", Refs{MasterCallID: "X-op", EntryPointCallID: "Y-op"})
	require.NoError(t, err)
	assert.Equal(t, "X", rec.CallID)
	assert.Equal(t, 1, reg.Len())
	for _, id := range []string{"X", "X-op", "Y", "Y-op", "Z"} {
		got, ok := reg.GetByAnyID(id)
		require.True(t, ok, id)
		assert.Equal(t, "X", got.CallID, id)
	}
}

func TestCreate_OutOfOrderLegs(t *testing.T) {
	reg, _ := newTestRegistry()

	// The operator leg arrives before the customer leg it references.
	_, created, err := reg.Create("OP", Refs{MasterCallID: "CUST"})
	require.NoError(t, err)
	require.True(t, created)

	rec, created, err := reg.Create("CUST", Refs{})
	require.NoError(t, err)
	assert.False(t, created, "CUST is already an alias of the operator conversation")
	assert.Equal(t, "OP", rec.CallID)
	assert.Equal(t, 1, reg.Len())
}

func TestCreateOrJoin_Outcomes(t *testing.T) {
	reg, _ := newTestRegistry()

	_, outcome, err := reg.CreateOrJoin("C1", Refs{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	_, outcome, err = reg.CreateOrJoin("C1", Refs{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeKnown, outcome)

	rec, outcome, err := reg.CreateOrJoin("C2", Refs{MasterCallID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeJoined, outcome)
	assert.Equal(t, "C1", rec.CallID)

	_, outcome, err = reg.CreateOrJoin("C2", Refs{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeKnown, outcome, "aliases count as known")

	_, _, err = reg.CreateOrJoin("  ", Refs{})
	assert.ErrorIs(t, err, ErrEmptyCallID)
}

func TestCreateOrJoin_ConcurrentSameCall(t *testing.T) {
	reg, _ := newTestRegistry()

	const callers = 16
	outcomes := make(chan CreateOutcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := reg.CreateOrJoin("OP", Refs{MasterCallID: "CUST"})
			assert.NoError(t, err)
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[CreateOutcome]int{}
	for outcome := range outcomes {
		counts[outcome]++
	}
	assert.Equal(t, 1, counts[OutcomeCreated])
	assert.Equal(t, callers-1, counts[OutcomeKnown])
	assert.Zero(t, counts[OutcomeJoined])
}

func TestAppendMessage_AppendOnly(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("C1", Refs{OperatorCallID: "O1"})

	prev := []Message{}
	for i := 0; i < 5; i++ {
		id := "C1"
		if i%2 == 1 {
			id = "O1"
		}
		require.True(t, reg.AppendMessage(id, RoleCustomer, fmt.Sprintf("msg %d", i)))

		rec, _ := reg.Get("C1")
		require.Len(t, rec.Transcript, i+1)
		assert.Equal(t, prev, rec.Transcript[:i])
		assert.Equal(t, fmt.Sprintf("msg %d", i), rec.Transcript[i].Content)
		prev = rec.Transcript
	}
}

func TestNotFoundPathsNeverPanic(t *testing.T) {
	reg, _ := newTestRegistry()
	assert.False(t, reg.AppendMessage("nonexistent", RoleCustomer, "hi"))
	assert.False(t, reg.UpdateCustomerInfo("nonexistent", map[string]string{FieldName: "x"}))
	assert.False(t, reg.AdvanceState("nonexistent", StateCompleted))
	assert.False(t, reg.Apply("nonexistent", Update{Reply: "x"}))
	assert.False(t, reg.RemoveOne("nonexistent"))
	assert.Equal(t, 0, reg.RemoveGraph("nonexistent"))
}

func TestUpdateCustomerInfo_IgnoresUnknownAndEmpty(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("C1", Refs{})

	require.True(t, reg.UpdateCustomerInfo("C1", map[string]string{FieldName: "Joe", "favoriteColor": "blue"}))
	require.True(t, reg.UpdateCustomerInfo("C1", map[string]string{FieldName: "", FieldEmail: "joe@example.com"}))

	rec, _ := reg.Get("C1")
	assert.Equal(t, map[string]string{FieldName: "Joe", FieldEmail: "joe@example.com"}, rec.CustomerInfo.Map())

	require.True(t, reg.UpdateCustomerInfo("C1", map[string]string{FieldName: "Joseph"}))
	rec, _ = reg.Get("C1")
	assert.Equal(t, "Joseph", rec.CustomerInfo.Name, "non-empty values overwrite")
}

func TestAdvanceState_LooseAcceptsAnything(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("C1", Refs{})

	// Unchecked in loose mode: completed -> greeting and unknown names.
	require.True(t, reg.AdvanceState("C1", StateCompleted))
	require.True(t, reg.AdvanceState("C1", StateGreeting))
	require.True(t, reg.AdvanceState("C1", State("collecting_addresses")))
	assert.False(t, reg.AdvanceState("C1", ""))

	rec, _ := reg.Get("C1")
	assert.Equal(t, State("collecting_addresses"), rec.State)
}

func TestAdvanceState_Strict(t *testing.T) {
	reg, _ := newTestRegistry(WithStrictTransitions(true))
	_, _, _ = reg.Create("C1", Refs{})

	assert.True(t, reg.AdvanceState("C1", StateInProgress))
	assert.False(t, reg.AdvanceState("C1", StateGreeting))
	assert.False(t, reg.AdvanceState("C1", State("bogus")))
	assert.True(t, reg.AdvanceState("C1", StateCompleted))
	assert.False(t, reg.AdvanceState("C1", StateInProgress))

	rec, _ := reg.Get("C1")
	assert.Equal(t, StateCompleted, rec.State)
}

func TestApply_FoldsTurnAtomically(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("C1", Refs{})
	reg.AppendMessage("C1", RoleCustomer, "I'm moving from Austin")

	ok := reg.Apply("C1", Update{
		Fields: map[string]string{FieldOriginAddress: "Austin, TX"},
		State:  StateInProgress,
		Reply:  "Where are you moving to?",
	})
	require.True(t, ok)

	rec, _ := reg.Get("C1")
	assert.Equal(t, "Austin, TX", rec.CustomerInfo.OriginAddress)
	assert.Equal(t, StateInProgress, rec.State)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, RoleAssistant, rec.Transcript[1].Role)
}

func TestRemoveOne_DropsAliasesToo(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("C1", Refs{MasterCallID: "M1"})

	assert.False(t, reg.RemoveOne("M1"), "aliases are not primary keys")
	assert.True(t, reg.RemoveOne("C1"))
	_, ok := reg.GetByAnyID("M1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestRemoveGraph_Completeness(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("A", Refs{EntryPointCallID: "E"})
	_, _, _ = reg.Create("B", Refs{OperatorCallID: "O"})
	_, _, _ = reg.Create("C", Refs{MasterCallID: "A"})
	require.True(t, reg.Link("C", "B"))
	_, _, _ = reg.Create("UNRELATED", Refs{})

	removed := reg.RemoveGraph("O")
	assert.Equal(t, 5, removed)
	for _, id := range []string{"A", "B", "C", "E", "O"} {
		_, ok := reg.GetByAnyID(id)
		assert.False(t, ok, id)
	}
	_, ok := reg.GetByAnyID("UNRELATED")
	assert.True(t, ok)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("C1", Refs{})
	reg.AppendMessage("C1", RoleCustomer, "original")

	rec, _ := reg.Get("C1")
	rec.Transcript[0].Content = "tampered"
	rec.RelatedCallIDs = append(rec.RelatedCallIDs, "X")

	again, _ := reg.Get("C1")
	assert.Equal(t, "original", again.Transcript[0].Content)
	assert.Empty(t, again.RelatedCallIDs)
}

func TestPruneIdle(t *testing.T) {
	reg, clock := newTestRegistry()
	_, _, _ = reg.Create("STALE", Refs{OperatorCallID: "STALE-op"})
	clock.Advance(3 * time.Hour)
	_, _, _ = reg.Create("FRESH", Refs{})

	pruned := reg.PruneIdle(2 * time.Hour)
	assert.Equal(t, []string{"STALE"}, pruned)
	_, ok := reg.GetByAnyID("STALE-op")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
	assert.Nil(t, reg.PruneIdle(0))
}

func TestList_OldestFirst(t *testing.T) {
	reg, _ := newTestRegistry()
	_, _, _ = reg.Create("first", Refs{})
	_, _, _ = reg.Create("second", Refs{})

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].CallID)
	assert.Equal(t, "second", list[1].CallID)
}

func TestConcurrentEventsForRelatedLegs(t *testing.T) {
	reg := NewRegistry()
	const legs = 20

	var wg sync.WaitGroup
	for i := 0; i < legs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leg := fmt.Sprintf("leg-%d", i)
			_, _, err := reg.Create(leg, Refs{MasterCallID: "master"})
			assert.NoError(t, err)
			for j := 0; j < 10; j++ {
				reg.AppendMessage(leg, RoleCustomer, "speech")
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len(), "every leg references the same master")
	rec, ok := reg.GetByAnyID("master")
	require.True(t, ok)
	assert.Len(t, rec.Transcript, legs*10)
	for i := 0; i < legs; i++ {
		got, ok := reg.GetByAnyID(fmt.Sprintf("leg-%d", i))
		require.True(t, ok)
		assert.Equal(t, rec.CallID, got.CallID)
	}
}

func TestConcurrentHangupRacingSpeech(t *testing.T) {
	reg := NewRegistry()
	_, _, _ = reg.Create("C1", Refs{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			reg.AppendMessage("C1", RoleCustomer, "words")
		}
	}()
	go func() {
		defer wg.Done()
		reg.RemoveGraph("C1")
	}()
	wg.Wait()

	_, ok := reg.GetByAnyID("C1")
	assert.False(t, ok)
}
