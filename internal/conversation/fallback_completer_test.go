package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/moving-call-relay/internal/callgraph"
)

func TestFallbackCompleter(t *testing.T) {
	ctx := context.Background()
	answer := Result{NextQuestion: "Where are you moving from?", NewState: callgraph.StateInProgress}

	t.Run("primary success skips fallback", func(t *testing.T) {
		primary := &scriptedCompleter{results: []Result{answer}}
		fallback := &scriptedCompleter{}
		res, err := NewFallbackCompleter(primary, fallback, nil).Complete(ctx, Request{CallID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, answer, res)
		assert.Empty(t, fallback.seen)
	})

	t.Run("primary failure uses fallback", func(t *testing.T) {
		primary := &scriptedCompleter{err: errors.New("rate limited")}
		fallback := &scriptedCompleter{results: []Result{answer}}
		res, err := NewFallbackCompleter(primary, fallback, nil).Complete(ctx, Request{CallID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, answer, res)
		assert.Len(t, fallback.seen, 1)
	})

	t.Run("both fail returns fallback error", func(t *testing.T) {
		fallbackErr := errors.New("down")
		primary := &scriptedCompleter{err: errors.New("rate limited")}
		fallback := &scriptedCompleter{err: fallbackErr}
		_, err := NewFallbackCompleter(primary, fallback, nil).Complete(ctx, Request{CallID: "c1"})
		assert.ErrorIs(t, err, fallbackErr)
	})

	t.Run("cancelled context does not retry", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		primary := &scriptedCompleter{err: context.Canceled}
		fallback := &scriptedCompleter{results: []Result{answer}}
		_, err := NewFallbackCompleter(primary, fallback, nil).Complete(cctx, Request{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, fallback.seen)
	})

	t.Run("nil fallback returns primary", func(t *testing.T) {
		primary := &scriptedCompleter{}
		assert.Same(t, primary, NewFallbackCompleter(primary, nil, nil))
	})
}

func TestUnavailableCompleter(t *testing.T) {
	_, err := UnavailableCompleter{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCompleterUnavailable)
}
