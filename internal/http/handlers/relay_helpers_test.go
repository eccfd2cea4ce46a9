package handlers

import (
	"context"
	"sync"

	"github.com/wolfman30/moving-call-relay/internal/relay"
	"github.com/wolfman30/moving-call-relay/internal/telephony"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	events    []relay.CallEvent
	directive relay.Directive
}

func (f *fakeDispatcher) OnCallEvent(ctx context.Context, ev relay.CallEvent) relay.Directive {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.directive
}

func (f *fakeDispatcher) last() relay.CallEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return relay.CallEvent{}
	}
	return f.events[len(f.events)-1]
}

type fakeActions struct {
	mu        sync.Mutex
	transfers []string
	played    map[string][]byte
	result    telephony.Result
}

func newFakeActions() *fakeActions {
	return &fakeActions{played: map[string][]byte{}, result: telephony.Result{Success: true}}
}

func (f *fakeActions) Answer(ctx context.Context, callID string) telephony.Result {
	return f.result
}

func (f *fakeActions) PlayAudio(ctx context.Context, callID string, audio []byte) telephony.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played[callID] = audio
	return f.result
}

func (f *fakeActions) Transfer(ctx context.Context, callID, target string) telephony.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, callID+"->"+target)
	return f.result
}

type fakeSynth struct {
	err error
}

func (f fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3:" + text), nil
}
