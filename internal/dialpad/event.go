package dialpad

import "github.com/wolfman30/moving-call-relay/internal/relay"

// Route identifies which webhook endpoint a payload arrived on. Each
// endpoint interprets the same payload shape slightly differently.
type Route int

const (
	// RouteAuto is the call router endpoint: no state means a routing
	// request, otherwise the state and speech fields decide.
	RouteAuto Route = iota
	// RouteCallRouting always treats the payload as a routing request.
	RouteCallRouting
	// RouteIncomingCall handles call state events only.
	RouteIncomingCall
	// RouteSpeech handles recognized speech.
	RouteSpeech
	// RouteGeneric only acts on ringing events.
	RouteGeneric
)

// Event converts a payload into a relay event for the given endpoint.
// Speech on an unknown Dialpad call starts a conversation.
func (p Payload) Event(route Route) relay.CallEvent {
	ev := relay.CallEvent{
		CallID:           p.CallID(),
		MasterCallID:     p.MasterCallID(),
		EntryPointCallID: p.EntryPointCallID(),
		OperatorCallID:   p.OperatorCallID(),
		State:            p.State(),
		CreateIfMissing:  true,
	}
	ev.Kind = p.kind(route)
	switch ev.Kind {
	case relay.KindSpeech:
		ev.Speech = p.Speech()
		if ev.Speech == "" && ev.State == "recap_summary" {
			ev.Speech = p.Recap()
		}
	case relay.KindHangup:
		ev.Fields = p.Fields()
	}
	return ev
}

func (p Payload) kind(route Route) relay.Kind {
	state := p.State()
	switch route {
	case RouteCallRouting:
		return relay.KindRouting
	case RouteIncomingCall:
		return stateKind(state)
	case RouteSpeech:
		if state == "hangup" {
			return relay.KindOther
		}
		return relay.KindSpeech
	case RouteGeneric:
		if state == "ringing" {
			return relay.KindRinging
		}
		return relay.KindOther
	}

	if state == "" {
		return relay.KindRouting
	}
	if k := stateKind(state); k != relay.KindOther {
		return k
	}
	if p.Speech() != "" || state == "recap_summary" {
		return relay.KindSpeech
	}
	return relay.KindOther
}

func stateKind(state string) relay.Kind {
	switch state {
	case "ringing":
		return relay.KindRinging
	case "connected":
		return relay.KindConnected
	case "hangup":
		return relay.KindHangup
	}
	return relay.KindOther
}
