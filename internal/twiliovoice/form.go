// Package twiliovoice adapts Twilio programmable voice webhooks: form
// decoding, request signature checks and TwiML responses.
package twiliovoice

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/moving-call-relay/internal/relay"
)

// Form holds the webhook parameters the relay uses.
type Form struct {
	CallSID       string
	ParentCallSID string
	From          string
	To            string
	CallStatus    string
	SpeechResult  string
	// Params is every posted parameter, first value per key, as needed for
	// signature validation.
	Params map[string]string
}

// ParseForm reads a Twilio webhook request body.
func ParseForm(r *http.Request) (Form, error) {
	if err := r.ParseForm(); err != nil {
		return Form{}, fmt.Errorf("twiliovoice: parse form: %w", err)
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return Form{
		CallSID:       strings.TrimSpace(params["CallSid"]),
		ParentCallSID: strings.TrimSpace(params["ParentCallSid"]),
		From:          params["From"],
		To:            params["To"],
		CallStatus:    strings.ToLower(strings.TrimSpace(params["CallStatus"])),
		SpeechResult:  params["SpeechResult"],
		Params:        params,
	}, nil
}

var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// IsTerminal reports whether status means the call is over.
func IsTerminal(status string) bool {
	return terminalStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// VoiceEvent is the event for the initial voice webhook of a call.
func (f Form) VoiceEvent() relay.CallEvent {
	return f.event(relay.KindRinging)
}

// SpeechEvent is the event for a <Gather> result. Twilio calls that are no
// longer tracked are not restarted.
func (f Form) SpeechEvent() relay.CallEvent {
	ev := f.event(relay.KindSpeech)
	ev.Speech = f.SpeechResult
	return ev
}

// StatusEvent maps a status callback to a hangup for terminal statuses.
func (f Form) StatusEvent() relay.CallEvent {
	if IsTerminal(f.CallStatus) {
		ev := f.event(relay.KindHangup)
		ev.Fields = map[string]string{"call_status": f.CallStatus}
		if d := f.Params["CallDuration"]; d != "" {
			ev.Fields["call_duration"] = d
		}
		return ev
	}
	return f.event(relay.KindOther)
}

func (f Form) event(kind relay.Kind) relay.CallEvent {
	return relay.CallEvent{
		CallID:       f.CallSID,
		MasterCallID: f.ParentCallSID,
		Kind:         kind,
		State:        f.CallStatus,
	}
}
