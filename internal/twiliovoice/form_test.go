package twiliovoice

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/moving-call-relay/internal/relay"
)

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/twilio/speech", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseForm(t *testing.T) {
	req := postForm(url.Values{
		"CallSid":       {" CA123 "},
		"ParentCallSid": {"CA000"},
		"To":            {"+15550001111"},
		"From":          {"+15552223333"},
		"CallStatus":    {"In-Progress"},
		"SpeechResult":  {"my name is Ada"},
	})
	form, err := ParseForm(req)
	require.NoError(t, err)
	assert.Equal(t, "CA123", form.CallSID)
	assert.Equal(t, "CA000", form.ParentCallSID)
	assert.Equal(t, "+15550001111", form.To)
	assert.Equal(t, "in-progress", form.CallStatus)
	assert.Equal(t, " CA123 ", form.Params["CallSid"])

	ev := form.SpeechEvent()
	assert.Equal(t, relay.KindSpeech, ev.Kind)
	assert.Equal(t, "my name is Ada", ev.Speech)
	assert.Equal(t, "CA000", ev.MasterCallID)
	assert.False(t, ev.CreateIfMissing)

	assert.Equal(t, relay.KindRinging, form.VoiceEvent().Kind)
}

func TestStatusEvent(t *testing.T) {
	for _, status := range []string{"completed", "busy", "failed", "no-answer", "canceled"} {
		ev := Form{CallSID: "CA1", CallStatus: status, Params: map[string]string{"CallDuration": "30"}}.StatusEvent()
		assert.Equal(t, relay.KindHangup, ev.Kind, status)
		assert.Equal(t, "30", ev.Fields["call_duration"])
	}
	for _, status := range []string{"ringing", "in-progress", "queued", ""} {
		ev := Form{CallSID: "CA1", CallStatus: status}.StatusEvent()
		assert.Equal(t, relay.KindOther, ev.Kind, status)
	}
	assert.True(t, IsTerminal(" Completed "))
}
