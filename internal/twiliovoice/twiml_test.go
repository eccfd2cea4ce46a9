package twiliovoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/moving-call-relay/internal/relay"
)

func TestRenderPrompt(t *testing.T) {
	doc, err := NewRenderer("").Render(relay.Directive{Kind: relay.DirectivePrompt, Message: "May I have your name?"}, "+15550001111")
	require.NoError(t, err)

	assert.Contains(t, doc, "<Response>")
	assert.Contains(t, doc, ">May I have your name?</Say>")
	assert.Contains(t, doc, `voice="Polly.Amy"`)
	assert.Contains(t, doc, `language="en-US"`)
	assert.Contains(t, doc, "<Gather")
	assert.Contains(t, doc, `input="speech"`)
	assert.Contains(t, doc, `speechTimeout="auto"`)
	assert.Contains(t, doc, `speechModel="phone_call"`)
	assert.Contains(t, doc, `enhanced="true"`)
	assert.Contains(t, doc, `action="/twilio/speech"`)
	assert.Contains(t, doc, `method="POST"`)
}

func TestRenderTransfer(t *testing.T) {
	doc, err := NewRenderer("Polly.Joanna").Render(relay.Directive{
		Kind:    relay.DirectiveTransfer,
		Message: "Connecting you now.",
		Target:  "+13057013963",
	}, "+15550001111")
	require.NoError(t, err)

	assert.Contains(t, doc, `voice="Polly.Joanna"`)
	assert.Contains(t, doc, ">Connecting you now.</Say>")
	assert.Contains(t, doc, "<Dial")
	assert.Contains(t, doc, `callerId="+15550001111"`)
	assert.Contains(t, doc, "+13057013963</Dial>")
	assert.NotContains(t, doc, "<Gather")
}

func TestRenderTransferWithoutTargetHangsUp(t *testing.T) {
	doc, err := NewRenderer("").Render(relay.Directive{Kind: relay.DirectiveTransfer, Message: "bye"}, "")
	require.NoError(t, err)
	assert.Contains(t, doc, "<Hangup")
	assert.NotContains(t, doc, "<Dial")
}

func TestRenderLostTrack(t *testing.T) {
	doc, err := NewRenderer("").Render(relay.Directive{Kind: relay.DirectiveHangup, Message: relay.LostTrackMessage}, "")
	require.NoError(t, err)
	assert.Contains(t, doc, "lost track of our conversation")
	assert.Contains(t, doc, "<Hangup")
}

func TestRenderAckIsEmptyResponse(t *testing.T) {
	for _, kind := range []relay.DirectiveKind{relay.DirectiveAck, relay.DirectiveDefault} {
		doc, err := NewRenderer("").Render(relay.Directive{Kind: kind}, "")
		require.NoError(t, err)
		assert.Contains(t, doc, "<Response")
		assert.NotContains(t, doc, "<Say")
	}
}
