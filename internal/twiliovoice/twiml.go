package twiliovoice

import (
	"fmt"

	"github.com/twilio/twilio-go/twiml"

	"github.com/wolfman30/moving-call-relay/internal/relay"
)

const (
	DefaultVoice        = "Polly.Amy"
	DefaultLanguage     = "en-US"
	DefaultSpeechAction = "/twilio/speech"
)

// Renderer turns relay directives into TwiML documents.
type Renderer struct {
	Voice    string
	Language string
	// SpeechAction is where <Gather> posts recognized speech.
	SpeechAction string
}

// NewRenderer returns a Renderer speaking with voice, or DefaultVoice when empty.
func NewRenderer(voice string) Renderer {
	if voice == "" {
		voice = DefaultVoice
	}
	return Renderer{Voice: voice, Language: DefaultLanguage, SpeechAction: DefaultSpeechAction}
}

// Render builds the TwiML for dir. callerID is presented on transfers so
// the specialist sees the business number.
func (r Renderer) Render(dir relay.Directive, callerID string) (string, error) {
	var verbs []twiml.Element
	switch dir.Kind {
	case relay.DirectivePrompt:
		verbs = append(verbs, r.say(dir.Message), r.gather())
	case relay.DirectiveTransfer:
		if dir.Target == "" {
			verbs = append(verbs, r.say(dir.Message), &twiml.VoiceHangup{})
			break
		}
		verbs = append(verbs, r.say(dir.Message), &twiml.VoiceDial{CallerId: callerID, Number: dir.Target})
	case relay.DirectiveHangup:
		verbs = append(verbs, &twiml.VoiceSay{Message: dir.Message}, &twiml.VoiceHangup{})
	}
	doc, err := twiml.Voice(verbs)
	if err != nil {
		return "", fmt.Errorf("twiliovoice: render %s: %w", dir.Kind, err)
	}
	return doc, nil
}

func (r Renderer) say(message string) twiml.Element {
	return &twiml.VoiceSay{Message: message, Voice: r.Voice, Language: r.Language}
}

func (r Renderer) gather() twiml.Element {
	return &twiml.VoiceGather{
		Input:         "speech",
		SpeechTimeout: "auto",
		SpeechModel:   "phone_call",
		Action:        r.SpeechAction,
		Method:        "POST",
		OptionalAttributes: map[string]string{
			"enhanced": "true",
		},
	}
}
