package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
)

const maxSpeechBytes = 10 << 20

// Synthesizer turns assistant text into audio for telephony playback.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAISynthesizer renders MP3 speech with the OpenAI audio API.
type OpenAISynthesizer struct {
	client speechClient
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	logger *logging.Logger
}

// NewOpenAISynthesizer creates a text-to-speech synthesizer, defaulting to the
// tts-1 model and the nova voice.
func NewOpenAISynthesizer(client speechClient, model, voice string, logger *logging.Logger) *OpenAISynthesizer {
	if client == nil {
		panic("conversation: speech client cannot be nil")
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceNova)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAISynthesizer{
		client: client,
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
		logger: logger,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("conversation: speech text required")
	}
	ctx, span := completionTracer.Start(ctx, "conversation.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("callrelay.tts.chars", len(text)))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: openai speech failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(io.LimitReader(resp, maxSpeechBytes))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("conversation: openai returned empty audio")
	}
	s.logger.Debug("speech synthesized", "bytes", len(audio), "voice", s.voice)
	return audio, nil
}
