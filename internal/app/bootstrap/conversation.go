package bootstrap

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/moving-call-relay/internal/config"
	"github.com/wolfman30/moving-call-relay/internal/conversation"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// BuildOpenAIClient returns nil when no API key is configured.
func BuildOpenAIClient(cfg *appconfig.Config) *openai.Client {
	if cfg == nil || strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil
	}
	return openai.NewClient(cfg.OpenAIAPIKey)
}

// BuildCompleter wires the OpenAI completer, with an optional second model
// retried on failure. Without a client every turn falls back to a transfer.
func BuildCompleter(cfg *appconfig.Config, client *openai.Client, logger *logging.Logger) conversation.Completer {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || client == nil {
		logger.Warn("no OpenAI API key configured; every speech turn will transfer to a specialist")
		return conversation.UnavailableCompleter{}
	}

	primary := conversation.NewOpenAICompleter(client, conversation.OpenAIConfig{
		Model:       cfg.OpenAIModel,
		CompanyName: cfg.CompanyName,
		Timeout:     cfg.OpenAITimeout,
	}, logger)

	fallbackModel := strings.TrimSpace(cfg.OpenAIFallbackModel)
	if fallbackModel == "" || fallbackModel == cfg.OpenAIModel {
		logger.Info("using OpenAI completer", "model", cfg.OpenAIModel)
		return primary
	}
	fallback := conversation.NewOpenAICompleter(client, conversation.OpenAIConfig{
		Model:       fallbackModel,
		CompanyName: cfg.CompanyName,
		Timeout:     cfg.OpenAITimeout,
	}, logger)
	logger.Info("using OpenAI completer", "model", cfg.OpenAIModel, "fallback_model", fallbackModel)
	return conversation.NewFallbackCompleter(primary, fallback, logger)
}

// BuildSynthesizer returns nil when no client is available; prompts are then
// only delivered through webhook replies.
func BuildSynthesizer(cfg *appconfig.Config, client *openai.Client, logger *logging.Logger) conversation.Synthesizer {
	if cfg == nil || client == nil {
		return nil
	}
	return conversation.NewOpenAISynthesizer(client, cfg.OpenAITTSModel, cfg.OpenAITTSVoice, logger)
}
