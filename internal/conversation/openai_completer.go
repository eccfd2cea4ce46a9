package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/wolfman30/moving-call-relay/internal/callgraph"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const updateCustomerInfoTool = "update_customer_info"

var completionTracer = otel.Tracer("callrelay.internal.conversation.openai")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures OpenAICompleter.
type OpenAIConfig struct {
	Model       string
	CompanyName string
	Timeout     time.Duration
}

// OpenAICompleter asks the chat completions API for the next question and
// forces every answer through the update_customer_info tool so the reply and
// the extracted fields arrive as one structured payload.
type OpenAICompleter struct {
	client  chatClient
	model   string
	company string
	timeout time.Duration
	logger  *logging.Logger
}

// NewOpenAICompleter creates a Completer backed by OpenAI chat completions.
func NewOpenAICompleter(client chatClient, cfg OpenAIConfig, logger *logging.Logger) *OpenAICompleter {
	if client == nil {
		panic("conversation: chat client cannot be nil")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.CompanyName == "" {
		cfg.CompanyName = "The Moving Company"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAICompleter{
		client:  client,
		model:   cfg.Model,
		company: cfg.CompanyName,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (Result, error) {
	ctx, span := completionTracer.Start(ctx, "conversation.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("callrelay.call_id", req.CallID),
		attribute.String("callrelay.state", string(req.State)),
		attribute.Int("callrelay.transcript_len", len(req.Transcript)),
	)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.buildMessages(req),
		Tools:    []openai.Tool{customerInfoTool()},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: updateCustomerInfoTool},
		},
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("conversation: openai completion failed: %w", err)
	}

	args, err := toolArguments(resp)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	result, err := parseToolArguments(args)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Bool("callrelay.transfer", result.TransferToHuman),
			attribute.Int("callrelay.field_updates", len(result.FieldUpdates)),
		)
	}
	c.logger.Debug("ai turn completed",
		"call_id", req.CallID,
		"new_state", result.NewState,
		"transfer", result.TransferToHuman,
		"fields", len(result.FieldUpdates),
	)
	return result, nil
}

func (c *OpenAICompleter) buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Transcript)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(c.company, req.State, req.CustomerInfo),
	})
	for _, m := range req.Transcript {
		role := openai.ChatMessageRoleUser
		if m.Role == callgraph.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return messages
}

func systemPrompt(company string, state callgraph.State, info callgraph.CustomerInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant for %s. ", company)
	b.WriteString("Your job is to collect information about potential customers' moving needs. ")
	b.WriteString("You need to collect: customer name, email, move date, origin address, destination address, ")
	b.WriteString("property type at both locations, access details (stairs/elevators), special items, and additional stops. ")
	b.WriteString("Ask one question at a time and keep replies short enough to be spoken on a phone call. ")
	b.WriteString("Be polite, professional, and efficient. If the conversation gets too complex or if the customer ")
	b.WriteString("specifically asks to speak to a human, indicate that the call should be transferred.\n")
	fmt.Fprintf(&b, "Current conversation state: %s\n", state)
	if known := info.Map(); len(known) > 0 {
		b.WriteString("Already collected:\n")
		for _, name := range callgraph.FieldNames {
			if v, ok := known[name]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", name, v)
			}
		}
	}
	if missing := info.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, "Still missing: %s\n", strings.Join(missing, ", "))
	}
	return b.String()
}

func customerInfoTool() openai.Tool {
	properties := map[string]any{}
	for _, name := range callgraph.FieldNames {
		properties[name] = map[string]any{"type": "string"}
	}
	properties["nextQuestion"] = map[string]any{
		"type":        "string",
		"description": "What the assistant says next to the caller",
	}
	properties["transferToHuman"] = map[string]any{"type": "boolean"}
	properties["newState"] = map[string]any{
		"type": "string",
		"enum": []string{
			string(callgraph.StateGreeting),
			string(callgraph.StateInProgress),
			string(callgraph.StateCompleted),
			string(callgraph.StateError),
		},
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        updateCustomerInfoTool,
			Description: "Update the customer information based on the conversation",
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   []string{"nextQuestion", "transferToHuman", "newState"},
			},
		},
	}
}

func toolArguments(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.New("conversation: openai returned no choices")
	}
	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name == updateCustomerInfoTool {
			return call.Function.Arguments, nil
		}
	}
	if msg.FunctionCall != nil && msg.FunctionCall.Name == updateCustomerInfoTool {
		return msg.FunctionCall.Arguments, nil
	}
	return "", errors.New("conversation: openai response has no update_customer_info call")
}

func parseToolArguments(raw string) (Result, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return Result{}, fmt.Errorf("conversation: decode tool arguments: %w", err)
	}

	result := Result{
		NextQuestion:    strings.TrimSpace(stringArg(args["nextQuestion"])),
		TransferToHuman: boolArg(args["transferToHuman"]),
		NewState:        callgraph.ParseState(stringArg(args["newState"])),
		FieldUpdates:    map[string]string{},
	}
	for _, name := range callgraph.FieldNames {
		if v := strings.TrimSpace(stringArg(args[name])); v != "" {
			result.FieldUpdates[name] = v
		}
	}
	if result.NextQuestion == "" && !result.TransferToHuman {
		return Result{}, errors.New("conversation: tool arguments missing nextQuestion")
	}
	return result, nil
}

func stringArg(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringArg(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

func boolArg(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}
