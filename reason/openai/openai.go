// Package openai provides a reason.Reasoner backed by the OpenAI Chat
// Completions API (including function/tool calling). It adapts the normalized
// reasoning Request into the SDK's message format and maps the completion
// back onto a single Decision.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/reason"
)

// Options configure the OpenAI reasoner adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Reasoner wraps the OpenAI Chat Completions API behind the generic
// reason.Reasoner interface.
type Reasoner struct {
	client *openai.Client
	opts   Options
}

// NewReasoner creates a new OpenAI reasoner using the official client.
func NewReasoner(optFns ...func(o *Options)) *Reasoner {
	client := openai.NewClient()
	return NewReasonerFromClient(&client, optFns...)
}

// NewReasonerFromClient creates a new OpenAI reasoner from an existing client.
func NewReasonerFromClient(client *openai.Client, optFns ...func(o *Options)) *Reasoner {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Reasoner{client: client, opts: opts}
}

// Reason implements reason.Reasoner. A completion containing tool calls maps
// to a Decision carrying the first call; otherwise the text content becomes
// the final answer.
func (r *Reasoner) Reason(ctx context.Context, req reason.Request) (*reason.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               r.opts.Model,
		Temperature:         openai.Float(r.opts.Temperature),
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decoding tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		return &reason.Decision{ToolCall: &reason.ToolCall{
			ID:        tc.ID,
			Operation: tc.Function.Name,
			Args:      args,
		}}, nil
	}

	return &reason.Decision{Answer: msg.Content}, nil
}

// buildMessages converts the instruction and history into OpenAI chat
// messages, reconstructing assistant tool calls and their tool results from
// the turn metadata.
func buildMessages(req reason.Request) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.Instruction != "" {
		messages = append(messages, openai.SystemMessage(req.Instruction))
	}

	for _, t := range req.History {
		switch t.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(t.Content))
		case core.RoleAssistant:
			if t.ToolCallID == "" {
				messages = append(messages, openai.AssistantMessage(t.Content))
				continue
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   t.ToolCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      t.ToolName,
							Arguments: t.Content,
						},
					}},
				},
			})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(t.Content, t.ToolCallID))
		default:
			if t.Content != "" {
				messages = append(messages, openai.UserMessage(t.Content))
			}
		}
	}
	return messages
}

// buildTools converts operation definitions into OpenAI tool declarations.
func buildTools(defs []reason.ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}
	return tools
}

// Info returns metadata describing this OpenAI reasoner implementation.
func (r *Reasoner) Info() reason.Info {
	return reason.Info{Name: r.opts.Model, Provider: "openai"}
}
