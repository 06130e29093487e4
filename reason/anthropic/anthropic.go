// Package anthropic provides a reason.Reasoner backed by the Anthropic
// Messages API with tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/reason"
)

// Options configure the Anthropic reasoner adapter (model id, temperature,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Reasoner wraps the Anthropic Messages API behind the generic
// reason.Reasoner interface.
type Reasoner struct {
	client *anthropic.Client
	opts   Options
}

// NewReasoner creates a new Anthropic reasoner using the official client.
func NewReasoner(optFns ...func(o *Options)) *Reasoner {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Reasoner{client: &client, opts: opts}
}

// NewReasonerFromClient creates a new Anthropic reasoner from an existing client.
func NewReasonerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Reasoner {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Reasoner{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Reason implements reason.Reasoner. A response containing a tool_use block
// maps to a Decision carrying that call; otherwise the concatenated text
// blocks become the final answer.
func (r *Reasoner) Reason(ctx context.Context, req reason.Request) (*reason.Decision, error) {
	params := anthropic.MessageNewParams{
		Model:       r.opts.Model,
		Messages:    buildMessages(req.History),
		MaxTokens:   r.opts.MaxTokens,
		Temperature: anthropic.Float(r.opts.Temperature),
	}
	if req.Instruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instruction}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var answer string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			answer += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := map[string]any{}
			if toolBlock.Input != nil {
				raw, err := json.Marshal(toolBlock.Input)
				if err != nil {
					return nil, fmt.Errorf("encoding tool input for %s: %w", toolBlock.Name, err)
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("decoding tool input for %s: %w", toolBlock.Name, err)
				}
			}
			return &reason.Decision{ToolCall: &reason.ToolCall{
				ID:        toolBlock.ID,
				Operation: toolBlock.Name,
				Args:      args,
			}}, nil
		}
	}

	return &reason.Decision{Answer: answer}, nil
}

// buildMessages converts conversation turns to the Anthropic message format.
// An assistant turn carrying a tool call becomes a tool_use block; the tool
// turn with the matching call ID becomes a tool_result block in a user
// message, as the Messages API requires.
func buildMessages(history []core.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, t := range history {
		switch t.Role {
		case core.RoleUser:
			if t.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
			}
		case core.RoleAssistant:
			if t.ToolCallID == "" {
				if t.Content != "" {
					messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
				}
				continue
			}
			var input any
			if t.Content != "" {
				if err := json.Unmarshal([]byte(t.Content), &input); err != nil {
					input = t.Content
				}
			}
			messages = append(messages, anthropic.NewAssistantMessage(
				anthropic.NewToolUseBlock(t.ToolCallID, input, t.ToolName),
			))
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(t.ToolCallID, t.Content, false),
			))
		case core.RoleSystem:
			// Handled via params.System.
		default:
			if t.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
			}
		}
	}

	return messages
}

// buildTools converts operation definitions into Anthropic tool declarations.
func buildTools(defs []reason.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))

	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if def.Parameters != nil {
			if properties, exists := def.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := def.Parameters["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					for _, v := range req {
						if s, ok := v.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
	}

	return tools
}

// Info returns metadata describing this Anthropic reasoner implementation.
func (r *Reasoner) Info() reason.Info {
	return reason.Info{Name: string(r.opts.Model), Provider: "anthropic"}
}
