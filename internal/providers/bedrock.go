package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// BedrockProvider calls Claude on Amazon Bedrock through the Anthropic SDK.
type BedrockProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewBedrockProvider loads AWS credentials from the default chain, or from
// the named shared-config profile when profile is set.
func NewBedrockProvider(ctx context.Context, region, profile, defaultModel string) (*BedrockProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	// bedrock.WithConfig handles request signing and the regional endpoint.
	return newSDKProvider(anthropic.NewClient(bedrock.WithConfig(awsCfg)), defaultModel), nil
}

func newSDKProvider(client anthropic.Client, defaultModel string) *BedrockProvider {
	return &BedrockProvider{client: client, defaultModel: defaultModel}
}

func (p *BedrockProvider) DefaultModel() string { return p.defaultModel }

// Chat implements schema.LLMProvider.
func (p *BedrockProvider) Chat(
	ctx context.Context,
	messages schema.Messages,
	tools []schema.ToolDefinition,
	opts schema.ChatOptions,
) (schema.LLMResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	sdkMessages := convertMessagesToSDK(messages)
	if len(sdkMessages) == 0 {
		return schema.LLMResponse{}, fmt.Errorf("no messages to send")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(stripProviderPrefix(model)),
		Messages:    sdkMessages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if len(tools) > 0 {
		params.Tools = convertToolsToSDK(tools)
		params.ToolChoice = sdkToolChoice(opts.ToolChoice)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return schema.LLMResponse{}, fmt.Errorf("bedrock invocation failed: %w", err)
	}
	return convertResponseFromSDK(message), nil
}

func sdkToolChoice(c schema.ToolChoice) anthropic.ToolChoiceUnionParam {
	if c == schema.ToolChoiceAny {
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	}
	return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
}

func convertToolsToSDK(tools []schema.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var input anthropic.ToolInputSchemaParam
		schemaJSON, _ := json.Marshal(inputSchema(t.InputSchema))
		_ = json.Unmarshal(schemaJSON, &input)

		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: input,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

// convertMessagesToSDK mirrors convertMessagesToAnthropic using SDK params.
func convertMessagesToSDK(messages schema.Messages) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages.Messages {
		switch m.Role {
		case schema.RoleUser:
			if text := m.Text(); text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}

		case schema.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls {
				var input any = tc.Arguments
				if tc.Arguments == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case schema.RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolResults)+1)
			for _, r := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Text, r.IsError))
			}
			if note := m.Text(); note != "" {
				blocks = append(blocks, anthropic.NewTextBlock(note))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertResponseFromSDK(message *anthropic.Message) schema.LLMResponse {
	var text string
	var toolCalls []schema.ToolCallRequest
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			var input map[string]any
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &input)
			}
			if input == nil {
				input = map[string]any{}
			}
			toolCalls = append(toolCalls, schema.ToolCallRequest{
				Id:        block.ID,
				Name:      block.Name,
				Arguments: input,
			})
		}
	}

	var content *string
	if text != "" {
		content = &text
	}
	return schema.LLMResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason(string(message.StopReason)),
		Usage: map[string]int{
			"input_tokens":  int(message.Usage.InputTokens),
			"output_tokens": int(message.Usage.OutputTokens),
		},
	}
}
