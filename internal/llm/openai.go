package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// OpenAIClient talks to the OpenAI Responses API, or to any compatible
// endpoint when a base URL is configured.
type OpenAIClient struct {
	client openai.Client
	name   string
	model  string
}

// NewOpenAIClient creates a client for the given model. An empty baseURL uses
// the public API.
func NewOpenAIClient(name, apiKey, model, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		name:   name,
		model:  model,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.name }

// Complete sends a single non-streaming Responses request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: openAIInput(req),
		},
	}
	if tools := openAITools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}

	var opts []option.RequestOption
	if req.Temperature != nil {
		opts = append(opts, option.WithJSONSet("temperature", *req.Temperature))
	}
	if req.TopP != nil {
		opts = append(opts, option.WithJSONSet("top_p", *req.TopP))
	}

	resp, err := c.client.Responses.New(ctx, params, opts...)
	if err != nil {
		return nil, c.providerError(err)
	}

	out := &CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: StopReasonEnd,
		Model:      string(resp.Model),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		Duration: time.Since(start),
	}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    fc.CallID,
			Name:  fc.Name,
			Input: fc.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = StopReasonToolUse
	}
	return out, nil
}

func (c *OpenAIClient) providerError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return &ProviderError{Provider: c.name, Message: msg, Code: apiErr.StatusCode}
	}
	return &ProviderError{Provider: c.name, Message: err.Error()}
}

func openAIInput(req CompletionRequest) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(req.Messages)+1)
	if req.System != "" {
		items = append(items, responses.ResponseInputItemParamOfMessage(
			req.System, responses.EasyInputMessageRoleSystem))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.Content, responses.EasyInputMessageRoleSystem))
		case RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.Content, responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					m.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(
					tc.Input, tc.ID, tc.Name))
			}
		case RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
				m.ToolCallID, m.Content))
		}
	}
	return items
}

func openAITools(defs []ToolDefinition) []responses.ToolUnionParam {
	tools := make([]responses.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  schemaMap(d.InputSchema),
			},
		})
	}
	return tools
}
