// Package openai adapts the OpenAI chat completions API (and compatible
// servers) to model.Provider.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/logger"
	"github.com/stupiduntilnot/rpchat/internal/model"
)

const providerName = "openai"

// Client is an OpenAI chat completions client.
type Client struct {
	client sdk.Client
}

// NewClient creates an OpenAI client. An empty baseURL uses the SDK
// default. Retries are left to the caller.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{client: sdk.NewClient(opts...)}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// ChatCompletion sends a chat completion request and returns a CompletionResponse.
func (c *Client) ChatCompletion(ctx context.Context, req model.CompletionRequest) (model.CompletionResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(req.ModelID),
		Messages:    convertMessages(req.System, req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxOutputTokens))
	}

	logger.Debug("sending openai request", "model", req.ModelID, "messages", len(params.Messages))
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.CompletionResponse{}, classify(err)
	}

	result := model.CompletionResponse{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	if len(completion.Choices) == 0 {
		return result, model.Malformed(providerName, "no choices in response")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return result, model.Malformed(providerName, "empty model response")
	}
	result.Content = content
	return result, nil
}

// Models lists the model ids available to the API key.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func convertMessages(system string, messages []ctxpkg.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, sdk.SystemMessage(system))
	}
	for _, msg := range messages {
		switch msg.Role {
		case ctxpkg.RoleUser:
			out = append(out, sdk.UserMessage(msg.Content))
		case ctxpkg.RoleAssistant:
			out = append(out, sdk.AssistantMessage(msg.Content))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return model.NewError(providerName, apiErr.StatusCode, errors.New(truncate(apiErr.Error(), 400)))
	}
	return model.NewError(providerName, 0, err)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
