// Package anthropic adapts the Anthropic Messages API to model.Provider.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/logger"
	"github.com/stupiduntilnot/rpchat/internal/model"
)

const providerName = "anthropic"

// DefaultMaxTokens is sent when the request sets no output limit; the
// Messages API requires one.
const DefaultMaxTokens = 1024

// Client is an Anthropic Messages API client.
type Client struct {
	client sdk.Client
}

// NewClient creates an Anthropic client. An empty baseURL uses the SDK
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

// ChatCompletion sends the prompt to the Messages API. The system prompt
// travels in the dedicated system field.
func (c *Client) ChatCompletion(ctx context.Context, req model.CompletionRequest) (model.CompletionResponse, error) {
	maxTokens := int64(req.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.ModelID),
		MaxTokens:   maxTokens,
		Messages:    convertMessages(req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	logger.Debug("sending anthropic request", "model", req.ModelID, "messages", len(params.Messages))
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.CompletionResponse{}, classify(err)
	}

	result := model.CompletionResponse{
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}
	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return result, model.Malformed(providerName, "empty model response")
	}
	result.Content = content
	return result, nil
}

// Models lists the model ids available to the API key.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx, sdk.ModelListParams{})
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func convertMessages(messages []ctxpkg.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case ctxpkg.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case ctxpkg.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return model.NewError(providerName, apiErr.StatusCode, err)
	}
	return model.NewError(providerName, 0, err)
}
