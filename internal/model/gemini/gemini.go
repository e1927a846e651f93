// Package gemini adapts the Google Gemini API to model.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/logger"
	"github.com/stupiduntilnot/rpchat/internal/model"
)

const providerName = "gemini"

// Client is a Gemini API client.
type Client struct {
	client  *genai.Client
	timeout time.Duration
}

// NewClient creates a Gemini client. An empty baseURL uses the SDK default.
func NewClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, timeout: timeout}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// ChatCompletion sends the prompt with the system prompt as the system
// instruction. Assistant turns use Gemini's "model" role.
func (c *Client) ChatCompletion(ctx context.Context, req model.CompletionRequest) (model.CompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger.Debug("sending gemini request", "model", req.ModelID, "messages", len(req.Messages))
	result, err := c.client.Models.GenerateContent(ctx, req.ModelID, convertMessages(req.Messages), buildConfig(req))
	if err != nil {
		return model.CompletionResponse{}, classify(err)
	}

	var response model.CompletionResponse
	if result.UsageMetadata != nil {
		response.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		response.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	content := strings.TrimSpace(extractText(result))
	if content == "" {
		return response, model.Malformed(providerName, "empty model response")
	}
	response.Content = content
	return response, nil
}

// Models lists the model ids available to the API key, without the
// "models/" prefix.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}

func convertMessages(messages []ctxpkg.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case ctxpkg.RoleUser:
			role = "user"
		case ctxpkg.RoleAssistant:
			role = "model"
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: msg.Content}},
			Role:  role,
		})
	}
	return contents
}

func buildConfig(req model.CompletionRequest) *genai.GenerateContentConfig {
	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	return config
}

// extractText joins the text parts of all candidates, skipping thoughts.
func extractText(result *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func classify(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return model.NewError(providerName, apiErr.Code, err)
	}
	return model.NewError(providerName, statusFromText(err), err)
}

// statusFromText recovers the HTTP status from SDK errors that only carry
// it in their message, such as "Error 429, Message: ...".
func statusFromText(err error) int {
	var code int
	msg := err.Error()
	if i := strings.Index(msg, "Error "); i >= 0 {
		if _, scanErr := fmt.Sscanf(msg[i:], "Error %d", &code); scanErr == nil {
			return code
		}
	}
	return 0
}
