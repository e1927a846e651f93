package model

import (
	"context"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
)

// CompletionRequest is an assembled prompt plus sampling settings.
type CompletionRequest struct {
	System          string
	Messages        []ctxpkg.Message
	ModelID         string
	MaxOutputTokens int
	Temperature     float64
}

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the chat-completion backend a prompt is sent to.
type Provider interface {
	Name() string
	ChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Models lists the model identifiers the provider offers.
	Models(ctx context.Context) ([]string, error)
}

// FromAssembled builds a request from an assembled context.
func FromAssembled(assembled ctxpkg.AssembledContext, modelID string, maxOutputTokens int, temperature float64) CompletionRequest {
	return CompletionRequest{
		System:          assembled.System,
		Messages:        assembled.Messages,
		ModelID:         modelID,
		MaxOutputTokens: maxOutputTokens,
		Temperature:     temperature,
	}
}
