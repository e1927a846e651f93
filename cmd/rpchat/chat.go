package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stupiduntilnot/rpchat/internal/config"
	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/control"
	"github.com/stupiduntilnot/rpchat/internal/db"
	"github.com/stupiduntilnot/rpchat/internal/dummy"
	"github.com/stupiduntilnot/rpchat/internal/logger"
	modelpkg "github.com/stupiduntilnot/rpchat/internal/model"
	"github.com/stupiduntilnot/rpchat/internal/model/anthropic"
	"github.com/stupiduntilnot/rpchat/internal/model/gemini"
	"github.com/stupiduntilnot/rpchat/internal/model/openai"
	"github.com/stupiduntilnot/rpchat/internal/profile"
)

func newModelProvider(ctx context.Context, cfg config.Config) (modelpkg.Provider, error) {
	if err := cfg.RequireProviderCredentials(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.RequestTimeout()), nil
	case "anthropic":
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.RequestTimeout()), nil
	case "gemini":
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.RequestTimeout())
	case "dummy":
		return dummy.NewProvider(cfg.DummyScript, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

func (a *app) modelProvider(ctx context.Context) (modelpkg.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	provider, err := newModelProvider(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init model provider: %w", err)
	}
	a.provider = provider
	return provider, nil
}

func (a *app) retryPolicy() control.Policy {
	policy := control.DefaultPolicy()
	policy.MaxRetries = a.cfg.MaxRetries
	policy.BackoffUnit = a.backoff
	return policy
}

// turn is one prompt to assemble for a chat.
type turn struct {
	chat db.Chat
	// fromID excludes that message and everything newer from history.
	fromID    *int64
	userText  string
	requestID string
}

func newTurn(chat db.Chat, fromID *int64, userText string) turn {
	return turn{chat: chat, fromID: fromID, userText: userText, requestID: uuid.NewString()}
}

func loadProfiles(chat db.Chat) (ctxpkg.CharacterProfile, ctxpkg.PersonaProfile, error) {
	character, err := profile.LoadCharacter(chat.CharacterPath)
	if err != nil {
		return ctxpkg.CharacterProfile{}, ctxpkg.PersonaProfile{}, err
	}
	persona, err := profile.LoadPersona(chat.PersonaPath)
	if err != nil {
		return ctxpkg.CharacterProfile{}, ctxpkg.PersonaProfile{}, err
	}
	return character, persona, nil
}

// assemble builds the prompt for t. Budget and render failures are
// recorded as context.rejected events.
func (a *app) assemble(ctx context.Context, t turn) (ctxpkg.AssembledContext, error) {
	character, persona, err := loadProfiles(t.chat)
	if err != nil {
		return ctxpkg.AssembledContext{}, err
	}
	assembled, err := a.assembler.Assemble(ctx, ctxpkg.ContextRequest{
		ChatID:            t.chat.ID,
		FromMessageID:     t.fromID,
		LatestUserMessage: t.userText,
		Character:         character,
		Persona:           persona,
		CharacterMemory:   t.chat.Memory,
		Jailbreak:         a.cfg.Jailbreak,
		ModelID:           a.cfg.Model,
		TokenBudget:       a.cfg.TokenBudget,
	})
	if err != nil {
		a.logRejected(t, err)
		return ctxpkg.AssembledContext{}, err
	}
	return assembled, nil
}

func (a *app) logRejected(t turn, err error) {
	payload := map[string]any{
		"chat_id":    t.chat.ID,
		"request_id": t.requestID,
		"model":      a.cfg.Model,
		"error":      err.Error(),
	}
	var budgetErr *ctxpkg.BudgetError
	switch {
	case errors.As(err, &budgetErr):
		payload["budget"] = budgetErr.Budget
		payload["reserved"] = budgetErr.Reserved
		payload["remaining"] = budgetErr.Remaining
		payload["minimum"] = budgetErr.Minimum
	case errors.Is(err, ctxpkg.ErrRender):
	default:
		return
	}
	if _, logErr := db.LogEvent(a.db, nil, db.EventContextRejected, payload); logErr != nil {
		logger.Warn("failed to log context.rejected", "error", logErr)
	}
}

// complete assembles t and sends it to the provider, retrying transient
// failures. It returns the reply text and the id of the
// context.assembled event, which parents the completion events.
func (a *app) complete(ctx context.Context, t turn) (string, *int64, error) {
	assembled, err := a.assemble(ctx, t)
	if err != nil {
		return "", nil, err
	}

	var parentID *int64
	eventID, err := db.LogEvent(a.db, nil, db.EventContextAssembled, map[string]any{
		"chat_id":          t.chat.ID,
		"request_id":       t.requestID,
		"model":            a.cfg.Model,
		"variant":          string(ctxpkg.SelectVariant(a.cfg.Model)),
		"budget":           a.cfg.TokenBudget,
		"tokens":           assembled.Tokens,
		"history_messages": assembled.HistoryMessages,
		"prompt_messages":  len(assembled.Messages),
	})
	if err != nil {
		logger.Warn("failed to log context.assembled", "error", err)
	} else {
		parentID = &eventID
	}

	provider, err := a.modelProvider(ctx)
	if err != nil {
		return "", parentID, err
	}
	req := modelpkg.FromAssembled(assembled, a.cfg.Model, a.cfg.MaxOutputTokens, a.cfg.Temperature)

	var (
		resp     modelpkg.CompletionResponse
		attempts int
	)
	err = control.Retry(ctx, a.retryPolicy(), modelpkg.IsRetryable, func(attempt int) error {
		attempts = attempt
		var callErr error
		resp, callErr = provider.ChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		payload := map[string]any{
			"chat_id":    t.chat.ID,
			"request_id": t.requestID,
			"provider":   provider.Name(),
			"attempts":   attempts,
			"error":      err.Error(),
		}
		var providerErr *modelpkg.ProviderError
		if errors.As(err, &providerErr) {
			payload["class"] = string(providerErr.Class)
		}
		if _, logErr := db.LogEvent(a.db, parentID, db.EventCompletionFailed, payload); logErr != nil {
			logger.Warn("failed to log completion.failed", "error", logErr)
		}
		return "", parentID, fmt.Errorf("completion failed: %w", err)
	}

	if _, logErr := db.LogEvent(a.db, parentID, db.EventCompletionSucceeded, map[string]any{
		"chat_id":       t.chat.ID,
		"request_id":    t.requestID,
		"provider":      provider.Name(),
		"attempts":      attempts,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	}); logErr != nil {
		logger.Warn("failed to log completion.succeeded", "error", logErr)
	}
	logger.Info("reply received",
		"chat_id", t.chat.ID,
		"request_id", t.requestID,
		"provider", provider.Name(),
		"attempts", attempts,
		"prompt_tokens", assembled.Tokens,
	)
	return resp.Content, parentID, nil
}

// lastUserMessage finds the newest user message of a chat.
func (a *app) lastUserMessage(chatID int64) (db.Message, error) {
	messages, err := db.LatestMessages(a.db, chatID, a.cfg.HistoryBatchSize)
	if err != nil {
		return db.Message{}, err
	}
	for _, msg := range messages {
		if msg.Sender == string(ctxpkg.SenderUser) {
			return msg, nil
		}
	}
	return db.Message{}, fmt.Errorf("chat %d has no user message within the last %d messages", chatID, a.cfg.HistoryBatchSize)
}
