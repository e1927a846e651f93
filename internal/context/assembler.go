package context

import (
	"context"
	"strings"

	"github.com/stupiduntilnot/rpchat/internal/logger"
)

// DefaultMinHistoryTokens is the least room that must be left for history
// once the system prompt and final user turn are reserved.
const DefaultMinHistoryTokens = 300

// ContinuePrompt stands in for the user's turn when there is no new user
// message, asking the model to carry on.
const ContinuePrompt = "[Continue the roleplay from where it left off.]"

// ContextRequest is everything needed to assemble one prompt.
type ContextRequest struct {
	ChatID int64
	// FromMessageID limits history to messages strictly older than it.
	FromMessageID     *int64
	LatestUserMessage string
	Character         CharacterProfile
	Persona           PersonaProfile
	CharacterMemory   string
	// Jailbreak is used when the character has none of its own.
	Jailbreak   string
	ModelID     string
	TokenBudget int
}

// AssembledContext is a prompt ready for a chat-completion provider.
// Messages alternate strictly between user and assistant and both start
// and end with the user.
type AssembledContext struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
	// Tokens is the count of System plus all Messages.
	Tokens int `json:"tokens"`
	// HistoryMessages is how many stored messages made it into the prompt.
	HistoryMessages int `json:"history_messages"`
}

// Assembler builds prompts from stored history. It keeps no state between
// calls and is safe for concurrent use if its Tokenizer and Source are.
type Assembler struct {
	Tokenizer        Tokenizer
	Source           HistorySource
	MinHistoryTokens int
	BatchSize        int
}

// NewAssembler returns an Assembler with the default minimum history
// budget and batch size.
func NewAssembler(tokenizer Tokenizer, source HistorySource) *Assembler {
	return &Assembler{
		Tokenizer:        tokenizer,
		Source:           source,
		MinHistoryTokens: DefaultMinHistoryTokens,
		BatchSize:        DefaultBatchSize,
	}
}

// Assemble renders the system prompt, reserves room for it and the final
// user turn, fills the rest of the budget with the newest history and
// normalizes the result.
//
// It fails with a *BudgetError when less than MinHistoryTokens would be
// left for history, and with a *RenderError when the system prompt
// cannot be rendered. History source errors are returned unchanged.
func (a *Assembler) Assemble(ctx context.Context, req ContextRequest) (AssembledContext, error) {
	variant := SelectVariant(req.ModelID)
	system, err := RenderSystemPrompt(variant, req.Character, req.Persona, req.CharacterMemory)
	if err != nil {
		return AssembledContext{}, err
	}

	jailbreak := req.Character.Jailbreak
	if jailbreak == "" {
		jailbreak = req.Jailbreak
	}
	terminator := BuildTerminator(req.LatestUserMessage, ExpandMacros(jailbreak, req.Persona.Name, req.Character.Name))

	reserved := a.Tokenizer.CountTokens(system) + a.Tokenizer.CountTokens(terminator)
	remaining := req.TokenBudget - reserved
	if remaining < a.minHistoryTokens() {
		return AssembledContext{}, &BudgetError{
			Budget:    req.TokenBudget,
			Reserved:  reserved,
			Remaining: remaining,
			Minimum:   a.minHistoryTokens(),
		}
	}

	window, err := CollectWindow(ctx, a.Source, a.Tokenizer, req.ChatID, req.FromMessageID, remaining, a.BatchSize)
	if err != nil {
		return AssembledContext{}, err
	}

	history := make([]Message, 0, len(window.Messages))
	for _, msg := range window.Messages {
		history = append(history, Message{Role: msg.Role(), Content: msg.Text})
	}

	// Merging and the synthetic opener can cost a few tokens the window
	// did not account for; drop the oldest history until the total fits.
	var messages []Message
	var total int
	for {
		messages = appendMerged(Normalize(history), Message{Role: RoleUser, Content: terminator})
		total = CountContextTokens(a.Tokenizer, system, messages)
		if total <= req.TokenBudget || len(history) == 0 {
			break
		}
		history = history[1:]
	}

	logger.Debug("context assembled",
		"chat_id", req.ChatID,
		"variant", variant,
		"budget", req.TokenBudget,
		"reserved", reserved,
		"window_messages", len(window.Messages),
		"history_messages", len(history),
		"tokens", total,
	)

	return AssembledContext{
		System:          system,
		Messages:        messages,
		Tokens:          total,
		HistoryMessages: len(history),
	}, nil
}

func (a *Assembler) minHistoryTokens() int {
	if a.MinHistoryTokens <= 0 {
		return DefaultMinHistoryTokens
	}
	return a.MinHistoryTokens
}

// BuildTerminator returns the final user turn: the user's message (or
// ContinuePrompt when it is blank) followed by the jailbreak, if any,
// after a blank line.
func BuildTerminator(latestUserMessage, jailbreak string) string {
	terminator := latestUserMessage
	if strings.TrimSpace(terminator) == "" {
		terminator = ContinuePrompt
	}
	if jailbreak != "" {
		terminator += "\n\n" + jailbreak
	}
	return terminator
}
