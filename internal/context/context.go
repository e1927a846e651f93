// Package context builds token-bounded prompts for roleplay chats.
//
// An [Assembler] renders the character's system prompt, pulls as much
// recent history as the token budget allows through a [HistorySource],
// forces the result into strict user/assistant alternation and appends
// the newest user turn. The output is an [AssembledContext] that any
// chat-completion provider can consume.
package context

import "context"

// HistorySource pages through a chat's stored messages.
//
// FetchBatch returns at most limit messages of chatID that are strictly
// older than beforeID (or the newest messages when beforeID is nil),
// ordered newest first. It returns fewer than limit messages only when
// the history is exhausted.
type HistorySource interface {
	FetchBatch(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]HistoryMessage, error)
}

// Tokenizer counts model tokens in a piece of text. Implementations must
// be total: every string has a non-negative count.
type Tokenizer interface {
	CountTokens(text string) int
}
