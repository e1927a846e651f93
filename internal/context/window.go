package context

import "context"

// DefaultBatchSize is how many history messages are requested per fetch.
const DefaultBatchSize = 100

// Window is a run of consecutive history messages, oldest first.
type Window struct {
	Messages []HistoryMessage
	Tokens   int
}

// CollectWindow gathers the most recent messages of a chat that fit in
// budget tokens. Messages strictly older than fromMessageID are considered
// (all messages when it is nil), newest first, in batches of batchSize.
//
// Collection is greedy and never splits a message: it stops at the first
// message that does not fit, even if older ones would. Running out of
// history is not an error. Errors from source are returned unchanged.
func CollectWindow(
	ctx context.Context,
	source HistorySource,
	tokenizer Tokenizer,
	chatID int64,
	fromMessageID *int64,
	budget int,
	batchSize int,
) (Window, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	remaining := budget
	cursor := fromMessageID
	var collected []HistoryMessage

collect:
	for {
		batch, err := source.FetchBatch(ctx, chatID, batchSize, cursor)
		if err != nil {
			return Window{}, err
		}
		if len(batch) == 0 {
			break
		}
		for _, msg := range batch {
			tokens := tokenizer.CountTokens(msg.Text)
			if tokens > remaining {
				break collect
			}
			collected = append(collected, msg)
			remaining -= tokens
			id := msg.ID
			cursor = &id
		}
		if len(batch) < batchSize {
			break
		}
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return Window{Messages: collected, Tokens: budget - remaining}, nil
}
