package context

// ContinuationInstruction opens a prompt whose history starts with an
// assistant turn, since providers expect the user to speak first.
const ContinuationInstruction = "[Continue the conversation from the following message.]"

// Normalize returns messages in strict user/assistant alternation,
// starting with the user. Adjacent messages with the same role are merged
// into one, joined by a newline. The input is not modified.
func Normalize(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]Message, 0, len(messages)+1)
	if messages[0].Role != RoleUser {
		out = append(out, Message{Role: RoleUser, Content: ContinuationInstruction})
	}
	for _, msg := range messages {
		out = appendMerged(out, msg)
	}
	return out
}

// appendMerged appends msg, folding it into the last message when both
// have the same role.
func appendMerged(messages []Message, msg Message) []Message {
	if n := len(messages); n > 0 && messages[n-1].Role == msg.Role {
		messages[n-1].Content += "\n" + msg.Content
		return messages
	}
	return append(messages, msg)
}
