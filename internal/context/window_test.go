package context

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fieldsTokenizer counts whitespace-separated fields, which makes token
// arithmetic in tests easy to read.
var fieldsTokenizer = TokenizerFunc(func(text string) int {
	return len(strings.Fields(text))
})

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

// memorySource serves an in-memory history stored oldest first.
type memorySource struct {
	mu       sync.Mutex
	messages []HistoryMessage
	err      error
	calls    int
	cursors  []*int64
}

func newMemorySource(texts ...string) *memorySource {
	src := &memorySource{}
	for i, text := range texts {
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderAssistant
		}
		src.messages = append(src.messages, HistoryMessage{ID: int64(i + 1), Sender: sender, Text: text})
	}
	return src
}

func (s *memorySource) FetchBatch(_ context.Context, _ int64, limit int, beforeID *int64) ([]HistoryMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.cursors = append(s.cursors, beforeID)
	if s.err != nil {
		return nil, s.err
	}
	var batch []HistoryMessage
	for i := len(s.messages) - 1; i >= 0 && len(batch) < limit; i-- {
		if beforeID != nil && s.messages[i].ID >= *beforeID {
			continue
		}
		batch = append(batch, s.messages[i])
	}
	return batch, nil
}

func ids(messages []HistoryMessage) []int64 {
	out := make([]int64, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }

func TestCollectWindow_ExactFit(t *testing.T) {
	src := newMemorySource(words(10), words(10), words(10), words(10), words(10))

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 50, DefaultBatchSize)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(w.Messages))
	assert.Equal(t, 50, w.Tokens)
}

func TestCollectWindow_BoundaryDropsOlderMessage(t *testing.T) {
	src := newMemorySource(words(1), words(10), words(10), words(10), words(10), words(10))

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 50, DefaultBatchSize)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, ids(w.Messages))
	assert.Equal(t, 50, w.Tokens)
}

func TestCollectWindow_FromMessageIDIsExclusive(t *testing.T) {
	src := newMemorySource("a", "b", "c", "d", "e", "f")

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, int64Ptr(4), 100, DefaultBatchSize)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(w.Messages))
}

func TestCollectWindow_Pagination(t *testing.T) {
	src := newMemorySource("a", "b", "c", "d", "e")

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(w.Messages))
	assert.Equal(t, 3, src.calls)

	require.Len(t, src.cursors, 3)
	assert.Nil(t, src.cursors[0])
	assert.Equal(t, int64(4), *src.cursors[1])
	assert.Equal(t, int64(2), *src.cursors[2])
}

func TestCollectWindow_PaginationExhaustedOnBatchBoundary(t *testing.T) {
	src := newMemorySource("a", "b", "c", "d")

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 100, 2)
	require.NoError(t, err)
	assert.Len(t, w.Messages, 4)
	assert.Equal(t, 3, src.calls)
}

func TestCollectWindow_GreedyStopsAtFirstOversizedMessage(t *testing.T) {
	src := newMemorySource("a", "b", "c", words(50), "e")

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids(w.Messages))
	assert.Equal(t, 1, w.Tokens)
	assert.Equal(t, 1, src.calls, "no batch is fetched after the budget stops collection")
}

func TestCollectWindow_ZeroBudget(t *testing.T) {
	src := newMemorySource("a")

	w, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, w.Messages)
	assert.Zero(t, w.Tokens)
}

func TestCollectWindow_EmptyHistory(t *testing.T) {
	w, err := CollectWindow(context.Background(), newMemorySource(), fieldsTokenizer, 1, nil, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, w.Messages)
}

func TestCollectWindow_SourceErrorUnchanged(t *testing.T) {
	boom := errors.New("storage unavailable")
	src := newMemorySource("a")
	src.err = boom

	_, err := CollectWindow(context.Background(), src, fieldsTokenizer, 1, nil, 100, 10)
	assert.Same(t, boom, err)
}
