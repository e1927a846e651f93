package context

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordTokenizer(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"hello", 1},
		{"Hello, world!", 4},
		{"don't stop", 2},
		{"你好", 2},
		{"*purrs*  softly", 4},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, WordTokenizer{}.CountTokens(tt.text))
		})
	}
}

func TestCharTokenizer(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"你好世界你", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CharTokenizer{}.CountTokens(tt.text), "text %q", tt.text)
	}
}

type countingTokenizer struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingTokenizer) CountTokens(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[text]++
	return len(text)
}

func TestCachingTokenizer_HitsAndEviction(t *testing.T) {
	inner := &countingTokenizer{}
	tok := NewCachingTokenizer(inner, 2)
	cache, ok := tok.(*CachingTokenizer)
	assert.True(t, ok)

	assert.Equal(t, 1, tok.CountTokens("a"))
	assert.Equal(t, 1, tok.CountTokens("a"))
	assert.Equal(t, 1, inner.calls["a"])

	tok.CountTokens("bb")
	tok.CountTokens("a") // refresh "a"
	tok.CountTokens("ccc")
	assert.Equal(t, 2, cache.Len())

	// "bb" was least recently used.
	assert.Equal(t, 2, tok.CountTokens("bb"))
	assert.Equal(t, 2, inner.calls["bb"])
	assert.Equal(t, 1, inner.calls["a"])
}

func TestCachingTokenizer_Disabled(t *testing.T) {
	inner := &countingTokenizer{}
	tok := NewCachingTokenizer(inner, 0)
	_, ok := tok.(*CachingTokenizer)
	assert.False(t, ok)
	assert.Same(t, inner, tok)
}

func TestCachingTokenizer_Concurrent(t *testing.T) {
	tok := NewCachingTokenizer(WordTokenizer{}, 8)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				text := fmt.Sprintf("message %d from %d", i%16, g%2)
				assert.Equal(t, 4, tok.CountTokens(text))
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, tok.(*CachingTokenizer).Len(), 8)
}

func TestCountContextTokens(t *testing.T) {
	got := CountContextTokens(fieldsTokenizer, "one two", []Message{
		{Role: RoleUser, Content: "three"},
		{Role: RoleAssistant, Content: "four five six"},
	})
	assert.Equal(t, 6, got)
}
