package context

import (
	"container/list"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// TokenizerFunc adapts a plain function to the Tokenizer interface.
type TokenizerFunc func(text string) int

// CountTokens calls f(text).
func (f TokenizerFunc) CountTokens(text string) int {
	return f(text)
}

// WordTokenizer approximates tokens as Unicode words (UAX #29 segments).
// Whitespace segments are not counted; punctuation and each CJK ideograph
// count as one token apiece.
type WordTokenizer struct{}

// CountTokens returns the number of non-whitespace word segments in text.
func (WordTokenizer) CountTokens(text string) int {
	count := 0
	state := -1
	var word string
	for len(text) > 0 {
		word, text, state = uniseg.FirstWordInString(text, state)
		if strings.TrimSpace(word) != "" {
			count++
		}
	}
	return count
}

// CharTokenizer estimates one token per four characters, rounding up.
type CharTokenizer struct{}

// CountTokens returns ceil(runes/4).
func (CharTokenizer) CountTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// CachingTokenizer memoizes another tokenizer's counts in a bounded LRU.
// It is safe for concurrent use.
type CachingTokenizer struct {
	next       Tokenizer
	maxEntries int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type tokenCacheEntry struct {
	text   string
	tokens int
}

// NewCachingTokenizer wraps next with a cache of at most maxEntries texts.
// A non-positive maxEntries disables caching and returns next unchanged.
func NewCachingTokenizer(next Tokenizer, maxEntries int) Tokenizer {
	if maxEntries <= 0 {
		return next
	}
	return &CachingTokenizer{
		next:       next,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// CountTokens returns the cached count for text, computing it on a miss.
func (c *CachingTokenizer) CountTokens(text string) int {
	c.mu.Lock()
	if el, ok := c.entries[text]; ok {
		c.order.MoveToFront(el)
		tokens := el.Value.(*tokenCacheEntry).tokens
		c.mu.Unlock()
		return tokens
	}
	c.mu.Unlock()

	tokens := c.next.CountTokens(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[text]; ok {
		return tokens
	}
	c.entries[text] = c.order.PushFront(&tokenCacheEntry{text: text, tokens: tokens})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*tokenCacheEntry).text)
	}
	return tokens
}

// Len reports the number of cached texts.
func (c *CachingTokenizer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CountContextTokens sums the tokens of a system prompt and every message.
func CountContextTokens(tokenizer Tokenizer, system string, messages []Message) int {
	total := tokenizer.CountTokens(system)
	for _, msg := range messages {
		total += tokenizer.CountTokens(msg.Content)
	}
	return total
}
