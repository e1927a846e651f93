package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusUnauthorized, ClassAuth},
		{http.StatusForbidden, ClassAuth},
		{http.StatusTooManyRequests, ClassRateLimit},
		{http.StatusRequestTimeout, ClassTimeout},
		{http.StatusGatewayTimeout, ClassTimeout},
		{http.StatusBadRequest, ClassMalformed},
		{http.StatusInternalServerError, ClassUnknown},
		{0, ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status))
		})
	}
}

func TestNewError(t *testing.T) {
	err := NewError("openai", http.StatusTooManyRequests, errors.New("slow down"))
	assert.Equal(t, ClassRateLimit, err.Class)
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "status=429")

	wrapped := fmt.Errorf("request: %w", context.DeadlineExceeded)
	err = NewError("gemini", 0, wrapped)
	assert.Equal(t, ClassTimeout, err.Class)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = NewError("anthropic", http.StatusUnauthorized, errors.New("bad key"))
	assert.False(t, err.Retryable())
	assert.NotContains(t, NewError("x", 0, errors.New("boom")).Error(), "status=")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("attempt 1: %w", &ProviderError{Class: ClassTimeout, Err: errors.New("t")})))
	assert.False(t, IsRetryable(&ProviderError{Class: ClassMalformed, Err: errors.New("m")}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestParseErrorClass(t *testing.T) {
	assert.Equal(t, ClassRateLimit, ParseErrorClass("RATE_LIMIT"))
	assert.Equal(t, ClassAuth, ParseErrorClass(" auth "))
	assert.Equal(t, ClassUnknown, ParseErrorClass("provider_api"))
}

func TestFromAssembled(t *testing.T) {
	assembled := ctxpkg.AssembledContext{
		System:   "You are Luna.",
		Messages: []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}},
	}
	req := FromAssembled(assembled, "gpt-4o-mini", 256, 0.7)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "You are Luna.", req.System)
	assert.Equal(t, "gpt-4o-mini", req.ModelID)
	assert.Equal(t, 256, req.MaxOutputTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
}
