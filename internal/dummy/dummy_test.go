package dummy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/model"
)

func testRequest() model.CompletionRequest {
	return model.CompletionRequest{
		Messages: []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}},
		ModelID:  "dummy",
	}
}

func TestNewProvider_InvalidScript(t *testing.T) {
	for _, script := range []string{"boom", "wat:1", "sleep:soon"} {
		_, err := NewProvider(script)
		assert.Error(t, err, "script %q", script)
	}
}

func TestProvider_ScriptedResponses(t *testing.T) {
	p, err := NewProvider("err:rate_limit,msg:hello: there")
	require.NoError(t, err)

	_, err = p.ChatCompletion(context.Background(), testRequest())
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ClassRateLimit, perr.Class)
	assert.True(t, perr.Retryable())
	assert.Equal(t, "dummy", perr.Provider)

	resp, err := p.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello: there", resp.Content)

	// The last action repeats.
	resp, err = p.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello: there", resp.Content)
	assert.Len(t, p.Requests(), 3)
}

func TestProvider_EmptyScript(t *testing.T) {
	p, err := NewProvider(" , ")
	require.NoError(t, err)
	resp, err := p.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "dummy-ok", resp.Content)
	assert.Equal(t, 2, resp.InputTokens)
}

func TestProvider_MsgB64Action(t *testing.T) {
	p, err := NewProvider("msgb64:aGVsbG8sIHdvcmxk,msgb64:!!") // "hello, world"
	require.NoError(t, err)

	resp, err := p.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello, world", resp.Content)

	_, err = p.ChatCompletion(context.Background(), testRequest())
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ClassMalformed, perr.Class)
}

func TestProvider_SleepHonoursContext(t *testing.T) {
	p, err := NewProvider("sleep:5000")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.ChatCompletion(ctx, testRequest())
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ClassTimeout, perr.Class)
}

func TestProvider_SleepThenReply(t *testing.T) {
	p, err := NewProvider("sleep:1")
	require.NoError(t, err)
	resp, err := p.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "dummy-after-sleep", resp.Content)
}

func TestProvider_Models(t *testing.T) {
	p, err := NewProvider("ok", "dummy-small", "dummy-large")
	require.NoError(t, err)
	ids, err := p.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dummy-small", "dummy-large"}, ids)
	assert.Equal(t, "dummy", p.Name())

	var _ model.Provider = p
}
