// Package dummy provides a scripted model provider for tests and offline
// runs.
//
// A script is a comma-separated list of actions consumed one per call;
// the last action repeats once the script is exhausted:
//
//	ok             reply "dummy-ok"
//	msg:<text>     reply text
//	msgb64:<b64>   reply base64-decoded text
//	err:<class>    fail with a *model.ProviderError of that class
//	sleep:<ms>     wait, then reply "dummy-after-sleep"
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stupiduntilnot/rpchat/internal/model"
)

const providerName = "dummy"

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		kind, arg, found := strings.Cut(token, ":")
		if !found {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
		switch kind {
		case "err", "msg", "msgb64":
		case "sleep":
			if _, err := strconv.Atoi(arg); err != nil {
				return nil, fmt.Errorf("invalid dummy sleep %q: %w", arg, err)
			}
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
		actions = append(actions, action{kind: kind, arg: arg})
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Provider replays a script. It is safe for concurrent use; calls consume
// actions in arrival order.
type Provider struct {
	mu       sync.Mutex
	models   []string
	script   *scriptRunner
	requests []model.CompletionRequest
}

// NewProvider parses script and returns a provider that reports models
// from Models.
func NewProvider(script string, models ...string) (*Provider, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		models = []string{"dummy"}
	}
	return &Provider{models: models, script: &scriptRunner{actions: actions}}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Models returns the configured model ids.
func (p *Provider) Models(context.Context) ([]string, error) {
	return append([]string(nil), p.models...), nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []model.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.CompletionRequest(nil), p.requests...)
}

// ChatCompletion performs the next scripted action.
func (p *Provider) ChatCompletion(ctx context.Context, req model.CompletionRequest) (model.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	a := p.script.next()
	p.mu.Unlock()

	switch a.kind {
	case "err":
		class := model.ParseErrorClass(a.arg)
		return model.CompletionResponse{}, &model.ProviderError{
			Provider: providerName,
			Class:    class,
			Err:      fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, string(class))),
		}
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return model.CompletionResponse{}, model.NewError(providerName, 0, ctx.Err())
		case <-timer.C:
		}
		return reply(req, "dummy-after-sleep"), nil
	case "msg":
		return reply(req, a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.CompletionResponse{}, model.Malformed(providerName, "msgb64 decode failed: %w", err)
		}
		return reply(req, string(raw)), nil
	default:
		return reply(req, "dummy-ok"), nil
	}
}

func reply(req model.CompletionRequest, content string) model.CompletionResponse {
	return model.CompletionResponse{
		Content:      content,
		InputTokens:  len(req.Messages) + 1,
		OutputTokens: 1,
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
