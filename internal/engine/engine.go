// Package engine runs the per-message pipeline shared by every transport:
// record the user turn, build the prompt, ask the model, and either relay
// the reply or dispatch the tool call it contains.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/masterphooey/tater/internal/dispatch"
	"github.com/masterphooey/tater/internal/history"
	"github.com/masterphooey/tater/internal/llm"
	"github.com/masterphooey/tater/internal/prompt"
	"github.com/masterphooey/tater/internal/settings"
	"github.com/masterphooey/tater/internal/store"
	"github.com/masterphooey/tater/pkg/content"
	"github.com/masterphooey/tater/pkg/plugin"
	"github.com/masterphooey/tater/pkg/toolcall"
)

const (
	emptyReplyText   = "I'm not sure how to respond to that."
	genericErrorText = "An error occurred while processing your request."
	defaultMaxOutput = 4096
)

// Incoming is one user message from any transport.
type Incoming struct {
	Transport string
	ChannelID string
	Sender    string
	// Mention is how this transport addresses the sender in replies.
	Mention string
	Content string
}

// SendFunc delivers content items to the originating channel. The engine
// calls it for wait messages and for the final reply.
type SendFunc func(ctx context.Context, items []content.Item) error

// Engine wires the pipeline's collaborators together.
type Engine struct {
	Provider llm.Provider
	Registry *plugin.Registry
	Settings *settings.Settings
	History  *history.Store
	Store    store.Store
	Router   *dispatch.Router

	BasePrompt string
	// ReplayWindow is how many history entries feed the prompt; zero
	// replays the stored window.
	ReplayWindow int
	MaxOutput    int
	Temperature  float64

	channelMu sync.Mutex
	channels  map[string]*sync.Mutex
}

// lockChannel serializes message handling per channel so overlapping
// messages in one conversation cannot interleave their history writes.
func (e *Engine) lockChannel(key string) func() {
	e.channelMu.Lock()
	if e.channels == nil {
		e.channels = map[string]*sync.Mutex{}
	}
	mu, ok := e.channels[key]
	if !ok {
		mu = &sync.Mutex{}
		e.channels[key] = mu
	}
	e.channelMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Handle processes one message end to end and delivers the reply through
// send. It only returns an error when delivery itself fails; pipeline
// failures are reported to the user as friendly text.
func (e *Engine) Handle(ctx context.Context, msg Incoming, send SendFunc) error {
	key := history.Key(msg.Transport, msg.ChannelID)
	unlock := e.lockChannel(key)
	defer unlock()

	if err := e.History.Append(ctx, key, history.Entry{
		Role:     "user",
		Username: msg.Sender,
		Content:  history.Content{Text: msg.Content},
	}); err != nil {
		slog.Error("recording user turn failed", "channel", key, "error", err)
	}

	reply, err := e.complete(ctx, msg, key)
	if err != nil {
		slog.Error("completion failed", "channel", key, "error", err)
		return send(ctx, []content.Item{content.TextItem(e.friendlyError(ctx, genericErrorText))})
	}

	call, isCall := toolcall.Parse(reply)
	if !isCall {
		if reply == "" {
			reply = emptyReplyText
		}
		if err := e.recordAssistantText(ctx, key, reply); err != nil {
			slog.Error("recording assistant turn failed", "channel", key, "error", err)
		}
		return send(ctx, []content.Item{content.TextItem(reply)})
	}

	items, derr := e.Router.Dispatch(ctx, dispatch.Invocation{
		Transport:  msg.Transport,
		ChannelKey: key,
		Sender:     msg.Sender,
		Mention:    msg.Mention,
		Wait: func(ctx context.Context, text string) {
			if err := send(ctx, []content.Item{content.TextItem(text)}); err != nil {
				slog.Warn("wait message delivery failed", "channel", key, "error", err)
			}
		},
	}, call)
	if derr != nil {
		var de *dispatch.Error
		text := genericErrorText
		if errors.As(derr, &de) {
			text = dispatch.UserMessage(de)
		}
		text = e.friendlyError(ctx, text)
		if err := e.recordAssistantText(ctx, key, text); err != nil {
			slog.Error("recording error turn failed", "channel", key, "error", err)
		}
		return send(ctx, []content.Item{content.TextItem(text)})
	}

	if len(items) == 0 {
		items = []content.Item{content.TextItem(emptyReplyText)}
	}
	for _, item := range items {
		if err := e.recordAssistantItem(ctx, key, item); err != nil {
			slog.Error("recording result turn failed", "channel", key, "error", err)
		}
	}
	return send(ctx, items)
}

// complete builds the prompt, replays history, and asks the model.
func (e *Engine) complete(ctx context.Context, msg Incoming, key string) (string, error) {
	system := prompt.Build(ctx, e.BasePrompt, e.Registry, e.Settings, msg.Transport, time.Now())

	entries, err := e.History.Read(ctx, key, e.ReplayWindow)
	if err != nil {
		return "", fmt.Errorf("replaying history: %w", err)
	}
	msgs := history.CollapseAlternation(history.Render(entries))
	if len(msgs) == 0 {
		msgs = []history.Message{{Role: "user", Content: msg.Sender + ": " + msg.Content}}
	}

	req := llm.CompletionRequest{
		System:      system,
		MaxTokens:   e.MaxOutput,
		Temperature: e.Temperature,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxOutput
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := e.Provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (e *Engine) recordAssistantText(ctx context.Context, key, text string) error {
	return e.History.Append(ctx, key, history.Entry{
		Role:    "assistant",
		Content: history.Content{Text: text},
	})
}

// recordAssistantItem persists one reply item. Media payloads go to the
// blob store; the history keeps only the reference.
func (e *Engine) recordAssistantItem(ctx context.Context, key string, item content.Item) error {
	if item.IsText() {
		return e.recordAssistantText(ctx, key, item.Text)
	}
	blobKey := item.BlobKey
	if blobKey == "" && len(item.Bytes) > 0 {
		k, err := e.Store.PutBlob(ctx, item.Bytes)
		if err != nil {
			slog.Warn("persisting media payload failed", "channel", key, "name", item.Name, "error", err)
		} else {
			blobKey = k
		}
	}
	return e.History.Append(ctx, key, history.Entry{
		Role: "assistant",
		Content: history.Content{Media: &history.MediaRef{
			Kind:     item.Kind,
			Name:     item.Name,
			Mimetype: item.Mimetype,
			BlobKey:  blobKey,
		}},
	})
}

// friendlyError asks the model to phrase the failure in the assistant's
// voice; if that fails too, the plain text goes out as-is.
func (e *Engine) friendlyError(ctx context.Context, text string) string {
	resp, err := e.Provider.Complete(ctx, llm.CompletionRequest{
		System:    e.BasePrompt,
		MaxTokens: 256,
		Messages: []llm.Message{{
			Role:    "user",
			Content: "Rephrase this error notice for the user in one short friendly sentence: " + text,
		}},
	})
	if err != nil || resp.Content == "" {
		return text
	}
	return resp.Content
}

// PluginLLM adapts the provider to the narrow interface plugins use.
func PluginLLM(p llm.Provider, maxOutput int, temperature float64) plugin.LLM {
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	return &pluginLLM{provider: p, maxOutput: maxOutput, temperature: temperature}
}

type pluginLLM struct {
	provider    llm.Provider
	maxOutput   int
	temperature float64
}

func (p *pluginLLM) Complete(ctx context.Context, system, userPrompt string) (string, error) {
	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		System:      system,
		MaxTokens:   p.maxOutput,
		Temperature: p.temperature,
		Messages:    []llm.Message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
