// Package plugin defines the capability contract: what a plugin declares
// about itself, how it is invoked, and the registry that holds the
// installed set.
package plugin

import "context"

// LLM is the completion surface plugins may call for their own synthesis
// steps (summaries, search digests). It is deliberately narrower than the
// engine's provider interface.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Invocation carries everything a handler needs for one call.
type Invocation struct {
	// Transport is the tag of the front end the triggering message came
	// from ("matrix", "webui", "homeassistant", ...).
	Transport string
	// ChannelKey identifies the conversation, already qualified by
	// transport ("matrix:!room:server").
	ChannelKey string
	// Sender is the display name of the requesting user.
	Sender string
	// Mention is the transport-appropriate way to address the sender,
	// substituted into wait prompts.
	Mention string

	Args map[string]any
	LLM  LLM
}

// Handler executes a capability for one transport. The return value is
// loosely typed; the dispatcher normalizes it into content items.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Plugin is one installed capability.
type Plugin struct {
	// Name is the function name models use to invoke the plugin. It is
	// the registry key and must be unique.
	Name string
	// Usage is the JSON-shaped instruction block injected into the
	// system prompt so models know how to call the plugin.
	Usage string
	// Description is the one-line summary shown in the prompt and in
	// management UIs.
	Description string
	// WaitPrompt instructs the model to tell the user work has started;
	// "{mention}" is replaced with the sender's mention.
	WaitPrompt string

	// Handlers maps transport tags to implementations. A transport with
	// no entry is unsupported; there is no separate capability list.
	Handlers map[string]Handler
}

// Supports reports whether the plugin can serve the given transport.
func (p *Plugin) Supports(transport string) bool {
	_, ok := p.Handlers[transport]
	return ok
}

// Source produces the full plugin set for a registry load. It is called
// again on every reload.
type Source func() ([]*Plugin, error)
