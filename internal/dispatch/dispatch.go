// Package dispatch routes parsed function calls to plugin handlers and
// converts whatever comes back into content items and a stable error
// taxonomy. Nothing a plugin does, including panicking, escapes Dispatch
// as anything but an *Error.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/masterphooey/tater/pkg/content"
	"github.com/masterphooey/tater/pkg/plugin"
	"github.com/masterphooey/tater/pkg/toolcall"
)

// Code classifies a dispatch failure.
type Code string

const (
	CodeUnknown     Code = "unknown_capability"
	CodeDisabled    Code = "disabled"
	CodeUnsupported Code = "unsupported_transport"
	CodeFailed      Code = "capability_failed"
	CodeTimeout     Code = "timeout"
)

// Error is the only error type Dispatch returns.
type Error struct {
	Code Code
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch %s: %s: %v", e.Name, e.Code, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %s", e.Name, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Gate answers enablement queries; implemented by settings.Settings.
type Gate interface {
	PluginEnabled(ctx context.Context, name string) bool
}

// WaitFunc delivers the plugin's wait message to the requesting channel
// before the handler runs.
type WaitFunc func(ctx context.Context, text string)

// Router dispatches function calls against the registry.
type Router struct {
	Registry *plugin.Registry
	Gate     Gate
	// Blobs resolves payload references during result normalization.
	Blobs content.BlobResolver
	// InvokeTimeout bounds one handler invocation; zero means no bound.
	InvokeTimeout time.Duration
	// LLM is handed to handlers for their own synthesis calls.
	LLM plugin.LLM
}

// Invocation identifies the requesting side of a dispatch.
type Invocation struct {
	Transport  string
	ChannelKey string
	Sender     string
	Mention    string
	// Wait, when set, receives the plugin's wait message. Failures to
	// deliver it never fail the dispatch.
	Wait WaitFunc
}

// Dispatch runs one function call end to end: resolve, gate, transport
// check, wait message, invoke, normalize. The returned items are ready
// for delivery; on error they are nil and err is always an *Error.
func (r *Router) Dispatch(ctx context.Context, inv Invocation, call *toolcall.FunctionCall) ([]content.Item, error) {
	p, ok := r.Registry.Get(call.Name)
	if !ok {
		return nil, &Error{Code: CodeUnknown, Name: call.Name}
	}
	if !r.Gate.PluginEnabled(ctx, call.Name) {
		return nil, &Error{Code: CodeDisabled, Name: call.Name}
	}
	handler, ok := p.Handlers[inv.Transport]
	if !ok {
		return nil, &Error{Code: CodeUnsupported, Name: call.Name,
			Err: fmt.Errorf("no handler for transport %q", inv.Transport)}
	}

	if inv.Wait != nil && p.WaitPrompt != "" {
		inv.Wait(ctx, strings.ReplaceAll(p.WaitPrompt, "{mention}", inv.Mention))
	}

	start := time.Now()
	raw, err := r.invoke(ctx, handler, &plugin.Invocation{
		Transport:  inv.Transport,
		ChannelKey: inv.ChannelKey,
		Sender:     inv.Sender,
		Mention:    inv.Mention,
		Args:       call.Arguments,
		LLM:        r.LLM,
	})
	duration := time.Since(start).Round(time.Millisecond)
	if err != nil {
		// Only a deadline is a timeout; plain cancellation (a client
		// going away) stays a failure.
		code := CodeFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		slog.Error("plugin invocation failed",
			"plugin", call.Name, "transport", inv.Transport, "duration", duration, "error", err)
		return nil, &Error{Code: code, Name: call.Name, Err: err}
	}
	slog.Info("plugin invoked",
		"plugin", call.Name, "transport", inv.Transport, "duration", duration)

	return content.Normalize(raw, r.Blobs), nil
}

// invoke runs the handler under the configured timeout and converts
// panics into errors.
func (r *Router) invoke(ctx context.Context, handler plugin.Handler, pinv *plugin.Invocation) (any, error) {
	if r.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.InvokeTimeout)
		defer cancel()
	}

	type result struct {
		raw any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("handler panic: %v", rec)}
			}
		}()
		raw, err := handler(ctx, pinv)
		done <- result{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("invocation timed out: %w", ctx.Err())
	}
}

// UserMessage renders the stable user-facing text for a dispatch error.
// Unknown and disabled capabilities deliberately read the same so front
// ends cannot probe the installed set.
func UserMessage(err *Error) string {
	switch err.Code {
	case CodeUnknown, CodeDisabled:
		return fmt.Sprintf("I don't have a tool called %q available right now.", err.Name)
	case CodeUnsupported:
		return fmt.Sprintf("The %s tool doesn't work from this platform.", err.Name)
	case CodeTimeout:
		return fmt.Sprintf("The %s tool took too long and was cancelled.", err.Name)
	default:
		return "An error occurred while processing your request."
	}
}
