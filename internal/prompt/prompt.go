// Package prompt assembles the system prompt sent with every completion:
// the current time, the assistant persona, and one usage block per plugin
// the requesting transport can actually use right now.
package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/masterphooey/tater/internal/settings"
	"github.com/masterphooey/tater/pkg/plugin"
)

// Build renders the system prompt for one request. Plugins appear only
// when they are enabled and support the requesting transport, so models
// never learn about capabilities they cannot trigger.
func Build(ctx context.Context, base string, reg *plugin.Registry, gate *settings.Settings, transport string, now time.Time) string {
	var b strings.Builder

	b.WriteString("Current time: ")
	b.WriteString(now.Format("Monday, January 02, 2006 at 03:04 PM"))
	b.WriteString("\n\n")
	b.WriteString(base)
	b.WriteString("\n")

	for _, p := range reg.All() {
		if !p.Supports(transport) {
			continue
		}
		if !gate.PluginEnabled(ctx, p.Name) {
			continue
		}
		b.WriteString("\nTool: ")
		b.WriteString(p.Name)
		b.WriteString("\nDescription: ")
		b.WriteString(p.Description)
		b.WriteString("\n")
		b.WriteString(p.Usage)
		b.WriteString("\n")
	}

	b.WriteString("\nIf no function is needed, reply normally.")
	return b.String()
}
