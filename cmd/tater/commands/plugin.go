package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masterphooey/tater/internal/config"
	"github.com/masterphooey/tater/internal/plugins"
	"github.com/masterphooey/tater/internal/settings"
	"github.com/masterphooey/tater/internal/store"
	"github.com/masterphooey/tater/pkg/plugin"
)

func pluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage plugins",
	}
	cmd.AddCommand(pluginListCmd(), pluginToggleCmd("enable", true), pluginToggleCmd("disable", false))
	return cmd
}

// withSettings opens the configured store and runs fn against it.
func withSettings(fn func(ctx context.Context, cfg *config.Config, gate *settings.Settings, reg *plugin.Registry) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg := plugin.NewRegistry(plugins.Builtins(cfg.Plugins))
	if err := reg.Load(); err != nil {
		return err
	}
	return fn(ctx, cfg, settings.New(st), reg)
}

func pluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show installed plugins and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(func(ctx context.Context, _ *config.Config, gate *settings.Settings, reg *plugin.Registry) error {
				for _, p := range reg.All() {
					state := "disabled"
					if gate.PluginEnabled(ctx, p.Name) {
						state = "enabled"
					}
					cmd.Printf("%-24s %-9s %s\n", p.Name, state, p.Description)
				}
				return nil
			})
		},
	}
}

func pluginToggleCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withSettings(func(ctx context.Context, _ *config.Config, gate *settings.Settings, reg *plugin.Registry) error {
				if _, ok := reg.Get(name); !ok {
					return fmt.Errorf("no such plugin: %s", name)
				}
				if err := gate.SetPluginEnabled(ctx, name, enabled); err != nil {
					return err
				}
				cmd.Printf("%s %sd\n", name, verb)
				return nil
			})
		},
	}
}
