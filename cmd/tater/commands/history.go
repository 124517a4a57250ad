package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/masterphooey/tater/internal/config"
	"github.com/masterphooey/tater/internal/history"
	"github.com/masterphooey/tater/internal/store"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and wipe conversation histories",
	}
	cmd.AddCommand(historyShowCmd(), historyWipeCmd())
	return cmd
}

func withHistory(fn func(ctx context.Context, hist *history.Store) error) error {
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
	return fn(ctx, history.New(st, cfg.History.MaxEntries))
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <transport> <channel>",
		Short: "Print a channel's stored history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(ctx context.Context, hist *history.Store) error {
				entries, err := hist.Read(ctx, history.Key(args[0], args[1]), 0)
				if err != nil {
					return err
				}
				for _, e := range entries {
					cmd.Printf("%-9s %s\n", e.Role, history.RenderText(e))
				}
				return nil
			})
		},
	}
}

func historyWipeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wipe <transport> <channel>",
		Short: "Delete a channel's stored history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(ctx context.Context, hist *history.Store) error {
				key := history.Key(args[0], args[1])
				if err := hist.Clear(ctx, key); err != nil {
					return err
				}
				cmd.Printf("wiped %s\n", key)
				return nil
			})
		},
	}
}
