package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masterphooey/tater/internal/config"
	"github.com/masterphooey/tater/internal/dispatch"
	"github.com/masterphooey/tater/internal/engine"
	"github.com/masterphooey/tater/internal/history"
	"github.com/masterphooey/tater/internal/llm"
	"github.com/masterphooey/tater/internal/plugins"
	"github.com/masterphooey/tater/internal/settings"
	"github.com/masterphooey/tater/internal/store"
	"github.com/masterphooey/tater/internal/transport/habridge"
	"github.com/masterphooey/tater/internal/transport/matrix"
	"github.com/masterphooey/tater/internal/transport/webui"
	"github.com/masterphooey/tater/pkg/plugin"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	gate := settings.New(st)
	hist := history.New(st, cfg.History.MaxEntries)

	reg := plugin.NewRegistry(plugins.Builtins(cfg.Plugins))
	if err := reg.Load(); err != nil {
		return err
	}

	provider := buildProvider(cfg.LLM)
	blobs := func(key string) ([]byte, error) { return st.GetBlob(ctx, key) }

	router := &dispatch.Router{
		Registry:      reg,
		Gate:          gate,
		Blobs:         blobs,
		InvokeTimeout: cfg.Dispatch.InvokeTimeoutDuration(),
		LLM:           engine.PluginLLM(provider, cfg.LLM.MaxOutput, cfg.LLM.Temperature),
	}

	eng := &engine.Engine{
		Provider:     provider,
		Registry:     reg,
		Settings:     gate,
		History:      hist,
		Store:        st,
		Router:       router,
		BasePrompt:   cfg.BasePrompt,
		ReplayWindow: cfg.History.ReplayWindow,
		MaxOutput:    cfg.LLM.MaxOutput,
		Temperature:  cfg.LLM.Temperature,
	}

	slog.Info("tater starting",
		"version", Version,
		"store", cfg.Store.Driver,
		"provider", provider.Name(),
		"plugins", len(reg.All()),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if cfg.WebUI.Enabled {
		srv := &webui.Server{
			Engine:   eng,
			History:  hist,
			Settings: gate,
			Registry: reg,
			Store:    st,
			Addr:     cfg.WebUI.Addr,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("webui: %w", err)
			}
		}()
	}

	if cfg.Bridge.Enabled {
		srv := &habridge.Server{
			Engine:       eng,
			Addr:         cfg.Bridge.Addr,
			DefaultAgent: cfg.Bridge.DefaultTransport,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("bridge: %w", err)
			}
		}()
	}

	if cfg.Matrix.Enabled {
		gw := matrix.New(cfg.Matrix, eng)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gw.Run(ctx); err != nil {
				errCh <- fmt.Errorf("matrix: %w", err)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	for err := range errCh {
		if err != nil && ctx.Err() == nil {
			cancel()
			return err
		}
	}

	slog.Info("tater stopped")
	return nil
}

func buildProvider(cfg config.LLMConfig) llm.Provider {
	if cfg.BaseURL != "" && cfg.Provider != "" && cfg.Provider != "anthropic" {
		return llm.NewAnthropicCompat(cfg.Provider, cfg.BaseURL, cfg.APIKey, cfg.Model)
	}
	return llm.NewAnthropic(cfg.APIKey, cfg.Model)
}
