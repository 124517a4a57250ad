// Package settings exposes runtime-togglable state: per-plugin enablement
// and per-platform setting hashes. All reads go to the store; there is no
// cache, so a toggle from any front end takes effect on the next message.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/masterphooey/tater/internal/store"
)

const (
	enabledHash    = "plugin_enabled"
	settingsPrefix = "plugin_settings:"
)

// Settings reads and writes toggles through the store.
type Settings struct {
	store store.Store
}

func New(s store.Store) *Settings {
	return &Settings{store: s}
}

// PluginEnabled reports whether the named plugin is switched on. Only a
// stored value equal to "true" (case-insensitively) enables; a missing
// field, any other value, or a store error all read as disabled.
func (s *Settings) PluginEnabled(ctx context.Context, name string) bool {
	value, err := s.store.HGet(ctx, enabledHash, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("enablement read failed, treating plugin as disabled", "plugin", name, "error", err)
		}
		return false
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

// SetPluginEnabled persists the toggle.
func (s *Settings) SetPluginEnabled(ctx context.Context, name string, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	if err := s.store.HSet(ctx, enabledHash, name, value); err != nil {
		return fmt.Errorf("setting plugin %q enabled=%s: %w", name, value, err)
	}
	return nil
}

// PlatformSettings returns the flat setting hash for a category
// ("matrix", "webui", plugin names, ...). A missing category yields an
// empty map.
func (s *Settings) PlatformSettings(ctx context.Context, category string) (map[string]string, error) {
	fields, err := s.store.HGetAll(ctx, settingsPrefix+category)
	if err != nil {
		return nil, fmt.Errorf("reading %s settings: %w", category, err)
	}
	return fields, nil
}

// SavePlatformSettings merges fields into the category's hash.
func (s *Settings) SavePlatformSettings(ctx context.Context, category string, fields map[string]string) error {
	if err := s.store.HSetAll(ctx, settingsPrefix+category, fields); err != nil {
		return fmt.Errorf("saving %s settings: %w", category, err)
	}
	return nil
}
