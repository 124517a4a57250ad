package settings

import (
	"context"
	"testing"

	"github.com/masterphooey/tater/internal/store"
)

func TestPluginEnabled(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := New(mem)

	if s.PluginEnabled(ctx, "web_summary") {
		t.Error("plugin with no stored state should read disabled")
	}

	if err := s.SetPluginEnabled(ctx, "web_summary", true); err != nil {
		t.Fatal(err)
	}
	if !s.PluginEnabled(ctx, "web_summary") {
		t.Error("enabled plugin reads disabled")
	}

	if err := s.SetPluginEnabled(ctx, "web_summary", false); err != nil {
		t.Fatal(err)
	}
	if s.PluginEnabled(ctx, "web_summary") {
		t.Error("disabled plugin reads enabled")
	}
}

// Stored values may come from other front ends with their own casing; only
// "true" in any case enables.
func TestPluginEnabledValueForms(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := New(mem)

	cases := map[string]bool{
		"true":  true,
		"TRUE":  true,
		"True":  true,
		" true": true,
		"false": false,
		"1":     false,
		"yes":   false,
		"":      false,
	}
	for value, want := range cases {
		if err := mem.HSet(ctx, "plugin_enabled", "p", value); err != nil {
			t.Fatal(err)
		}
		if got := s.PluginEnabled(ctx, "p"); got != want {
			t.Errorf("value %q: enabled = %v, want %v", value, got, want)
		}
	}
}

// No caching: a toggle written directly to the store is visible on the
// very next read.
func TestPluginEnabledReadThrough(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := New(mem)

	if err := s.SetPluginEnabled(ctx, "p", true); err != nil {
		t.Fatal(err)
	}
	_ = s.PluginEnabled(ctx, "p")

	if err := mem.HSet(ctx, "plugin_enabled", "p", "false"); err != nil {
		t.Fatal(err)
	}
	if s.PluginEnabled(ctx, "p") {
		t.Error("stale enablement read after out-of-band toggle")
	}
}

func TestPlatformSettings(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemory())

	got, err := s.PlatformSettings(ctx, "webui")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("missing category yielded %v, want empty", got)
	}

	if err := s.SavePlatformSettings(ctx, "webui", map[string]string{"addr": ":8080"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePlatformSettings(ctx, "webui", map[string]string{"theme": "dark"}); err != nil {
		t.Fatal(err)
	}

	got, err = s.PlatformSettings(ctx, "webui")
	if err != nil {
		t.Fatal(err)
	}
	if got["addr"] != ":8080" || got["theme"] != "dark" {
		t.Errorf("settings = %v, want merged fields", got)
	}
}
