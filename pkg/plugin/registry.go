package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
)

// Registry holds the installed plugin set. Lookups read an immutable
// snapshot, so reloads never block or tear an in-flight dispatch.
type Registry struct {
	source   Source
	snapshot atomic.Pointer[table]
}

type table struct {
	byName map[string]*Plugin
	sorted []*Plugin
}

// NewRegistry builds a registry over the given source. Call Load before
// first use.
func NewRegistry(source Source) *Registry {
	r := &Registry{source: source}
	r.snapshot.Store(&table{byName: map[string]*Plugin{}})
	return r
}

// Load populates the registry from its source. Unlike Reload, an empty
// result is accepted; a source error is not.
func (r *Registry) Load() error {
	plugins, err := r.source()
	if err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}
	r.snapshot.Store(buildTable(plugins))
	return nil
}

// Reload re-runs the source and atomically swaps in the new table. If the
// source errors or yields no plugins the previous table stays in effect, so
// a broken reload never leaves the assistant with zero capabilities.
func (r *Registry) Reload() error {
	plugins, err := r.source()
	if err != nil {
		slog.Warn("plugin reload failed, keeping previous set", "error", err)
		return fmt.Errorf("reloading plugins: %w", err)
	}
	next := buildTable(plugins)
	if len(next.byName) == 0 {
		slog.Warn("plugin reload produced no plugins, keeping previous set")
		return nil
	}
	r.snapshot.Store(next)
	slog.Info("plugins reloaded", "count", len(next.byName))
	return nil
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	p, ok := r.snapshot.Load().byName[name]
	return p, ok
}

// All returns the installed plugins sorted by name. The slice is shared
// with the snapshot and must not be mutated.
func (r *Registry) All() []*Plugin {
	return r.snapshot.Load().sorted
}

func buildTable(plugins []*Plugin) *table {
	t := &table{byName: make(map[string]*Plugin, len(plugins))}
	for _, p := range plugins {
		if p == nil || p.Name == "" {
			slog.Warn("skipping plugin without a name")
			continue
		}
		if _, dup := t.byName[p.Name]; dup {
			slog.Warn("skipping duplicate plugin", "name", p.Name)
			continue
		}
		t.byName[p.Name] = p
		t.sorted = append(t.sorted, p)
	}
	sort.Slice(t.sorted, func(i, j int) bool { return t.sorted[i].Name < t.sorted[j].Name })
	return t
}
