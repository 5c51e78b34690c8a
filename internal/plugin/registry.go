// Package plugin keeps the set of loaded source plugins and routes calls to them.
package plugin

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/tunedl/internal/capability"
	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/repository"
	"github.com/NamanBalaji/tunedl/internal/sandbox"
)

// loadParallelism bounds how many scripts LoadDir evaluates at once.
const loadParallelism = 4

// Plugin is the listing view of a loaded plugin.
type Plugin struct {
	ID        string           `json:"id"`
	Metadata  sandbox.Metadata `json:"metadata"`
	Enabled   bool             `json:"enabled"`
	Persisted bool             `json:"persisted"`
	LoadedAt  time.Time        `json:"loadedAt"`
}

type entry struct {
	rt        *sandbox.Runtime
	enabled   bool
	persisted bool
	loadedAt  time.Time
}

type Options struct {
	Timeout   time.Duration
	Requester sandbox.Requester
	// Store persists scripts loaded through Load. Nil keeps plugins in memory only.
	Store repository.PluginStore
}

// Registry owns every loaded plugin, indexed by id and kept in load order.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*entry
	order   []string

	timeout time.Duration
	req     sandbox.Requester
	store   repository.PluginStore
}

func New(opts Options) *Registry {
	return &Registry{
		plugins: make(map[string]*entry),
		timeout: opts.Timeout,
		req:     opts.Requester,
		store:   opts.Store,
	}
}

// ScriptID derives a stable id for a script loaded without one.
func ScriptID(script string) string {
	return capability.MD5([]byte(script))[:16]
}

// Load evaluates script, registers it under id and persists it. An empty id is derived
// from the script content. Loading over an existing id replaces that plugin.
func (r *Registry) Load(ctx context.Context, id, script string) (Plugin, error) {
	if id == "" {
		id = ScriptID(script)
	}

	p, err := r.load(ctx, id, script, r.store != nil, true)
	if err != nil {
		return Plugin{}, err
	}

	if r.store != nil {
		rec := &repository.PluginRecord{
			ID:      id,
			Name:    p.Metadata.Name,
			Version: p.Metadata.Version,
			Script:  script,
			Enabled: true,
		}
		if err := r.store.SavePlugin(rec); err != nil {
			logger.Errorf("Failed to persist plugin %s: %v", id, err)
			return p, fmt.Errorf("failed to persist plugin %s: %w", id, err)
		}
	}

	return p, nil
}

// LoadFile loads a script from disk under the id file_<basename>. File plugins are not
// persisted; they are read again from their directory on every start.
func (r *Registry) LoadFile(ctx context.Context, path string) (Plugin, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Plugin{}, errors.NewIOError(path, err)
	}

	return r.load(ctx, "file_"+filepath.Base(path), string(b), false, true)
}

// LoadDir loads every *.js file in dir. A script that fails to load is logged and skipped.
// A missing directory is not an error.
func (r *Registry) LoadDir(ctx context.Context, dir string) ([]Plugin, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.js"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	loaded := make([]*Plugin, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)

	for i, path := range paths {
		g.Go(func() error {
			p, err := r.LoadFile(gctx, path)
			if err != nil {
				logger.Warnf("Skipping plugin file %s: %v", path, err)
				return nil
			}
			loaded[i] = &p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Plugin, 0, len(paths))
	for _, p := range loaded {
		if p != nil {
			out = append(out, *p)
		}
	}

	logger.Infof("Loaded %d of %d plugin files from %s", len(out), len(paths), dir)

	return out, nil
}

// Restore loads every plugin saved in the store and reapplies its enabled flag.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	recs, err := r.store.Plugins()
	if err != nil {
		return 0, fmt.Errorf("failed to read stored plugins: %w", err)
	}

	n := 0
	for _, rec := range recs {
		if _, err := r.load(ctx, rec.ID, rec.Script, true, rec.Enabled); err != nil {
			logger.Errorf("Failed to restore plugin %s: %v", rec.ID, err)
			continue
		}
		n++
	}

	logger.Infof("Restored %d of %d stored plugins", n, len(recs))

	return n, nil
}

func (r *Registry) load(ctx context.Context, id, script string, persisted, enabled bool) (Plugin, error) {
	rt, err := sandbox.Load(ctx, id, script, sandbox.Options{Timeout: r.timeout, Requester: r.req})
	if err != nil {
		return Plugin{}, err
	}

	e := &entry{rt: rt, enabled: enabled, persisted: persisted, loadedAt: time.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.plugins[id]; ok {
		old.rt.Close()
	} else {
		r.order = append(r.order, id)
	}
	r.plugins[id] = e

	return e.view(id), nil
}

// Unload removes a plugin. Calls already running inside it are allowed to finish.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	e, ok := r.plugins[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewUnknownPlugin(id)
	}

	delete(r.plugins, id)
	r.order = removeID(r.order, id)
	r.mu.Unlock()

	e.rt.Close()

	if e.persisted && r.store != nil {
		if err := r.store.DeletePlugin(id); err != nil && !errors.Is(err, repository.ErrPluginNotFound) {
			return fmt.Errorf("failed to delete stored plugin %s: %w", id, err)
		}
	}

	logger.Infof("Unloaded plugin %s", id)

	return nil
}

// Close releases every runtime. Stored scripts are kept for the next Restore.
func (r *Registry) Close() {
	r.mu.Lock()
	plugins := r.plugins
	r.plugins = make(map[string]*entry)
	r.order = nil
	r.mu.Unlock()

	for _, e := range plugins {
		e.rt.Close()
	}
}

// Toggle flips availability without unloading.
func (r *Registry) Toggle(id string, enabled bool) error {
	r.mu.Lock()
	e, ok := r.plugins[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewUnknownPlugin(id)
	}

	e.enabled = enabled
	persisted := e.persisted
	r.mu.Unlock()

	if persisted && r.store != nil {
		if err := r.store.SetPluginEnabled(id, enabled); err != nil {
			return fmt.Errorf("failed to persist plugin state %s: %w", id, err)
		}
	}

	logger.Infof("Plugin %s enabled=%t", id, enabled)

	return nil
}

// Get returns the listing view of one plugin.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.plugins[id]
	if !ok {
		return Plugin{}, false
	}

	return e.view(id), true
}

// List returns all plugins in load order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id].view(id))
	}

	return out
}

// Invoke routes action to the plugin for source and calls it. source is either a
// plugin id or a platform tag a plugin declared.
func (r *Registry) Invoke(ctx context.Context, source, action string, params map[string]any) (any, error) {
	e, tag, err := r.route(source)
	if err != nil {
		return nil, err
	}

	params = maps.Clone(params)
	if params == nil {
		params = make(map[string]any)
	}
	if s, _ := params["source"].(string); s == "" {
		params["source"] = tag
	}

	return e.rt.Invoke(ctx, action, params)
}

// route finds the plugin for source: an exact id first, then the first plugin in load
// order that declared source as a platform tag. It also returns the tag to forward.
func (r *Registry) route(source string) (*entry, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.plugins[source]; ok {
		if !e.enabled {
			return nil, "", errors.NewPluginDisabled(source)
		}

		tag := source
		if srcs := e.rt.Metadata().Sources; len(srcs) > 0 {
			tag = srcs[0]
		}
		return e, tag, nil
	}

	disabled := false
	for _, id := range r.order {
		e := r.plugins[id]
		if !e.rt.Serves(source) {
			continue
		}
		if e.enabled {
			return e, source, nil
		}
		disabled = true
	}

	if disabled {
		return nil, "", errors.NewPluginDisabled(source)
	}

	return nil, "", errors.NewUnknownPlugin(source)
}

// targets lists the (plugin, tag) pairs an aggregated call fans out to.
func (r *Registry) targets(action string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []target
	for _, id := range r.order {
		e := r.plugins[id]
		if !e.enabled || !e.rt.Handles(action) {
			continue
		}

		srcs := e.rt.Metadata().Sources
		if len(srcs) == 0 {
			out = append(out, target{id: id, tag: id})
			continue
		}
		for _, s := range srcs {
			out = append(out, target{id: id, tag: s})
		}
	}

	return out
}

type target struct {
	id  string
	tag string
}

func (e *entry) view(id string) Plugin {
	return Plugin{
		ID:        id,
		Metadata:  e.rt.Metadata(),
		Enabled:   e.enabled,
		Persisted: e.persisted,
		LoadedAt:  e.loadedAt,
	}
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}
