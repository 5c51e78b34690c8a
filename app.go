package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NamanBalaji/tunedl/internal/config"
	"github.com/NamanBalaji/tunedl/internal/engine"
	"github.com/NamanBalaji/tunedl/internal/events"
	"github.com/NamanBalaji/tunedl/internal/filesystem"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/plugin"
	"github.com/NamanBalaji/tunedl/internal/proxy"
	"github.com/NamanBalaji/tunedl/internal/repository"
	httpclient "github.com/NamanBalaji/tunedl/pkg/http"
)

const eventBuffer = 256

// app is every long-lived component, wired once per invocation.
type app struct {
	cfg      *config.Config
	repo     *repository.BboltRepository
	proxy    *proxy.Proxy
	registry *plugin.Registry
	events   *events.Broadcaster
	sched    *engine.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	fs := filesystem.NewOSFileSystem()

	for _, dir := range []string{filepath.Dir(cfg.Database), cfg.Download.Dir, cfg.Plugins.Dir} {
		if err := fs.EnsureDirectory(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	repo, err := repository.NewBboltRepository(cfg.Database)
	if err != nil {
		return nil, err
	}

	client := httpclient.NewClient()

	proxyCfg := proxy.Config{
		RequestDelay: cfg.Proxy.RequestDelay,
		CacheTTL:     cfg.Proxy.CacheTTL,
		DisableCache: cfg.Proxy.DisableCache,
		Timeout:      cfg.Proxy.Timeout,
		Endpoints:    cfg.Proxy.Endpoints,
	}
	px := proxy.New(client, proxy.NewState(proxyCfg), proxyCfg)

	registry := plugin.New(plugin.Options{
		Timeout:   cfg.Plugins.Timeout,
		Requester: px,
		Store:     repo,
	})

	restored, err := registry.Restore(ctx)
	if err != nil {
		logger.Errorf("Failed to restore plugins: %v", err)
	}

	loaded, err := registry.LoadDir(ctx, cfg.Plugins.Dir)
	if err != nil {
		logger.Errorf("Failed to load plugins from %s: %v", cfg.Plugins.Dir, err)
	}

	logger.Infof("Plugins ready: %d restored, %d loaded from %s", restored, len(loaded), cfg.Plugins.Dir)

	bc := events.NewBroadcaster(eventBuffer)
	sink := events.SinkFunc(func(kind events.Kind, payload any) {
		events.LogSink{}.Emit(kind, payload)
		bc.Emit(kind, payload)
	})

	sched := engine.New(engine.Config{
		DownloadDir:       cfg.Download.Dir,
		MaxConcurrent:     cfg.MaxConcurrentDownloads,
		RetryLimit:        cfg.Download.RetryLimit,
		RetryDelay:        cfg.Download.RetryDelay,
		InactivityTimeout: cfg.Download.InactivityTimeout,
		RateLimit:         cfg.Download.RateLimit,
	}, engine.Deps{
		Store:    repo,
		Resolver: registry,
		Client:   client,
		FS:       fs,
		Sink:     sink,
	})

	return &app{
		cfg:      cfg,
		repo:     repo,
		proxy:    px,
		registry: registry,
		events:   bc,
		sched:    sched,
	}, nil
}

// start runs the event broadcaster and the scheduler, which recovers unfinished tasks.
// The broadcaster outlives ctx so events emitted during shutdown still drain; Close stops it.
func (a *app) start(ctx context.Context) error {
	a.events.Start(context.WithoutCancel(ctx))
	return a.sched.Start(ctx)
}

func (a *app) Close() {
	if err := a.sched.Shutdown(); err != nil {
		logger.Errorf("Error during scheduler shutdown: %v", err)
	}

	a.events.Stop()

	a.registry.Close()

	if err := a.repo.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
}
