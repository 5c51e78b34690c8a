package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/NamanBalaji/tunedl/internal/cli"
	"github.com/NamanBalaji/tunedl/internal/config"
	"github.com/NamanBalaji/tunedl/internal/engine"
	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/events"
	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/status"
)

type command struct {
	run func(ctx context.Context, a *app, args []string) error
	// standalone commands need only the config, not the database or plugins.
	standalone func(cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"serve":    {run: cmdServe},
	"search":   {run: cmdSearch},
	"download": {run: cmdDownload},
	"lyrics":   {run: cmdLyrics},
	"charts":   {run: cmdCharts},
	"songlist": {run: cmdSonglist},
	"plugins":  {run: cmdPlugins},
	"plugin":   {run: cmdPlugin},
	"tasks":    {run: cmdTasks},
	"pause":    {run: taskCommand("Paused", (*engine.Scheduler).Pause)},
	"resume":   {run: taskCommand("Resumed", (*engine.Scheduler).Resume)},
	"delete":   {run: taskCommand("Deleted", (*engine.Scheduler).Delete)},
	"stats":    {run: cmdStats},
	"config":   {standalone: cmdConfig},
}

func cmdServe(ctx context.Context, a *app, _ []string) error {
	listener := make(chan events.Event, eventBuffer)
	a.events.RegisterListener("serve", listener)
	defer a.events.UnregisterListener("serve")

	if err := a.start(ctx); err != nil {
		return err
	}

	// SIGHUP drops cached plugin responses without restarting.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	fmt.Println(cli.Success(fmt.Sprintf("Scheduler running with %d plugin(s), up to %d concurrent downloads into %s. Press Ctrl+C to stop.",
		len(a.registry.List()), a.cfg.MaxConcurrentDownloads, a.cfg.Download.Dir)))

	for {
		select {
		case ev, ok := <-listener:
			if !ok {
				return nil
			}
			fmt.Println(cli.EventLine(ev))
		case <-hup:
			a.proxy.ClearCache()
			fmt.Println(cli.Success("Response cache cleared"))
		case <-ctx.Done():
			fmt.Println("Shutting down...")
			return nil
		}
	}
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	source := fs.String("source", "", "Plugin id or platform tag; empty searches every enabled plugin")
	page := fs.Int("page", 1, "Result page")
	limit := fs.Int("limit", 30, "Results per page")

	if err := fs.Parse(args); err != nil {
		return err
	}

	keyword := strings.Join(fs.Args(), " ")
	if keyword == "" {
		return errors.New("search: missing keyword")
	}

	songs, err := search(ctx, a, *source, keyword, *page, *limit)
	if err != nil {
		return err
	}

	fmt.Println(cli.SongList(songs))

	return nil
}

func search(ctx context.Context, a *app, source, keyword string, page, limit int) ([]music.Song, error) {
	if source == "" {
		return a.registry.SearchAll(ctx, keyword, page, limit)
	}

	return a.registry.Search(ctx, source, keyword, page, limit)
}

// pickSong searches and returns the n-th (1-based) result.
func pickSong(ctx context.Context, a *app, source, keyword string, n int) (music.Song, error) {
	if keyword == "" {
		return music.Song{}, errors.New("missing keyword")
	}

	songs, err := search(ctx, a, source, keyword, 1, max(n, 30))
	if err != nil {
		return music.Song{}, err
	}

	if n < 1 || n > len(songs) {
		return music.Song{}, fmt.Errorf("no result #%d for %q (%d found)", n, keyword, len(songs))
	}

	return songs[n-1], nil
}

func cmdDownload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	source := fs.String("source", "", "Plugin id or platform tag; empty searches every enabled plugin")
	quality := fs.String("quality", music.DefaultQuality, "Requested quality (128k, 320k, flac, ...)")
	pick := fs.Int("pick", 1, "Which search result to download")
	noWait := fs.Bool("no-wait", false, "Only enqueue; the next serve picks the task up")

	if err := fs.Parse(args); err != nil {
		return err
	}

	song, err := pickSong(ctx, a, *source, strings.Join(fs.Args(), " "), *pick)
	if err != nil {
		return err
	}

	src := *source
	if src == "" {
		src = song.Source
	}

	id, st, err := a.sched.Enqueue(song, *quality, src)
	if err != nil {
		return err
	}

	switch st {
	case engine.EnqueueExists:
		fmt.Println(cli.Success(fmt.Sprintf("%s is already downloaded", song)))
		return nil
	case engine.EnqueueQueued:
		fmt.Printf("%s is already queued as %s\n", song, id)
	default:
		fmt.Printf("Queued %s [%s] as %s\n", song, *quality, id)
	}

	if *noWait {
		return nil
	}

	return waitFor(ctx, a, id)
}

// waitFor runs the scheduler until task id completes or fails, printing its events.
func waitFor(ctx context.Context, a *app, id uuid.UUID) error {
	listener := make(chan events.Event, eventBuffer)
	a.events.RegisterListener("download", listener)
	defer a.events.UnregisterListener("download")

	started := time.Now()
	if err := a.start(ctx); err != nil {
		return err
	}

	// Progress events may be dropped under load, so the store is polled as well.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-listener:
			if !ok {
				return nil
			}
			if taskOf(ev) == id {
				fmt.Println(cli.EventLine(ev))
			}
		case <-ticker.C:
		case <-ctx.Done():
			fmt.Println("Interrupted, the download resumes on the next run")
			return nil
		}

		t, err := a.sched.Task(id)
		if err != nil {
			return err
		}

		switch t.Status {
		case status.Completed:
			fmt.Println(cli.Success(fmt.Sprintf("%s (%s) in %s", t.Filepath, cli.FormatSize(t.FileSize), cli.FormatDuration(time.Since(started)))))
			return nil
		case status.Failed:
			return errors.New(t.ErrorMessage)
		}
	}
}

func taskOf(ev events.Event) uuid.UUID {
	switch p := ev.Payload.(type) {
	case events.Progress:
		return p.TaskID
	case events.Completed:
		return p.TaskID
	case events.Failed:
		return p.TaskID
	default:
		return uuid.Nil
	}
}

func cmdLyrics(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("lyrics", flag.ContinueOnError)
	source := fs.String("source", "", "Plugin id or platform tag")
	pick := fs.Int("pick", 1, "Which search result to use")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *source == "" {
		return errors.New("lyrics: -source is required")
	}

	song, err := pickSong(ctx, a, *source, strings.Join(fs.Args(), " "), *pick)
	if err != nil {
		return err
	}

	l, err := a.registry.Lyrics(ctx, *source, song)
	if err != nil {
		return err
	}

	fmt.Println(cli.HeaderStyle.Render(song.String()))
	fmt.Println(cli.Lyrics(l))

	return nil
}

func cmdCharts(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: charts <source>")
	}

	charts, err := a.registry.Charts(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Println(cli.ChartList(charts))

	return nil
}

func cmdSonglist(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("songlist", flag.ContinueOnError)
	page := fs.Int("page", 1, "Result page")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: songlist [-page n] <source> [tag]")
	}

	lists, err := a.registry.Songlist(ctx, fs.Arg(0), fs.Arg(1), *page)
	if err != nil {
		return err
	}

	fmt.Println(cli.PlaylistList(lists))

	return nil
}

func cmdPlugins(_ context.Context, a *app, _ []string) error {
	fmt.Println(cli.PluginList(a.registry.List()))
	return nil
}

func cmdPlugin(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: plugin add|rm|enable|disable ...")
	}

	sub, rest := args[0], args[1:]

	if sub == "add" {
		fs := flag.NewFlagSet("plugin add", flag.ContinueOnError)
		id := fs.String("id", "", "Plugin id (default derived from the script)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: plugin add [-id id] <file.js>")
		}

		path := fs.Arg(0)
		script, err := os.ReadFile(path)
		if err != nil {
			return errors.NewIOError(path, err)
		}

		p, err := a.registry.Load(ctx, *id, string(script))
		if err != nil {
			return err
		}

		fmt.Println(cli.Success(fmt.Sprintf("Loaded %s v%s as %s", p.Metadata.Name, p.Metadata.Version, p.ID)))
		return nil
	}

	if len(rest) != 1 {
		return fmt.Errorf("usage: plugin %s <id>", sub)
	}
	id := rest[0]

	var err error
	switch sub {
	case "rm":
		err = a.registry.Unload(id)
	case "enable":
		err = a.registry.Toggle(id, true)
	case "disable":
		err = a.registry.Toggle(id, false)
	default:
		return fmt.Errorf("unknown plugin subcommand %q", sub)
	}
	if err != nil {
		return err
	}

	fmt.Println(cli.Success(fmt.Sprintf("plugin %s: %s", sub, id)))

	return nil
}

func cmdTasks(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	filter := fs.String("status", "", "Comma separated statuses to show")
	limit := fs.Int("limit", 0, "Maximum number of tasks, 0 for all")

	if err := fs.Parse(args); err != nil {
		return err
	}

	statuses, err := parseStatuses(*filter)
	if err != nil {
		return err
	}

	tasks, err := a.sched.Tasks(statuses, *limit)
	if err != nil {
		return err
	}

	fmt.Println(cli.TaskList(tasks, cli.DefaultWidth))

	return nil
}

func parseStatuses(s string) ([]status.Status, error) {
	if s == "" {
		return nil, nil
	}

	var out []status.Status
	for _, part := range strings.Split(s, ",") {
		st := status.Status(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, st)
	}

	return out, nil
}

func taskCommand(done string, op func(*engine.Scheduler, uuid.UUID) error) func(context.Context, *app, []string) error {
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errors.New("missing task id")
		}

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid task id %q: %w", args[0], err)
		}

		if err := op(a.sched, id); err != nil {
			return err
		}

		fmt.Println(cli.Success(fmt.Sprintf("%s %s", done, id)))

		return nil
	}
}

func cmdStats(_ context.Context, a *app, _ []string) error {
	st, err := a.sched.Stats()
	if err != nil {
		return err
	}

	fmt.Println(cli.Stats(st))

	return nil
}

func cmdConfig(cfg *config.Config, _ []string) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	fmt.Println(cli.FaintStyle.Render("# " + config.Path()))
	fmt.Print(string(out))

	return nil
}
