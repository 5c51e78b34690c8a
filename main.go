package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamanBalaji/tunedl/internal/cli"
	"github.com/NamanBalaji/tunedl/internal/config"
	"github.com/NamanBalaji/tunedl/internal/logger"
)

const usageText = `Usage: tunedl [flags] <command> [args]

Commands:
  serve                              run the download scheduler until interrupted
  search   [-source tag] <keyword>   search one source, or every enabled plugin
  download [-source tag] [-quality q] [-pick n] [-no-wait] <keyword>
                                     enqueue a search result and wait for it
  lyrics   -source tag [-pick n] <keyword>
  charts   <source>
  songlist [-page n] <source> [tag]  list a source's playlists, optionally by tag
  plugins                            list loaded plugins
  plugin   add [-id id] <file.js> | rm <id> | enable <id> | disable <id>
  tasks    [-status s1,s2] [-limit n]
  pause    <task id>
  resume   <task id>
  delete   <task id>
  stats
  config                             print the effective configuration

Flags:
`

func main() {
	configPath := flag.String("config", "", "Path to the config file (default "+config.Path()+")")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *debug, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, cli.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, debug bool, command string, args []string) error {
	var (
		cfg *config.Config
		err error
	)

	if configPath == "" {
		cfg, err = config.GetConfig()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if debug {
		cfg.Log.Debug = true
	}

	err = logger.InitLogging(cfg.Log.Debug, cfg.Log.File)
	if err != nil {
		log.Printf("Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	cmd, ok := commands[command]
	if !ok {
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.standalone != nil {
		return cmd.standalone(cfg, args)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, args)
}
