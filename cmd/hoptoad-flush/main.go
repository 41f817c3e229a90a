// hoptoad-flush delivers crash notices buffered on disk by applications
// using the hoptoad notifier. It can list the pending notices, flush them
// once, or keep flushing on an interval while hot-reloading its config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/strongdm/hoptoad-notifier/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		once       bool
		list       bool
		interval   time.Duration
		logLevel   string
	)

	flagSet := pflag.NewFlagSet("hoptoad-flush", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "hoptoad.yaml", "path to config file")
	flagSet.BoolVar(&once, "once", false, "flush once and exit")
	flagSet.BoolVar(&list, "list", false, "list pending notices and exit")
	flagSet.DurationVar(&interval, "interval", 0, "override flush_interval from the config file")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("interval") {
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		cfg.FlushInterval = interval
	}

	if list {
		return listPending(os.Stdout, cfg.StorageRoot)
	}

	f := newFlusher(logger)
	if err := f.apply(cfg); err != nil {
		return err
	}
	defer f.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if once {
		return f.flushOnce(ctx)
	}

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			if flagSet.Changed("interval") {
				updated.FlushInterval = interval
			}
			if err := f.apply(updated); err != nil {
				logger.Error("config reload rejected", "err", err)
			}
		}); err != nil {
			logger.Error("config watcher stopped", "err", err)
		}
	}()

	logger.Info("hoptoad-flush starting",
		"storage_root", cfg.StorageRoot,
		"endpoint", cfg.Endpoint,
		"interval", cfg.FlushInterval,
	)
	f.loop(ctx)
	logger.Info("hoptoad-flush shutting down")
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `hoptoad-flush delivers buffered crash notices to the collector.

Usage:
  hoptoad-flush [flags]

The config file names the storage root, the collector endpoint and the
environment variable holding the API key. Without --once or --list the
storage root is flushed every flush_interval until interrupted, and
changes to the config file are applied without a restart.

Flags:
%s`, flagSet.FlagUsages())
}
