package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"gnss-obs/internal/config"
	"gnss-obs/internal/web"
)

func main() {
	configPath := pflag.StringP("config", "c", "./gnss-obs.yaml", "Path to YAML config.")
	logLevel := pflag.StringP("log-level", "l", "", "Override log.level (debug, info, warn, error).")
	listen := pflag.String("listen", "", "Override web.listen, for example :8080.")
	replayPath := pflag.String("replay", "", "Replay this SBP log instead of the configured source.")
	summarize := pflag.String("summarize", "", "Print a summary of an SBP log and exit.")
	help := pflag.BoolP("help", "h", false, "Show this help.")
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	if *summarize != "" {
		if err := printLogSummary(os.Stdout, *summarize); err != nil {
			fmt.Fprintf(os.Stderr, "summarize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}
	if *replayPath != "" {
		cfg.Source.Kind = config.SourceReplay
		cfg.Replay.Path = *replayPath
		cfg.Record.Enable = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}

	logs := web.NewLogBuffer(2000)
	logger, err := newLogger(cfg.Log, io.MultiWriter(os.Stderr, logs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logger, logs)
	if err != nil {
		logger.Fatal("startup failed", "err", err)
	}

	logger.Info("gnss-obs starting", "source", cfg.Source.Kind, "sessions", len(cfg.Sessions), "web", cfg.Web.Listen)
	if err := run(ctx, cancel, rt); err != nil {
		logger.Error("start failed", "err", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("gnss-obs stopped")
}

// run starts rt and blocks until ctx ends. rt is closed on every path, so
// the recorder is flushed even when start fails.
func run(ctx context.Context, cancel context.CancelFunc, rt *runtime) error {
	defer rt.close()
	if err := rt.start(ctx, cancel); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
