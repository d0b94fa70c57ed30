// Package main provides a voice-driven mock interview trainer that connects
// to a remote interview service, records spoken answers, and coaches the
// user's delivery in real time.
//
// Usage:
//
//	interview-trainer [-config path/to/config.json]
//
// If -config is not specified, the trainer looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/vocalhq/interview-trainer/internal/capture"
	"github.com/vocalhq/interview-trainer/internal/config"
	"github.com/vocalhq/interview-trainer/internal/util"
)

// Build information, set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	listDevices := flag.Bool("list-devices", false, "List microphone sources and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *listDevices {
		devices, err := capture.ListDevices()
		if err != nil {
			slog.Error("failed to list devices", "error", err)
			os.Exit(1)
		}
		for _, d := range devices {
			printfUser("%s\t%s", d.ID, d.Name)
		}
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	trainer, err := NewTrainer(cfg)
	if err != nil {
		slog.Error("failed to initialize trainer", "error", err)
		os.Exit(1)
	}

	version := NewVersionChecker()
	trainer.version = version

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, util.ShutdownSignals()...)
		<-sigChan
		slog.Info("shutting down")
		cancel()
	}()

	printlnUser(`interview trainer ready (type "help" for commands)`)
	if err := trainer.Run(ctx); err != nil {
		slog.Error("trainer error", "error", err)
	}

	version.Stop()
	slog.Info("shutdown complete")
}
