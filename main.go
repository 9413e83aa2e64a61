package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/featherwatch/featherwatch/cmd"
	"github.com/featherwatch/featherwatch/internal/conf"
	"github.com/featherwatch/featherwatch/internal/logging"
)

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := parseLogLevel(settings.Main.LogLevel)
	if settings.Main.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
