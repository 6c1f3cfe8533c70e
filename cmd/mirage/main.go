package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/akolanti/mirage/internal/cli"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/pkg/logger_i"
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, "error loading .env file:", err)
	}

	// stdout belongs to the conversation, so logs go to a file.
	logFile := openLogFile()
	if logFile != nil {
		logger_i.InitWith(logger_i.Options{Writer: logFile, JSON: true, Level: slog.LevelInfo})
	} else {
		logger_i.InitWith(logger_i.Options{Writer: io.Discard})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.Deps{}, os.Args[1:])
	stop()
	if logFile != nil {
		_ = logFile.Close()
	}
	os.Exit(code)
}

func openLogFile() *os.File {
	s, err := config.LoadSettings(config.DefaultSettingsPath())
	if err != nil {
		s = config.DefaultSettings()
	}
	dir := s.DataPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, config.LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	return f
}
