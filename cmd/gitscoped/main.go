// Command gitscoped serves a repository's read API over HTTP and pushes
// live ref updates to WebSocket clients as the repository changes.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkarpovich/gitscope/internal/gitcore"
	"github.com/pkarpovich/gitscope/internal/server"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	repoPath := flag.String("repo", getEnv("GITSCOPE_REPO", "."), "Path to the git repository")
	host := flag.String("host", getEnv("GITSCOPE_HOST", "127.0.0.1"), "Host to bind to")
	port := flag.String("port", getEnv("GITSCOPE_PORT", "8080"), "Port to listen on")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gitscoped %s (%s)\n", version, commit)
		return
	}

	logger := newLogger(*logLevel)

	repo, err := gitcore.Open(*repoPath)
	if err != nil {
		logger.Error("Failed to open repository", "path", *repoPath, "err", err)
		os.Exit(1)
	}
	logger.Info("Opened repository", "name", repo.Name(), "gitDir", repo.GitDir())

	srv := server.New(repo, *host+":"+*port, logger)

	// Serve until the listener fails or a signal asks us to stop.
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error("Shutdown failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
