package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/user/termbridge/internal/api"
	"github.com/user/termbridge/internal/bridge"
	"github.com/user/termbridge/internal/config"
	"github.com/user/termbridge/internal/db"
	"github.com/user/termbridge/internal/hub"
	"github.com/user/termbridge/internal/pty"
	"github.com/user/termbridge/internal/server"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runs *db.RunRepo
	if cfg.DBPath != "" {
		database, err := db.Open(ctx, cfg.DBPath)
		if err != nil {
			slog.Error("failed to open run log database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		runs = db.NewRunRepo(database.SQL())
	}

	spec := pty.LaunchSpec{
		Program:  cfg.Program,
		WorkDir:  cfg.WorkDir,
		Relative: cfg.Relative,
		Shell:    cfg.Shell,
	}

	var hubOpts []hub.Option
	if cfg.Coalesce {
		hubOpts = append(hubOpts, hub.WithCoalescing(0))
	}
	h := hub.New(cfg.Token, nil, hubOpts...)
	b := bridge.New(spec, h, runs, slog.Default())
	h.SetOps(b)

	go h.Run(ctx)

	srv, err := server.New(cfg, h, api.NewRouter(b, runs, cfg.Token))
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\ntermbridge running at http://localhost:%d?token=%s\n\n", cfg.Port, cfg.Token)

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		slog.Warn("session shutdown", "error", err)
	}
}

// setupLogging picks a human-readable handler on a terminal and JSON lines
// otherwise (e.g. under a service manager).
func setupLogging() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
