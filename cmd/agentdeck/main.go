package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"agentdeck/internal/config"
	"agentdeck/internal/opencode"
	"agentdeck/internal/relay"
	"agentdeck/internal/session"
	"agentdeck/internal/workspace"
)

func main() {
	configPath := "config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return
	}

	config.SetLogLevel(cfg.LogLevel)
	slog.Info("log level", "level", cfg.LogLevel)

	store, err := session.NewFileStore(filepath.Join(cfg.DataDir, ".sessions"))
	if err != nil {
		slog.Error("failed to create session store", "error", err)
		return
	}
	sessions := session.NewManager(store)

	workspaces, err := workspace.NewManager(filepath.Join(cfg.DataDir, ".worktrees"))
	if err != nil {
		slog.Error("failed to create workspace manager", "error", err)
		return
	}

	agent := opencode.NewClient(cfg.OpencodePort)
	listeners := opencode.NewListeners(agent)
	bot := relay.New(cfg, sessions, workspaces, agent, listeners)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(2)
	go opencode.RunServer(ctx, &wg, cfg.OpencodePort)
	go bot.Run(ctx, &wg)

	sig := <-sigs
	slog.Info("received signal", "signal", sig)
	cancel()

	wg.Wait()
	sessions.CloseAll()
	slog.Info("exited")
}
