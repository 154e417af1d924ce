package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pennyworth-bot/pennyworth/pkg/api"
	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/channels"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/engine"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
	"github.com/pennyworth-bot/pennyworth/pkg/providers"
	"github.com/pennyworth-bot/pennyworth/pkg/workflow"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "pennyworth:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(expandHome(cfg.Logging.FilePath), cfg.Logging.MaxSizeMB); err != nil {
			logger.WarnCF("main", "File logging unavailable", map[string]interface{}{
				"path": cfg.Logging.FilePath, "error": err.Error(),
			})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messageBus := bus.NewMessageBus()
	defer messageBus.Close()

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	logger.InfoCF("main", "Completion provider ready", map[string]interface{}{
		"provider": provider.Name(), "model": cfg.Assistant.Model,
	})

	var wf workflow.Service
	if cfg.Trello.Enabled {
		trello := workflow.NewTrelloClient(cfg.Trello)
		wf = trello

		reminder, err := workflow.NewReminder(trello, messageBus, cfg.Trello, cfg.Location())
		if err != nil {
			return fmt.Errorf("reminder: %w", err)
		}
		go reminder.Run(ctx)
	}

	eng := engine.NewEngine(cfg, messageBus, provider, wf)
	go eng.Run(ctx)

	manager, err := channels.NewManager(cfg, messageBus)
	if err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	healthServer := api.NewServer(cfg)
	if err := healthServer.Start(ctx); err != nil {
		return fmt.Errorf("health server: %w", err)
	}

	logger.InfoCF("main", "Pennyworth is at your service", map[string]interface{}{
		"assistant": cfg.Assistant.Name,
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down...")

	shutdownCtx := context.Background()
	manager.StopAll(shutdownCtx)
	if err := healthServer.Stop(); err != nil {
		logger.WarnCF("main", "Health server shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return home + "/.pennyworth/config.json"
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
