package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegion/docbot/pkg/bot"
	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/channels"
	"github.com/aegion/docbot/pkg/config"
	"github.com/aegion/docbot/pkg/control"
	"github.com/aegion/docbot/pkg/health"
	"github.com/aegion/docbot/pkg/heartbeat"
	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/profile"
	"github.com/aegion/docbot/pkg/providers"
	"github.com/aegion/docbot/pkg/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logger.ErrorCF("main", "Fatal error", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Configure(os.Stderr, cfg.Log.Format, logger.ParseLevel(cfg.Log.Level))

	llm, err := providers.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create completion provider: %w", err)
	}
	logger.InfoCF("main", "Completion provider ready", map[string]any{
		"provider": llm.Name(),
		"model":    cfg.LLM.Model,
		"timeout":  cfg.LLM.Timeout.String(),
	})

	mb := bus.NewMessageBus()
	sessions := session.NewStore(cfg.Bot.HistoryLimit)
	profiles := profile.NewStore()
	authority := control.NewAuthority()

	b := bot.New(mb, sessions, profiles, authority, llm, bot.Options{
		RecordSelf:    cfg.Bot.RecordSelf,
		DoctorChannel: cfg.Bot.DoctorChannel,
		AdminIDs:      cfg.Bot.AdminIDs,
	})

	manager := channels.NewManager(mb)
	var discord *channels.DiscordChannel
	if cfg.Discord.Enabled {
		discord, err = channels.NewDiscordChannel(cfg.Discord, mb)
		if err != nil {
			return err
		}
		manager.Register(discord)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Console.Enabled {
		console := channels.NewConsoleChannel(cfg.Console, mb)
		console.OnClose(stop)
		manager.Register(console)
	}

	if err := manager.StartAll(ctx); err != nil {
		manager.StopAll(ctx)
		return err
	}
	if discord != nil {
		b.SetBotID(discord.BotID())
	}

	var ops *health.Server
	if cfg.Health.Addr != "" {
		ops = health.NewServer(cfg.Health.Addr, health.NewRouter(b, manager))
		ops.Start()
	}
	if cfg.Heartbeat.Cron != "" {
		hb, err := heartbeat.NewService(cfg.Heartbeat.Cron, b)
		if err != nil {
			return err
		}
		go hb.Run(ctx)
	}

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		b.Run(ctx)
	}()

	logger.InfoCF("main", "Docbot running", map[string]any{
		"channels": manager.Names(),
	})
	<-ctx.Done()
	logger.InfoC("main", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if ops != nil {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.WarnCF("main", "Ops server shutdown failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
	manager.StopAll(shutdownCtx)

	select {
	case <-botDone:
		mb.Close()
	case <-shutdownCtx.Done():
		logger.WarnC("main", "Conversation loop did not stop in time")
	}
	return nil
}
