package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"slackwire/internal/config"
	"slackwire/internal/dispatch"
	"slackwire/internal/event"
	"slackwire/internal/eventbus"
	"slackwire/internal/metrics"
	"slackwire/internal/slack"
	"slackwire/internal/slack/rtm"
	"slackwire/internal/webhook"
	logx "slackwire/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer log.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	promReg := prometheus.NewRegistry()
	met := metrics.New(promReg)
	bus := eventbus.New()

	bot := slack.New(botConfig(cfg), log,
		slack.WithBus(bus),
		slack.WithMetrics(met),
	)

	// Demo listeners: log every record, greet direct messages.
	bot.On(func(rec event.Record) {
		log.Debug("record digested", logx.Any("record", map[string]any(rec)))
	}, dispatch.Wildcard)
	bot.On(func(rec event.Record) {
		if text := rec.String("text"); text == "ping" {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if _, err := bot.Write(ctx, "pong"); err != nil {
					log.Warn("reply failed", logx.Err(err))
				}
			}()
		}
	}, "message")

	// Surface lifecycle transitions.
	events, unsub := bus.Subscribe(16)
	defer unsub()
	go func() {
		for e := range events {
			log.Info("lifecycle", logx.String("kind", string(e.Kind)))
		}
	}()

	if err := bot.StartSession(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bot.Close(stopCtx)
	}()

	var srv *webhook.Server
	if cfg.Webhook.Enabled {
		srv = webhook.New(webhook.Config{
			Addr: cfg.WebhookAddr(),
			Path: cfg.WebhookPath(),
		}, bot, log, webhook.WithMetricsGatherer(promReg))
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	// Hot-reload is limited to what can change at runtime (log noise
	// aside, that is nothing yet); the watch still validates edits so
	// a broken file is caught before the next restart.
	go func() { _ = mgr.Watch(ctx) }()

	<-ctx.Done()

	if srv != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(stopCtx)
	}
	return nil
}

func botConfig(cfg *config.Config) slack.Config {
	ping, _ := config.ParseDurationField("slack.ping_interval", cfg.Slack.PingInterval)
	sendTO, _ := config.ParseDurationField("slack.send_timeout", cfg.Slack.SendTimeout)
	return slack.Config{
		Token:          cfg.Slack.Token,
		BaseURL:        cfg.Slack.BaseURL,
		Defaults:       cfg.Slack.Defaults,
		RTM:            rtm.Config{PingInterval: ping, SendTimeout: sendTO},
		MessagesPerSec: cfg.Slack.MessagesPerSec,
	}
}
