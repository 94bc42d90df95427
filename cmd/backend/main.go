package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	calendarimpl "github.com/foxseedlab/mentorpack/external/calendar"
	configloader "github.com/foxseedlab/mentorpack/external/config"
	discordimpl "github.com/foxseedlab/mentorpack/external/discord"
	"github.com/foxseedlab/mentorpack/external/httpapi"
	paymentimpl "github.com/foxseedlab/mentorpack/external/payment"
	repositoryimpl "github.com/foxseedlab/mentorpack/external/repository"
	webhookimpl "github.com/foxseedlab/mentorpack/external/webhook"
	"github.com/foxseedlab/mentorpack/internal/booking"
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/foxseedlab/mentorpack/internal/entitlement"
	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/sweeper"
	"github.com/foxseedlab/mentorpack/internal/workflow"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"
)

const injectorShutdownTimeout = 15 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	if err := run(cfg, injector); err != nil {
		slog.Error("backend stopped with error", "error", err)
		shutdownInjector(injector)
		os.Exit(1)
	}
	shutdownInjector(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	calendarimpl.RegisterDI(injector)
	paymentimpl.RegisterDI(injector)
	discordimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	registerNotifySink(injector, cfg)
	workflow.RegisterDI(injector)
	booking.RegisterDI(injector)
	entitlement.RegisterDI(injector)
	sweeper.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}

// registerNotifySink fans facts out to the log and to every configured
// delivery channel.
func registerNotifySink(injector do.Injector, cfg *config.Config) {
	do.Provide(injector, func(i do.Injector) (notify.Sink, error) {
		sinks := notify.MultiSink{notify.LogSink{}}
		if cfg.DiscordToken != "" {
			sinks = append(sinks, do.MustInvoke[*discordimpl.Notifier](i))
		}
		if cfg.NotifyWebhookURL != "" {
			sinks = append(sinks, do.MustInvoke[*webhookimpl.HTTPSender](i))
		}
		slog.Info("notify sinks configured", "count", len(sinks))
		return sinks, nil
	})
}

func run(cfg *config.Config, injector do.Injector) error {
	server, err := do.Invoke[*httpapi.Server](injector)
	if err != nil {
		return err
	}
	scheduler, err := do.Invoke[*sweeper.Scheduler](injector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		slog.Info("startup: sweeper scheduler running", "interval", cfg.SweepInterval)
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		return server.Stop(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func shutdownInjector(injector do.Injector) {
	ctx, cancel := context.WithTimeout(context.Background(), injectorShutdownTimeout)
	defer cancel()
	if report := injector.ShutdownWithContext(ctx); report != nil && !report.Succeed {
		slog.Error("dependency shutdown failed", "error", report.Error())
	}
}
