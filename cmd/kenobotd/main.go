// Command kenobotd is the KenoBot daemon: it wires the signal bus, its
// webhook/REST front doors, and the watchdog/scheduler/sleep-cycle
// background loops into one long-running process, then waits for an
// interrupt to shut everything down in reverse order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	_ "go.uber.org/automaxprocs"

	"github.com/kenobot/kenobot/internal/agentbridge"
	"github.com/kenobot/kenobot/internal/bus"
	"github.com/kenobot/kenobot/internal/buildinfo"
	"github.com/kenobot/kenobot/internal/config"
	"github.com/kenobot/kenobot/internal/conversation"
	"github.com/kenobot/kenobot/internal/correlator"
	"github.com/kenobot/kenobot/internal/costtracker"
	"github.com/kenobot/kenobot/internal/llm"
	"github.com/kenobot/kenobot/internal/notifier"
	"github.com/kenobot/kenobot/internal/provider"
	"github.com/kenobot/kenobot/internal/ratelimit"
	"github.com/kenobot/kenobot/internal/restapi"
	"github.com/kenobot/kenobot/internal/scheduler"
	"github.com/kenobot/kenobot/internal/sleepcycle"
	"github.com/kenobot/kenobot/internal/watchdog"
	"github.com/kenobot/kenobot/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (searches the default locations if omitted)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	if err := run(logger, *configPath); err != nil {
		logger.Error("kenobotd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	logger.Info("starting kenobotd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", cfgPath, err)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "dataDir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	pidPath := filepath.Join(cfg.DataDir, "kenobotd.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		logger.Warn("failed to write pid file", "path", pidPath, "err", err)
	}
	defer os.Remove(pidPath)

	audit, err := bus.NewAuditTrail(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open bus audit trail: %w", err)
	}
	defer audit.Close()

	reg := prometheus.NewRegistry()
	b := bus.New(logger, reg, bus.WithAuditTrail(audit))

	convStore, err := conversation.NewStore(filepath.Join(cfg.DataDir, "conversations.db"))
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer convStore.Close()

	costTracker := costtracker.New(cfg.Owner.BudgetUSD, cfg.Owner.BudgetPeriod)

	prov, breaker := buildProvider(cfg, logger)

	agentbridge.New(b, prov, costTracker, cfg.Owner.Model, cfg.Owner.RequestTimeout, logger)
	notifier.New(b, cfg.Owner.ChatID, cfg.Owner.Channel, logger)

	webhookCorr := correlator.New(b, "webhook")
	apiCorr := correlator.New(b, "api")
	defer webhookCorr.Shutdown()
	defer apiCorr.Shutdown()

	webhookHandler := webhook.New(b, webhookCorr, cfg.Webhook.Secret, cfg.Webhook.Timeout, rate.Limit(5), 10, logger)

	schedStore, err := scheduler.NewStore(cfg.Scheduler.JournalDir)
	if err != nil {
		return fmt.Errorf("failed to open scheduler journal: %w", err)
	}
	defer schedStore.Close()
	sched := scheduler.New(b, schedStore, logger)

	sup, err := sleepcycle.New(cfg.DataDir, cfg.SleepCycle.Period, cfg.SleepCycle.TargetHour, logger, sleepcycle.DefaultPhases(convStore, audit))
	if err != nil {
		return fmt.Errorf("failed to construct sleep cycle supervisor: %w", err)
	}
	ticker := sleepcycle.NewTicker(sup, time.Hour, logger)

	wd := watchdog.New(b, logger, cfg.Watchdog.Interval, 5*time.Second)
	wd.RegisterCheck("provider", watchdog.ProviderCircuitCheck(breaker), true)
	wd.RegisterCheck("memory", watchdog.ProcessMemoryCheck(cfg.Watchdog.RSSWarnMB, cfg.Watchdog.RSSFailMB), false)
	wd.RegisterCheck("sleep_cycle", watchdog.SleepCycleStalenessCheck(sup, cfg.Watchdog.StaleAfter), false)

	limiter := ratelimit.New(cfg.API.RateLimit, cfg.API.RateWindow)

	router := restapi.NewRouter(restapi.Dependencies{
		Bus:            b,
		Correlator:     apiCorr,
		Conversation:   convStore,
		Scheduler:      sched,
		SleepCycle:     sup,
		Watchdog:       wd,
		CostTracker:    costTracker,
		Registerer:     reg,
		BearerToken:    cfg.API.BearerToken,
		CORSOrigin:     cfg.API.CORSOrigin,
		RateLimiter:    limiter,
		RequestTimeout: cfg.API.RequestTimeout,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)
	mux.Handle("/", router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wd.Start(ctx)
	defer wd.Stop()
	sched.Start()
	defer sched.Stop()
	ticker.Start(ctx)
	defer ticker.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	return nil
}

// buildProvider constructs the circuit-breaker-wrapped Provider the agent
// bridge calls through. Without an Anthropic API key configured, it falls
// back to a FakeProvider that replies with a fixed notice rather than
// refusing to start — a misconfigured deployment still serves the rest of
// the daemon's surface (scheduler, REST API, health checks).
func buildProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, *provider.CircuitBreaker) {
	var inner provider.Provider
	if cfg.Owner.AnthropicKey != "" {
		client := llm.NewAnthropicClient(cfg.Owner.AnthropicKey, logger)
		inner = provider.NewDelegate(client, cfg.Owner.Model)
	} else {
		logger.Warn("no owner.anthropic_api_key configured; replies will use a fixed notice")
		inner = &provider.FakeProvider{Reply: provider.ChatReply{Text: "no language model is configured yet"}}
	}
	breaker := provider.NewCircuitBreaker(inner, cfg.Provider.FailureThreshold, cfg.Provider.Cooldown)
	return breaker, breaker
}
