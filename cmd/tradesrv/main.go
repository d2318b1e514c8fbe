// cmd/tradesrv — HTTP signal server.
//
// Receives OHLCV bars from the trading client over POST /tick, maintains
// bounded per-symbol buffers with CSV archival, serves model- and
// rule-based trading signals, and retrains the per-symbol model in a
// background maintenance loop.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradesrv/config"
	"tradesrv/internal/api"
	"tradesrv/internal/buffer"
	"tradesrv/internal/history"
	"tradesrv/internal/markethours"
	"tradesrv/internal/metrics"
	"tradesrv/internal/notify"
	"tradesrv/internal/store/redis"
	"tradesrv/internal/strategy"
	"tradesrv/internal/trading"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[tradesrv] starting signal server...")

	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		log.Fatalf("[tradesrv] invalid MARKET_TZ %q: %v", cfg.MarketTimezone, err)
	}
	cal := markethours.Default(loc)
	cal.CloseDay = config.ParseWeekday(cfg.CloseDay, time.Friday)
	cal.OpenDay = config.ParseWeekday(cfg.OpenDay, time.Monday)
	cal.CloseHour, cal.CloseMinute = config.ParseClock(cfg.CloseTime, 21, 0)
	cal.OpenHour, cal.OpenMinute = config.ParseClock(cfg.OpenTime, 17, 0)

	bufCfg := buffer.DefaultConfig(cfg.DataDir)
	bufCfg.LiveCapacity = cfg.LiveCapacity
	bufCfg.ClosedDivisor = cfg.ClosedDivisor
	bufCfg.Slack = cfg.Slack
	bufCfg.DupStreakOpen = cfg.DupStreakOpen
	bufCfg.DupStreakClosed = cfg.DupStreakClosed
	bufCfg.BackupInterval = cfg.BackupInterval

	m := metrics.NewMetrics()

	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.SlackWebhook != "" {
		notifier = notify.Multi{notify.NewLogNotifier(), notify.NewSlackNotifier(cfg.SlackWebhook)}
		log.Println("[tradesrv] webhook notifications enabled")
	}

	var publisher trading.SignalPublisher
	if cfg.RedisAddr != "" {
		pub, err := redis.NewPublisher(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[tradesrv] redis disabled: %v", err)
		} else {
			publisher = pub
			defer pub.Close()
		}
	}

	var journal *history.Journal
	var tradeHistory strategy.TradeHistory
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.Fatalf("[tradesrv] create data dir: %v", err)
		}
		j, err := history.NewJournal(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[tradesrv] open trade journal: %v", err)
		}
		defer j.Close()
		journal = j
		tradeHistory = j
	}

	svcCfg := trading.DefaultConfig(cfg.ModelDir)
	svcCfg.Symbols = cfg.ParseSymbols()
	svcCfg.MaintenanceInterval = cfg.MaintenanceInterval
	svcCfg.ErrorCooldown = cfg.ErrorCooldown

	svc := trading.NewService(svcCfg, trading.Deps{
		BufferConfig: bufCfg,
		Calendar:     cal,
		Metrics:      m,
		Notifier:     notifier,
		Publisher:    publisher,
		History:      tradeHistory,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go trading.NewMaintenance(svc).Run(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(svc, m, journal).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[tradesrv] listening on %s (symbols: %v, market: %s)",
			cfg.ListenAddr, svcCfg.Symbols, cal.StatusString(time.Now()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[tradesrv] server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[tradesrv] shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[tradesrv] http shutdown: %v", err)
	}

	// Final snapshot so a restart recovers the freshest window.
	for sym, err := range svc.BackupAll() {
		if err != nil {
			log.Printf("[tradesrv] final backup %s: %v", sym, err)
		}
	}
	log.Println("[tradesrv] stopped")
}
