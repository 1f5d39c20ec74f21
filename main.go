package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"argus-terminal/config"
	"argus-terminal/internal/alerts"
	"argus-terminal/internal/api"
	"argus-terminal/internal/events"
	"argus-terminal/internal/logging"
	"argus-terminal/internal/market"
	"argus-terminal/internal/notify"
	"argus-terminal/internal/paper"
	"argus-terminal/internal/scheduler"
	"argus-terminal/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	logger.Info().Msg("starting argus terminal")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: Redis when enabled, in-memory otherwise.
	var st store.Store
	if cfg.Redis.Enabled {
		st = store.NewRedisStore(store.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
	} else {
		logger.Warn().Msg("redis disabled, state will not survive restarts")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	var source market.DataSource
	if cfg.Market.MockMode {
		logger.Warn().Msg("mock market data enabled")
		source = market.NewMockClient()
	} else {
		source = market.NewClient(cfg.Market.BaseURL)
	}

	bus := events.NewBus()

	notifier := notify.NewManager(logger)
	notifier.AddNotifier(notify.NewLogNotifier(logger))
	if cfg.Telegram.Enabled {
		notifier.AddNotifier(notify.NewTelegramNotifier(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			Enabled:  true,
		}))
	}

	engine := paper.NewEngine(source, st, bus, logger, cfg.Portfolio.InitialBalance)
	if err := engine.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("portfolio restore failed, starting fresh")
	}

	pilot := paper.NewAutoPilot(engine, source, st, bus, notifier, logger)
	if err := pilot.LoadConfig(ctx); err != nil {
		logger.Error().Err(err).Msg("autopilot config restore failed, using defaults")
	}
	if pilot.Config().Enabled {
		if err := pilot.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("autopilot auto-start failed")
		}
	}
	defer pilot.Stop(context.Background())

	alertSvc := alerts.NewService(source, st, bus, notifier, logger)
	if err := alertSvc.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("alerts restore failed")
	}
	alertTask := scheduler.New("alert-check", cfg.Alerts.CheckInterval, alertSvc.Check, logger)
	alertTask.Start(ctx)
	defer alertTask.Stop()

	// Live price stream for the watched symbols, pushed to API clients
	// through the event bus.
	if !cfg.Market.MockMode {
		symbols := watchedSymbols(ctx, st)
		stream := market.NewStreamManager(cfg.Market.WSURL, symbols, logger)
		if err := stream.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("price stream start failed")
		} else {
			defer stream.Stop()
			go forwardTickers(bus, stream.Subscribe())
		}
	}

	server := api.NewServer(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		ProductionMode: true,
	}, source, engine, pilot, alertSvc, st, bus, logger)

	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func watchedSymbols(ctx context.Context, st store.Store) []string {
	var watchlist []string
	err := st.GetJSON(ctx, store.KeyWatchlist, &watchlist)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return []string{"BTCUSDT", "ETHUSDT"}
	}
	if len(watchlist) == 0 {
		return []string{"BTCUSDT", "ETHUSDT"}
	}
	return watchlist
}

func forwardTickers(bus *events.Bus, tickers <-chan market.Ticker) {
	for t := range tickers {
		bus.Publish(events.Event{
			Type: events.EventPriceUpdate,
			Data: map[string]interface{}{
				"symbol": t.Symbol,
				"price":  t.Price,
			},
		})
	}
}
