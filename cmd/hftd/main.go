package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/hftcore/config"
	"github.com/alejandrodnm/hftcore/internal/adapters/broker"
	"github.com/alejandrodnm/hftcore/internal/adapters/notify"
	"github.com/alejandrodnm/hftcore/internal/adapters/parser"
	"github.com/alejandrodnm/hftcore/internal/adapters/storage"
	"github.com/alejandrodnm/hftcore/internal/datamgr"
	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/engine"
	"github.com/alejandrodnm/hftcore/internal/plugin"
	"github.com/alejandrodnm/hftcore/internal/policy"
	"github.com/alejandrodnm/hftcore/internal/ports"
	"github.com/alejandrodnm/hftcore/internal/ticker"
	"github.com/alejandrodnm/hftcore/internal/trader"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "dump the recorded event history as a table on exit")
	paper := flag.Bool("paper", false, "use the in-process paper broker instead of the REST adapter")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("hftcore starting",
		"config", *configPath,
		"paper", *paper,
		"policy_rules", cfg.Policy.RulesPath,
	)

	policyMgr, err := policy.Load(cfg.Policy.RulesPath)
	if err != nil {
		slog.Error("failed to load action-policy rules", "err", err, "path", cfg.Policy.RulesPath)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table)

	var brokerAdapter ports.BrokerAdapter
	var sinkSetter interface{ SetSink(ports.BrokerSink) }
	if *paper {
		pb := broker.NewPaperBroker()
		brokerAdapter, sinkSetter = pb, pb
	} else {
		rb := broker.NewRESTBroker(broker.RESTConfig{
			BaseURL:    cfg.Broker.BaseURL,
			APIKey:     cfg.Broker.APIKey,
			APISecret:  cfg.Broker.APISecret,
			AccountID:  cfg.Trader.AccountID,
			Timeout:    cfg.BrokerTimeout(),
			RatePerSec: cfg.Broker.RatePerSec,
			Burst:      cfg.Broker.Burst,
		})
		brokerAdapter, sinkSetter = rb, rb
	}

	traderAdapter := trader.New(brokerAdapter, policyMgr, notifier, riskParams(cfg), cfg.Engine.IgnoreSelfMatch)
	sinkSetter.SetSink(traderAdapter)

	dataMgr := datamgr.New(storage.NullDataReader{})

	eng := engine.New(dataMgr, notifier, engine.Config{
		Session: ticker.Session{OpenTimeHMS: 90000, CloseTimeHMS: 151500},
		WorkDir: ".",
	})
	eng.RegisterChannel(cfg.Trader.AccountID)

	traderAdapter.OnOrder(func(localID uint32, stdCode string, isBuy bool, total, left, price float64, canceled bool) {
		state := domain.OrderSubmitted
		if canceled {
			state = domain.OrderCanceled
		} else if left == 0 {
			state = domain.OrderFilled
		} else if left < total {
			state = domain.OrderPartial
		}
		side := domain.Buy
		if !isBuy {
			side = domain.Sell
		}
		order := domain.Order{LocalID: localID, StdCode: stdCode, Side: side, Price: price, Qty: total, Filled: total - left, State: state}
		if err := store.SaveOrder(eng.CurrentDate(), order); err != nil {
			slog.Warn("failed to persist order", "err", err, "local_id", localID)
		}
	})
	traderAdapter.OnTrade(func(localID uint32, stdCode string, isBuy bool, qty, price float64) {
		side := domain.Buy
		if !isBuy {
			side = domain.Sell
		}
		trade := domain.Trade{LocalID: localID, StdCode: stdCode, Side: side, Price: price, Qty: qty}
		if err := store.SaveTrade(eng.CurrentDate(), trade); err != nil {
			slog.Warn("failed to persist trade", "err", err, "local_id", localID)
		}
	})

	wsParser := parser.NewWSParser(cfg.Parser.URL)
	wsParser.SetSink(eng)

	// This binary ships no strategy factories: the registry below starts
	// empty, is only logged, and no strategy is created or registered with
	// the engine from it.
	registry := plugin.NewRegistry()
	slog.Info("strategy factories available", "factories", registry.Factories())

	if err := traderAdapter.Login(); err != nil {
		slog.Error("trader login failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := wsParser.Run(); err != nil {
			slog.Error("market-feed parser exited", "err", err)
		}
	}()

	if err := eng.Run(); err != nil {
		slog.Error("engine failed to start", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	wsParser.Stop()
	eng.Stop()
	if err := brokerAdapter.Logout(); err != nil {
		slog.Warn("broker logout failed", "err", err)
	}
	notifier.Dump()

	slog.Info("hftcore stopped cleanly")
}

func riskParams(cfg *config.Config) domain.RiskParams {
	return domain.RiskParams{
		OrderRateBound:  cfg.Risk.OrderRateBound,
		OrderWindowSec:  cfg.Risk.OrderWindowSec,
		OrderTotalCap:   cfg.Risk.OrderTotalCap,
		CancelRateBound: cfg.Risk.CancelRateBound,
		CancelWindowSec: cfg.Risk.CancelWindowSec,
		CancelTotalCap:  cfg.Risk.CancelTotalCap,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
