// Command backtest wires a Quote Source, a slippage Model, and a Timer into
// an Exchange, submits one market buy before the run loop in place of a
// Strategy callback, drives it to completion, and logs a balance summary at
// the end.
//
// It does not ingest CSV or fetch data over HTTP, and it does not implement
// a strategy algorithm — both are external collaborators in this design.
// The in-memory fixture below stands in for whatever a real Strategy would
// load before calling exchange.New.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"backxchange/internal/config"
	"backxchange/internal/exchange"
	"backxchange/internal/quote"
	"backxchange/internal/slippage"
	"backxchange/internal/timer"
	"backxchange/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("BACKXCHANGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	source := fixtureSource()
	tm := timer.New(1_000, 1_000+9*60, 60)

	ex, err := exchange.New(logger, cfg, source, slippage.Identity{}, tm)
	if err != nil {
		logger.Error("failed to build exchange", "error", err)
		os.Exit(1)
	}

	if _, err := ex.CreateMarketBuyOrder("XRP/ETH", decimal.RequireFromString("100")); err != nil {
		logger.Error("failed to submit order", "error", err)
		os.Exit(1)
	}

	logger.Info("backtest starting", "start", tm.Now(), "symbols", source.Symbols())

	for {
		done, err := ex.Process()
		if err != nil {
			logger.Error("process failed", "error", err)
			os.Exit(1)
		}
		if done {
			break
		}
	}

	balances := ex.FetchBalances()
	for asset, entry := range balances {
		logger.Info("final balance", "asset", asset, "total", entry.Total, "free", entry.Free, "used", entry.Used)
	}

	valueInETH, err := ex.FetchBalanceIn("ETH", true)
	if err != nil {
		logger.Warn("failed to value portfolio", "error", err)
	} else {
		logger.Info("backtest complete", "portfolio_value_eth", valueInETH)
	}

	fmt.Println("backtest complete")
}

// fixtureSource builds a ten-tick XRP/ETH fixture: a flat reference price
// so a single market buy fills in full on the first process() call.
func fixtureSource() *quote.MemorySource {
	src := quote.NewMemorySource()
	for t := int64(1_000); t <= 1_000+9*60; t += 60 {
		bar := types.Bar{
			Open:   decimal.RequireFromString("0.0005"),
			High:   decimal.RequireFromString("0.0005"),
			Low:    decimal.RequireFromString("0.0005"),
			Close:  decimal.RequireFromString("0.0005"),
			Volume: decimal.RequireFromString("1000000"),
		}
		src.Put("XRP/ETH", t, bar)
	}
	return src
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
