// Package config defines the configuration for the back-testing exchange.
// Config is loaded from a YAML file via github.com/spf13/viper.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"backxchange/pkg/types"
)

// Config is the top-level exchange configuration. Maps directly to the YAML
// file structure.
type Config struct {
	// FeeRatePct is the trading fee, expressed as a percentage (0.05 means
	// 0.05%), charged on the acquiring side of every fill.
	FeeRatePct decimal.Decimal `mapstructure:"fee_rate_pct"`

	// BuyPrice and SellPrice select which OHLCV field is used as the
	// reference price for buy-side and sell-side fills and triggers
	// respectively.
	BuyPrice types.PriceField `mapstructure:"buy_price"`
	SellPrice types.PriceField `mapstructure:"sell_price"`

	// DebugInvariants enables the post-tick invariant check in the facade's
	// Process method. Fatal on violation; meant for tests and development.
	DebugInvariants bool `mapstructure:"debug_invariants"`

	// InitialDeposits seeds the balance ledger at construction, keyed by
	// asset name, decimal-string amount.
	InitialDeposits map[types.Asset]string `mapstructure:"initial_deposits"`

	// Logging controls the structured logger built by cmd/backtest.
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig selects the slog handler's level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with both reference-price fields set to the
// bar's open and a zero fee rate.
func Default() *Config {
	return &Config{
		FeeRatePct: decimal.Zero,
		BuyPrice: types.FieldOpen,
		SellPrice: types.FieldOpen,
		DebugInvariants: false,
		InitialDeposits: map[types.Asset]string{},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.FeeRatePct.IsNegative() {
		return fmt.Errorf("fee_rate_pct must be >= 0")
	}
	if err := validatePriceField("buy_price", c.BuyPrice); err != nil {
		return err
	}
	if err := validatePriceField("sell_price", c.SellPrice); err != nil {
		return err
	}
	for asset, amount := range c.InitialDeposits {
		if strings.TrimSpace(asset) == "" {
			return fmt.Errorf("initial_deposits: empty asset name")
		}
		if _, err := decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("initial_deposits[%s]: %w", asset, err)
		}
	}
	return nil
}

func validatePriceField(field string, v types.PriceField) error {
	switch v {
	case types.FieldOpen, types.FieldHigh, types.FieldLow, types.FieldClose:
		return nil
	default:
		return fmt.Errorf("%s must be one of open, high, low, close; got %q", field, v)
	}
}
