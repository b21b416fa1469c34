// Package config loads and validates the engine's YAML configuration and
// builds the shared zap logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	HTTPPort string `yaml:"http_port"`

	GammaHost string `yaml:"gamma_host"`
	ClobHost  string `yaml:"clob_host"`
	DataHost  string `yaml:"data_host"`

	Strategy  StrategyConfig  `yaml:"strategy"`
	Filters   FiltersConfig   `yaml:"filters"`
	PaperMode PaperModeConfig `yaml:"paper_mode"`
	Mirror    MirrorConfig    `yaml:"mirror_mode"`
	DataFeed  DataFeedConfig  `yaml:"datafeed_mode"`
	CryptoArb CryptoArbConfig `yaml:"crypto_arb_mode"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`

	Wallet WalletConfig `yaml:"wallet"`
	API    APIConfig    `yaml:"api"`
}

// StrategyConfig drives the within-market arbitrage monitor and trade engine.
type StrategyConfig struct {
	MinProfitThresholdPct float64 `yaml:"min_profit_threshold_pct"`
	MaxTradeSizeUSDC      float64 `yaml:"max_trade_size_usdc"`
	MaxRiskPerTradeUSDC   float64 `yaml:"max_risk_per_trade_usdc"`
	SlippageTolerancePct  float64 `yaml:"slippage_tolerance_pct"`
	MinLiquidityUSDC      float64 `yaml:"min_liquidity_usdc"`
	PollingIntervalSecs   int     `yaml:"polling_interval_seconds"`
	FeeRateBPS            int     `yaml:"fee_rate_bps"`
}

// FiltersConfig selects which market segments the monitor scans.
type FiltersConfig struct {
	SportsTags []string `yaml:"sports_tags"`
}

// PaperModeConfig configures the simulated trade engine.
type PaperModeConfig struct {
	Enabled             bool    `yaml:"enabled"`
	StartingBalanceUSDC float64 `yaml:"starting_balance_usdc"`
}

// MirrorConfig configures the wallet-mirroring bot.
type MirrorConfig struct {
	Enabled             bool             `yaml:"enabled"`
	StartingBalanceUSDC float64          `yaml:"starting_balance_usdc"`
	PollIntervalSecs    int              `yaml:"poll_interval_seconds"`
	WatchedAddresses    []WatchedAddress `yaml:"watched_addresses"`
}

// WatchedAddress seeds the mirror roster from config.
type WatchedAddress struct {
	Address  string `yaml:"address"`
	Nickname string `yaml:"nickname"`
}

// DataFeedConfig configures the live sports-event bot.
type DataFeedConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	APIFootballKey          string  `yaml:"api_football_key"`
	SportradarAPIKey        string  `yaml:"sportradar_api_key"`
	StartingBalanceUSDC     float64 `yaml:"starting_balance_usdc"`
	PollIntervalSecs        int     `yaml:"poll_interval_seconds"`
	SportradarPollSecs      int     `yaml:"sportradar_poll_seconds"`
	MinEdgePct              float64 `yaml:"min_edge_pct"`
	EntryWindowSecs         int     `yaml:"entry_window_seconds"`
	EdgeTrackerPollSecs     int     `yaml:"edge_tracker_poll_s"`
	EdgePriceMoveThreshold  float64 `yaml:"edge_price_move_threshold"`
}

// CryptoArbConfig configures the cross-exchange scanner.
type CryptoArbConfig struct {
	Enabled             bool    `yaml:"enabled"`
	StartingBalanceUSDC float64 `yaml:"starting_balance_usdc"`
	ScanIntervalSecs    int     `yaml:"scan_interval_seconds"`
	MinProfitPct        float64 `yaml:"min_profit_pct"`
	MaxPositionUSDC     float64 `yaml:"max_position_usdc"`
	MaxPositionPct      float64 `yaml:"max_position_pct"`
	MinVolumeUSDC       float64 `yaml:"min_24h_volume_usdc"`
	MaxVolumeUSDC       float64 `yaml:"max_24h_volume_usdc"`
	OrderBookDepth      int     `yaml:"order_book_depth"`
	MinOrderBookAgeSecs int     `yaml:"min_order_book_age_s"`
}

// StorageConfig selects the opportunity store.
type StorageConfig struct {
	Mode         string `yaml:"mode"` // "console" or "postgres"
	PostgresHost string `yaml:"postgres_host"`
	PostgresPort string `yaml:"postgres_port"`
	PostgresUser string `yaml:"postgres_user"`
	PostgresPass string `yaml:"postgres_password"`
	PostgresDB   string `yaml:"postgres_db"`
	PostgresSSL  string `yaml:"postgres_sslmode"`
}

// LoggingConfig controls log level and the state-file directory.
type LoggingConfig struct {
	LogDir string `yaml:"log_dir"`
	Level  string `yaml:"level"`
}

// WalletConfig holds live-trading credentials. Unused in paper mode.
type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
	Address    string `yaml:"address"`
}

// APIConfig holds live-trading API credentials. Unused in paper mode.
type APIConfig struct {
	Key        string `yaml:"key"`
	Secret     string `yaml:"secret"`
	Passphrase string `yaml:"passphrase"`
}

// Load reads and validates the YAML config at path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.GammaHost == "" {
		c.GammaHost = "https://gamma-api.polymarket.com"
	}
	if c.ClobHost == "" {
		c.ClobHost = "https://clob.polymarket.com"
	}
	if c.DataHost == "" {
		c.DataHost = "https://data-api.polymarket.com"
	}
	if c.Logging.LogDir == "" {
		c.Logging.LogDir = "logs"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Strategy.MaxTradeSizeUSDC == 0 {
		c.Strategy.MaxTradeSizeUSDC = 100
	}
	if c.Strategy.MaxRiskPerTradeUSDC == 0 {
		c.Strategy.MaxRiskPerTradeUSDC = 200
	}
	if c.Strategy.SlippageTolerancePct == 0 {
		c.Strategy.SlippageTolerancePct = 1.0
	}
	if c.Strategy.MinLiquidityUSDC == 0 {
		c.Strategy.MinLiquidityUSDC = 50
	}
	if c.Strategy.PollingIntervalSecs == 0 {
		c.Strategy.PollingIntervalSecs = 30
	}
	if len(c.Filters.SportsTags) == 0 {
		c.Filters.SportsTags = []string{"Sports"}
	}
	if c.PaperMode.StartingBalanceUSDC == 0 {
		c.PaperMode.StartingBalanceUSDC = 10_000
	}
	if c.Mirror.StartingBalanceUSDC == 0 {
		c.Mirror.StartingBalanceUSDC = 20_000
	}
	if c.Mirror.PollIntervalSecs == 0 {
		c.Mirror.PollIntervalSecs = 30
	}
	if c.DataFeed.StartingBalanceUSDC == 0 {
		c.DataFeed.StartingBalanceUSDC = 20_000
	}
	if c.DataFeed.PollIntervalSecs == 0 {
		c.DataFeed.PollIntervalSecs = 15
	}
	if c.DataFeed.SportradarPollSecs == 0 {
		c.DataFeed.SportradarPollSecs = 30
	}
	if c.DataFeed.MinEdgePct == 0 {
		c.DataFeed.MinEdgePct = 3.0
	}
	if c.DataFeed.EntryWindowSecs == 0 {
		c.DataFeed.EntryWindowSecs = 45
	}
	if c.DataFeed.EdgeTrackerPollSecs == 0 {
		c.DataFeed.EdgeTrackerPollSecs = 3
	}
	if c.DataFeed.EdgePriceMoveThreshold == 0 {
		c.DataFeed.EdgePriceMoveThreshold = 0.02
	}
	if c.CryptoArb.StartingBalanceUSDC == 0 {
		c.CryptoArb.StartingBalanceUSDC = 20_000
	}
	if c.CryptoArb.ScanIntervalSecs == 0 {
		c.CryptoArb.ScanIntervalSecs = 35
	}
	if c.CryptoArb.MinProfitPct == 0 {
		c.CryptoArb.MinProfitPct = 0.5
	}
	if c.CryptoArb.MaxPositionUSDC == 0 {
		c.CryptoArb.MaxPositionUSDC = 500
	}
	if c.CryptoArb.MaxPositionPct == 0 {
		c.CryptoArb.MaxPositionPct = 0.02
	}
	if c.CryptoArb.MinVolumeUSDC == 0 {
		c.CryptoArb.MinVolumeUSDC = 100_000
	}
	if c.CryptoArb.OrderBookDepth == 0 {
		c.CryptoArb.OrderBookDepth = 10
	}
	if c.CryptoArb.MinOrderBookAgeSecs == 0 {
		c.CryptoArb.MinOrderBookAgeSecs = 60
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = "console"
	}
	if c.Storage.PostgresHost == "" {
		c.Storage.PostgresHost = "localhost"
	}
	if c.Storage.PostgresPort == "" {
		c.Storage.PostgresPort = "5432"
	}
	if c.Storage.PostgresSSL == "" {
		c.Storage.PostgresSSL = "disable"
	}
}

// Validate checks that configuration values are valid. Missing live-trading
// credentials outside paper mode are fatal at startup.
func (c *Config) Validate() error {
	if c.Strategy.MinProfitThresholdPct <= 0 {
		return errors.New("strategy.min_profit_threshold_pct must be > 0")
	}

	if c.Strategy.SlippageTolerancePct < 0 {
		return fmt.Errorf("strategy.slippage_tolerance_pct must be >= 0, got %f",
			c.Strategy.SlippageTolerancePct)
	}

	if c.Strategy.MaxTradeSizeUSDC <= 0 {
		return fmt.Errorf("strategy.max_trade_size_usdc must be positive, got %f",
			c.Strategy.MaxTradeSizeUSDC)
	}

	if c.Strategy.MaxRiskPerTradeUSDC <= 0 {
		return fmt.Errorf("strategy.max_risk_per_trade_usdc must be positive, got %f",
			c.Strategy.MaxRiskPerTradeUSDC)
	}

	if c.Storage.Mode != "console" && c.Storage.Mode != "postgres" {
		return fmt.Errorf("storage.mode must be 'console' or 'postgres', got %q", c.Storage.Mode)
	}

	if !c.PaperMode.Enabled {
		if c.Wallet.PrivateKey == "" {
			return errors.New("wallet.private_key is required when paper mode is disabled")
		}
		if c.API.Key == "" || c.API.Secret == "" || c.API.Passphrase == "" {
			return errors.New("api credentials are required when paper mode is disabled")
		}
	}

	if c.CryptoArb.MaxPositionPct < 0 || c.CryptoArb.MaxPositionPct > 1 {
		return fmt.Errorf("crypto_arb_mode.max_position_pct must be in [0,1], got %f",
			c.CryptoArb.MaxPositionPct)
	}

	return nil
}

// PollingInterval returns the monitor scan period.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Strategy.PollingIntervalSecs) * time.Second
}
