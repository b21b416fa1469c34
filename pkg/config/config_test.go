package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
strategy:
  min_profit_threshold_pct: 1.5
paper_mode:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 1.5, cfg.Strategy.MinProfitThresholdPct)
	assert.Equal(t, 100.0, cfg.Strategy.MaxTradeSizeUSDC)
	assert.Equal(t, 200.0, cfg.Strategy.MaxRiskPerTradeUSDC)
	assert.Equal(t, 30, cfg.Strategy.PollingIntervalSecs)
	assert.Equal(t, 20_000.0, cfg.Mirror.StartingBalanceUSDC)
	assert.Equal(t, 3, cfg.DataFeed.EdgeTrackerPollSecs)
	assert.Equal(t, 0.02, cfg.DataFeed.EdgePriceMoveThreshold)
	assert.Equal(t, "console", cfg.Storage.Mode)
	assert.Equal(t, "logs", cfg.Logging.LogDir)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
http_port: "9090"
strategy:
  min_profit_threshold_pct: 0.5
  max_trade_size_usdc: 50
  max_risk_per_trade_usdc: 120
  slippage_tolerance_pct: 2.0
  min_liquidity_usdc: 25
  polling_interval_seconds: 10
paper_mode:
  enabled: true
  starting_balance_usdc: 5000
mirror_mode:
  enabled: true
  poll_interval_seconds: 20
  watched_addresses:
    - address: "0xabc"
      nickname: whale
datafeed_mode:
  enabled: true
  api_football_key: key1
  min_edge_pct: 4.0
crypto_arb_mode:
  enabled: true
  scan_interval_seconds: 40
  min_24h_volume_usdc: 250000
logging:
  log_dir: /tmp/engine-logs
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 5000.0, cfg.PaperMode.StartingBalanceUSDC)
	require.Len(t, cfg.Mirror.WatchedAddresses, 1)
	assert.Equal(t, "whale", cfg.Mirror.WatchedAddresses[0].Nickname)
	assert.Equal(t, 40, cfg.CryptoArb.ScanIntervalSecs)
	assert.Equal(t, 250_000.0, cfg.CryptoArb.MinVolumeUSDC)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsMissingThreshold(t *testing.T) {
	path := writeConfig(t, `
paper_mode:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_profit_threshold_pct")
}

func TestValidateRequiresCredentialsOutsidePaperMode(t *testing.T) {
	path := writeConfig(t, `
strategy:
  min_profit_threshold_pct: 1.0
paper_mode:
  enabled: false
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key")
}

func TestValidateRejectsBadStorageMode(t *testing.T) {
	path := writeConfig(t, `
strategy:
  min_profit_threshold_pct: 1.0
paper_mode:
  enabled: true
storage:
  mode: mysql
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.mode")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger("not-a-level")
	require.Error(t, err)
}
