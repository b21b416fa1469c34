package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
strategy:
  min_profit_threshold_pct: 1.0
paper_mode:
  enabled: true
mirror_mode:
  enabled: true
  watched_addresses:
    - address: "0xabc"
      nickname: whale
logging:
  log_dir: ` + t.TempDir() + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewWiresEnabledBots(t *testing.T) {
	a, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, a.paperTrader)
	assert.NotNil(t, a.arbMonitor)
	assert.NotNil(t, a.mirrorBot)
	assert.NotNil(t, a.analyzer)
	assert.Nil(t, a.datafeedBot)
	assert.Nil(t, a.cryptoBot)

	// The config-seeded roster is loaded.
	addrs := a.mirrorBot.Monitor.GetAddresses()
	require.Len(t, addrs, 1)
	assert.Equal(t, "0xabc", addrs[0].Address)

	require.NoError(t, a.Shutdown())
}
