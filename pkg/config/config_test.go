package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
symbols: [BTC/USDT]
exchange:
  base_url: http://localhost:9100
`

func TestParse_AppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 5, c.Executor.FailureThreshold)
	assert.Equal(t, 30*time.Second, c.Executor.RecoveryTimeout)
	assert.Equal(t, 500*time.Millisecond, c.Executor.BaseDelay)
	assert.Equal(t, 10, c.Throttle.MaxRequests)
	assert.Equal(t, 5*time.Second, c.Polling.DefaultInterval)
	assert.Equal(t, 2.0, c.Polling.Multipliers["ohlcv"])
	assert.InDelta(t, 0.30, c.Confluence.Weights["technical"], 1e-9)
	assert.Equal(t, 0.50, c.Confluence.ConfThreshold)
	assert.Equal(t, 0.75, c.Confluence.ConsThreshold)
	assert.Equal(t, "memory", c.Cache.Fallback.Type)
	assert.Equal(t, "none", c.Stream.Source)
}

func TestParse_YAMLWins(t *testing.T) {
	c, err := Parse([]byte(minimal + `
confluence:
  conf_threshold: 0.70
  cons_threshold: 0.80
`))
	require.NoError(t, err)
	assert.Equal(t, 0.70, c.Confluence.ConfThreshold)
	assert.Equal(t, 0.80, c.Confluence.ConsThreshold)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"no symbols":        "exchange:\n  base_url: http://x\n",
		"bad url":           "symbols: [A]\nexchange:\n  base_url: not a url\n",
		"interval order":    minimal + "polling:\n  min_interval: 10s\n  default_interval: 5s\n",
		"negative weight":   minimal + "confluence:\n  weights:\n    technical: -1\n",
		"kafka w/o brokers": minimal + "stream:\n  source: kafka\n",
		"publish w/o kafka": minimal + "confluence:\n  publish: true\n",
		"ch w/o host":       minimal + "  ohlcv_source: clickhouse\n",
		"bad multiplier":    minimal + "polling:\n  multipliers:\n    ticker: 0\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	t.Setenv("SYMBOLS", "ETH/USDT, SOL/USDT,")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT", "SOL/USDT"}, c.Symbols)
	assert.Equal(t, "redis:6380", c.Cache.Primary.Addr)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
