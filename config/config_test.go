package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volsignal/internal/model"
)

var envKeys = []string{
	"INSTRUMENTS_FILE", "DEFAULT_THRESHOLD", "DATA_SOURCE", "TWELVEDATA_API_KEY", "TWELVEDATA_BASE_URL",
	"BAR_INTERVAL", "LOOKBACK", "SYNTHETIC_SEED", "SCHEDULE", "ATR_METHOD", "ADX_METHOD", "COOLDOWN",
	"EXIT_RATIO", "WORKERS", "FETCH_TIMEOUT", "CYCLE_TIMEOUT", "MARKET_HOURS_ONLY", "MARKET_HOLIDAYS",
	"REDIS_ADDR", "REDIS_PASSWORD", "STATE_KEY", "SQLITE_PATH", "HTTP_ADDR", "LOG_LEVEL",
	"TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "WEBHOOK_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_SOURCE", "synthetic")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SourceSynthetic, c.DataSource)
	assert.Equal(t, 5*time.Minute, c.Cooldown)
	assert.Equal(t, 10*time.Second, c.FetchTimeout)
	assert.Equal(t, "@every 1m", c.Schedule)
	assert.Equal(t, 1.0, c.DefaultThreshold)
	assert.Equal(t, 4, c.Workers)
	assert.True(t, c.MarketHoursOnly)
	assert.Equal(t, "vol:episodes", c.StateKey)
	assert.Equal(t, ":8080", c.HTTPAddr)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWELVEDATA_API_KEY", "k")
	t.Setenv("COOLDOWN", "90")
	t.Setenv("FETCH_TIMEOUT", "2s")
	t.Setenv("EXIT_RATIO", "0.8")
	t.Setenv("MARKET_HOURS_ONLY", "false")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SourceTwelveData, c.DataSource)
	assert.Equal(t, 90*time.Second, c.Cooldown, "bare integers are seconds")
	assert.Equal(t, 2*time.Second, c.FetchTimeout)
	assert.Equal(t, 0.8, c.ExitRatio)
	assert.False(t, c.MarketHoursOnly)
	assert.Equal(t, int64(-100123), c.TelegramChatID)
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_SOURCE", "synthetic")
	t.Setenv("WORKERS", "many")
	t.Setenv("COOLDOWN", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKERS")
	assert.Contains(t, err.Error(), "COOLDOWN")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.ErrorContains(t, err, "TWELVEDATA_API_KEY")

	t.Setenv("DATA_SOURCE", "yahoo")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown source")

	t.Setenv("DATA_SOURCE", "synthetic")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	_, err = Load()
	assert.ErrorContains(t, err, "set together")
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VOLSIGNAL_TEST_A=file\nVOLSIGNAL_TEST_B=file\n"), 0o600))
	t.Setenv("VOLSIGNAL_TEST_A", "env")
	t.Cleanup(func() { os.Unsetenv("VOLSIGNAL_TEST_B") })

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "env", os.Getenv("VOLSIGNAL_TEST_A"))
	assert.Equal(t, "file", os.Getenv("VOLSIGNAL_TEST_B"))
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadInstruments_BuiltIn(t *testing.T) {
	got, err := LoadInstruments("", 0.7)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "BTC/USD", got[0].ID)
	assert.True(t, got[0].AlwaysOpen)
	for _, c := range got {
		assert.Equal(t, 0.7, c.Threshold)
		assert.Equal(t, model.DefaultPeriod, c.Period)
		assert.Equal(t, model.MetricATRPercent, c.Metric)
	}
}

func TestLoadInstruments_File(t *testing.T) {
	path := writeYAML(t, `
default_threshold: 0.5
instruments:
  - id: XAU/USD
    category: metal
    threshold: 0.4
    metric: adx
    period: 10
  - id: EUR/USD
    category: forex
`)
	got, err := LoadInstruments(path, 9)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.MetricADX, got[0].Metric)
	assert.Equal(t, 10, got[0].Period)
	assert.Equal(t, 0.4, got[0].Threshold)
	assert.Equal(t, 0.5, got[1].Threshold, "file default wins over caller default")
	assert.Equal(t, "EUR/USD", got[1].DisplayName)
}

func TestLoadInstruments_Errors(t *testing.T) {
	cases := map[string]string{
		"duplicate": "instruments:\n  - {id: A, category: forex, threshold: 1}\n  - {id: A, category: forex, threshold: 1}\n",
		"category":  "instruments:\n  - {id: A, category: stocks, threshold: 1}\n",
		"period":    "instruments:\n  - {id: A, category: forex, threshold: 1, period: -3}\n",
		"empty":     "default_threshold: 1\n",
		"yaml":      "instruments: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadInstruments(writeYAML(t, body), 1)
			assert.Error(t, err)
		})
	}

	_, err := LoadInstruments(filepath.Join(t.TempDir(), "nope.yaml"), 1)
	assert.Error(t, err)
}

func TestShippedInstrumentsFileLoads(t *testing.T) {
	got, err := LoadInstruments(filepath.Join("..", "configs", "instruments.yaml"), 1)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}
