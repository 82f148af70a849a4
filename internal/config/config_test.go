package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, -20.0, cfg.Risk.StopLoss.Ultra)
	assert.Equal(t, -15.0, cfg.Risk.StopLoss.High)
	assert.Equal(t, 15.0, cfg.Risk.Trailing.StartPercent)
	assert.Equal(t, 10.0, cfg.Risk.Trailing.DistancePercent)
	assert.Equal(t, 40, cfg.Risk.KillSwitch.MaxTimeSeconds)
	assert.Equal(t, 30, cfg.Execution.MaxOpenPositions)
	assert.Equal(t, 3, cfg.Execution.MaxInFlight)
	assert.Equal(t, 60_000, cfg.HFT.MaxPositionAgeMS)
	require.Len(t, cfg.TakeProfit, 3)
	assert.Equal(t, 100.0, cfg.TakeProfit[0].GainPercent)
}

func TestLoad_OverlayMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulation: true
risk:
  stop_loss:
    ultra: -30
endpoints:
  - url: http://a
    pool: fast
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, -30.0, cfg.Risk.StopLoss.Ultra, "overridden")
	assert.Equal(t, -15.0, cfg.Risk.StopLoss.High, "default survives partial override")
	assert.Equal(t, 15.0, cfg.Risk.Trailing.StartPercent, "sibling section untouched")
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, rpcpool.PoolFast, cfg.Endpoints[0].Pool)
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", "key-from-env")
	t.Setenv("POSTGRES_DSN", "postgres://env")

	cfg := Default()
	cfg.Simulation = true
	cfg.applyEnv()

	assert.Equal(t, "key-from-env", cfg.Wallet.PrivateKey)
	assert.Equal(t, "postgres://env", cfg.Storage.PostgresDSN)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Simulation = true
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Simulation = true
	bad.Execution.BuyAmountSOL = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Simulation = true
	bad.Risk.StopLoss.Ultra = -5 // above high
	assert.Error(t, bad.Validate())

	bad = Default()
	assert.Error(t, bad.Validate(), "live mode requires endpoints")
}

func TestSet_DottedPath(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("risk.stop_loss.ultra", "-25"))
	assert.Equal(t, -25.0, cfg.Risk.StopLoss.Ultra)

	require.NoError(t, cfg.Set("execution.max_in_flight", "5"))
	assert.Equal(t, 5, cfg.Execution.MaxInFlight)

	require.NoError(t, cfg.Set("risk.kill_switch.enabled", "false"))
	assert.False(t, cfg.Risk.KillSwitch.Enabled)

	assert.Error(t, cfg.Set("no.such.path", "1"))
	assert.Error(t, cfg.Set("risk.stop_loss.nope", "1"))
}

func TestLamportConversions(t *testing.T) {
	cfg := Default()
	cfg.Execution.BuyAmountSOL = 0.03
	cfg.Execution.SlippagePercent = 25
	cfg.Execution.TipAmountSOL = 0.015

	assert.Equal(t, uint64(30_000_000), cfg.BuyLamports())
	assert.Equal(t, uint64(37_500_000), cfg.MaxCostLamports())
	assert.Equal(t, uint64(15_000_000), cfg.TipLamports())
}
