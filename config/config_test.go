package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/celopredict/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RPC_URL", "CHAIN_ID", "CONTRACT_ADDRESS", "PRIVATE_KEY", "USER_ADDRESS", "METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://forno.celo-sepolia.celo-testnet.org", cfg.Chain.RPCURL)
	assert.Equal(t, int64(11142220), cfg.Chain.ChainID)
	assert.Equal(t, "0xd60dD40EBB2b0Aec09445bAEdE0f4d6f3C176EEE", cfg.Ledger.Contract)
	assert.Equal(t, 8, cfg.Ledger.ReadConcurrency)
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 3*time.Second, cfg.ConfirmPoll())
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.CanSign())
}

func TestLoad_YAMLValues(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, `
chain:
  rpc_url: http://localhost:8545
  chain_id: 42220
refresh:
  poll_seconds: 5
session:
  user_address: "0x00000000000000000000000000000000000000aa"
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, int64(42220), cfg.Chain.ChainID)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Session.UserAddress)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://node:8545")
	t.Setenv("CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000001")
	t.Setenv("PRIVATE_KEY", "deadbeef")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Load(writeConfig(t, "chain:\n  rpc_url: http://ignored\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.Chain.RPCURL)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", cfg.Ledger.Contract)
	assert.True(t, cfg.CanSign())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_BadChainID(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAIN_ID", "celo")
	_, err := config.Load(writeConfig(t, "{}\n"))
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
