package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"https://rpc.mainnet.near.org"}, cfg.RPC.Endpoints)
	assert.Equal(t, 30*time.Second, cfg.RPC.Timeout)
	assert.False(t, cfg.RPC.Broadcast)
	assert.Equal(t, "intents.near", cfg.Intents.Contract)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
rpc:
  endpoints:
    - https://rpc.mainnet.near.org
    - https://token123@rpc.backup.near.org
  timeout: 10s
  broadcast: true
account:
  id: alice.near
  private_keys:
    - ed25519:3D4YudUahN1nawWogh8pAKSj92sUNMdbZGjn7kERKzYoTy8tnFQuwoGUC51DowKqorvkr2pytJSnwuSbsNVfqygr
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Len(t, cfg.RPC.Endpoints, 2)
	assert.Equal(t, 10*time.Second, cfg.RPC.Timeout)
	assert.True(t, cfg.RPC.Broadcast)
	assert.Equal(t, "alice.near", cfg.Account.ID)
}

func TestValidateRejectsBadKey(t *testing.T) {
	cfg := &Config{
		RPC: RPCConfig{
			Endpoints: []string{"https://rpc.mainnet.near.org"},
			Timeout:   time.Second,
		},
		Account: Account{PrivateKeys: []string{"secp256k1:abc"}},
	}
	require.Error(t, cfg.Validate())
}
