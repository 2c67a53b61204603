package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tmp/alphapulse/market_data.sock", cfg.MarketDataPath())
	assert.Equal(t, "/tmp/alphapulse/signals.sock", cfg.SignalsPath())
	assert.Equal(t, "/tmp/alphapulse/execution.sock", cfg.ExecutionPath())
	assert.Equal(t, "/tmp/alphapulse/market_data.shm", cfg.RingPath("market_data"))
}

func TestYamlThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(
		"socket_dir: /run/fabric\ngap_snapshot_threshold: 50\nring_capacity_log2: 12\n"), 0o644))

	t.Setenv(EnvSocketDir, "/run/override")
	t.Setenv(EnvRingMaxConsumers, "4")

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "/run/override", cfg.SocketDir) // env beats yaml
	assert.Equal(t, uint64(50), cfg.GapSnapshotThreshold)
	assert.Equal(t, uint(12), cfg.RingCapacityLog2)
	assert.Equal(t, 4, cfg.RingMaxConsumers)
}

func TestEnvParseErrors(t *testing.T) {
	t.Setenv(EnvGapSnapshotThreshold, "not-a-number")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsBadGeometry(t *testing.T) {
	cfg := Default()
	cfg.RingCapacityLog2 = 40
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RingMaxConsumers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SocketDir = ""
	assert.Error(t, cfg.Validate())
}
