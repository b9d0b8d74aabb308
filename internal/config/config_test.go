package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpvalidator/internal/types"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"VALIDATOR_WALLET_ID":  "wallet-1",
		"VALIDATOR_NETWORK_UID": "net-1",
		"NETUID":                "42",
		"JOBS_CONFIG_PATH":      "jobs.json",
		"MINER_DIRECTORY_PATH":  "directory.json",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoad_DefaultsMinerTimeoutWhenUnset(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.MinerTimeout)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, uint64(42), cfg.NetUID)
}

func TestLoad_ParsesOptionalOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MINER_TIMEOUT", "15s")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.MinerTimeout)
	assert.True(t, cfg.DryRun)
}

func TestLoad_MissingRequiredVariableFails(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("VALIDATOR_WALLET_ID")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_RejectsMalformedMinerTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MINER_TIMEOUT", "not-a-duration")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadJobs_ValidatesEveryEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	jobs := []types.Job{
		{JobID: "job-1", PairAddress: "0xabc", VaultAddress: "0xdef", RoundDuration: time.Minute, CheckpointInterval: 5, Active: true},
	}
	data, err := json.Marshal(jobs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadJobs(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "job-1", loaded[0].JobID)
}

func TestLoadJobs_RejectsInvalidJob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	jobs := []types.Job{{JobID: "", PairAddress: "0xabc"}}
	data, err := json.Marshal(jobs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = LoadJobs(path)
	assert.Error(t, err)
}

func TestLoadMinerDirectory_ParsesAddressMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "directory.json")

	directory := map[string]string{"miner-a": "localhost:9001", "miner-b": "localhost:9002"}
	data, err := json.Marshal(directory)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadMinerDirectory(path)
	require.NoError(t, err)
	assert.Equal(t, directory, loaded)
}
