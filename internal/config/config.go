/*

This file contains the operational configuration surface `cmd/validator`
loads at startup: required environment variables, loaded the way the
teacher's own LoadConfig did — eagerly, failing fast on anything missing
— plus an optional leading `.env` file via godotenv.

*/

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/elys-network/lpvalidator/internal/types"
)

const defaultMinerTimeout = 60 * time.Second

// Config is the validator's resolved operational configuration.
type Config struct {
	// WalletID is an opaque identifier handed to the executor sink; no
	// signing happens in this process.
	WalletID string
	// NetworkUID and NetUID identify the network this validator is
	// registered against.
	NetworkUID string
	NetUID     uint64

	// JobsConfigPath points at a JSON file of []types.Job: the static job
	// list, since job discovery is out of scope.
	JobsConfigPath string
	// MinerDirectoryPath points at a JSON file of map[string]string
	// (miner ID -> gRPC address): the static miner directory, since miner
	// discovery is out of scope.
	MinerDirectoryPath string

	MinerTimeout time.Duration
	DryRun       bool
}

// Load reads configuration from the environment, optionally preceded by a
// `.env` file at envPath (ignored if absent). Every required variable
// missing causes a non-nil error; callers should treat that as fatal at
// startup, as the teacher's cmd/avm/main.go does.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}

	cfg := Config{MinerTimeout: defaultMinerTimeout}

	var err error
	if cfg.WalletID, err = getEnv("VALIDATOR_WALLET_ID"); err != nil {
		return Config{}, err
	}
	if cfg.NetworkUID, err = getEnv("VALIDATOR_NETWORK_UID"); err != nil {
		return Config{}, err
	}
	if cfg.NetUID, err = getEnvAsUint64("NETUID"); err != nil {
		return Config{}, err
	}
	if cfg.JobsConfigPath, err = getEnv("JOBS_CONFIG_PATH"); err != nil {
		return Config{}, err
	}
	if cfg.MinerDirectoryPath, err = getEnv("MINER_DIRECTORY_PATH"); err != nil {
		return Config{}, err
	}

	if raw, ok := os.LookupEnv("MINER_TIMEOUT"); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: MINER_TIMEOUT must be a valid duration, got %q: %w", raw, err)
		}
		cfg.MinerTimeout = d
	}

	if raw, ok := os.LookupEnv("DRY_RUN"); ok {
		dryRun, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: DRY_RUN must be a bool, got %q: %w", raw, err)
		}
		cfg.DryRun = dryRun
	}

	return cfg, nil
}

// LoadJobs reads the static job list from cfg.JobsConfigPath.
func LoadJobs(path string) ([]types.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read jobs config %s: %w", path, err)
	}
	var jobs []types.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("config: parse jobs config %s: %w", path, err)
	}
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("config: job %q: %w", job.JobID, err)
		}
	}
	return jobs, nil
}

// LoadMinerDirectory reads the static miner ID -> endpoint map from path.
func LoadMinerDirectory(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read miner directory %s: %w", path, err)
	}
	var directory map[string]string
	if err := json.Unmarshal(data, &directory); err != nil {
		return nil, fmt.Errorf("config: parse miner directory %s: %w", path, err)
	}
	return directory, nil
}

func getEnv(key string) (string, error) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("config: environment variable %s is required but not set", key)
}

func getEnvAsUint64(key string) (uint64, error) {
	raw, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: environment variable %s must be a valid uint64, got %q: %w", key, raw, err)
	}
	return value, nil
}
