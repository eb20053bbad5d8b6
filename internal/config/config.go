// Package config loads reward-worker's environment contract (§6 of the
// reward-assignment specification) into a typed, validated Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// EnvRewardWindow is the integer-seconds width of the reward window.
	EnvRewardWindow = "REWARD_WINDOW"

	// EnvDefaultEventValue is the contribution attributed to an event record
	// with no properties.value.
	EnvDefaultEventValue = "DEFAULT_EVENT_VALUE"

	// EnvNodeID is this process's zero-based index in the job array.
	EnvNodeID = "NODE_ID"

	// EnvNodeCount is the total size of the job array.
	EnvNodeCount = "NODE_COUNT"

	// EnvReprocessAll, when "true", discards all existing outputs before planning.
	EnvReprocessAll = "REPROCESS_ALL"

	// EnvInputRoot is the root directory of two-character-prefixed input shards.
	EnvInputRoot = "REWARD_WORKER_INPUT_ROOT"

	// EnvOutputRoot is the root directory that mirrors EnvInputRoot with gzipped outputs.
	EnvOutputRoot = "REWARD_WORKER_OUTPUT_ROOT"

	// EnvUnrecoverableRoot is the flat quarantine directory for codec-corrupt inputs.
	EnvUnrecoverableRoot = "REWARD_WORKER_UNRECOVERABLE_ROOT"

	// EnvPoolWidth overrides the worker's thread-pool width. Optional.
	EnvPoolWidth = "REWARD_WORKER_POOL_WIDTH"

	// EnvConfigFile points at an optional TOML file providing defaults for
	// the path and tuning values above. Optional.
	EnvConfigFile = "REWARD_WORKER_CONFIG_FILE"

	// DefaultPoolWidth is the worker thread-pool width used when
	// EnvPoolWidth is unset, matching the 20-thread default from the
	// original AWS Batch worker.
	DefaultPoolWidth = 20
)

// Config holds the fully resolved settings for one worker process.
type Config struct {
	RewardWindow      time.Duration
	DefaultEventValue float64
	NodeID            int
	NodeCount         int
	ReprocessAll      bool

	InputRoot         string
	OutputRoot        string
	UnrecoverableRoot string

	PoolWidth int
}

// fileOverrides mirrors the subset of Config that may be supplied via
// EnvConfigFile. Fields left unset in the TOML file fall back to their
// built-in defaults; environment variables always take precedence over
// both.
type fileOverrides struct {
	InputRoot         string `toml:"input_root"`
	OutputRoot        string `toml:"output_root"`
	UnrecoverableRoot string `toml:"unrecoverable_root"`
	PoolWidth         int    `toml:"pool_width"`
}

// Load reads the environment contract described in the reward-assignment
// specification and returns a validated Config. A missing or unparseable
// required variable is a fatal configuration error, returned as err.
func Load() (Config, error) {
	var overrides fileOverrides
	if path := os.Getenv(EnvConfigFile); path != "" {
		if _, err := toml.DecodeFile(path, &overrides); err != nil {
			return Config{}, fmt.Errorf("config: reading %s=%q: %w", EnvConfigFile, path, err)
		}
	}

	cfg := Config{
		InputRoot:         overrides.InputRoot,
		OutputRoot:        overrides.OutputRoot,
		UnrecoverableRoot: overrides.UnrecoverableRoot,
		PoolWidth:         overrides.PoolWidth,
	}
	if cfg.PoolWidth <= 0 {
		cfg.PoolWidth = DefaultPoolWidth
	}

	var err error
	if cfg.RewardWindow, err = requireSeconds(EnvRewardWindow); err != nil {
		return Config{}, err
	}
	if cfg.DefaultEventValue, err = requireFloat(EnvDefaultEventValue); err != nil {
		return Config{}, err
	}
	if cfg.NodeID, err = requireInt(EnvNodeID); err != nil {
		return Config{}, err
	}
	if cfg.NodeCount, err = requireInt(EnvNodeCount); err != nil {
		return Config{}, err
	}
	if cfg.NodeCount <= 0 {
		return Config{}, fmt.Errorf("config: %s must be positive, got %d", EnvNodeCount, cfg.NodeCount)
	}
	if cfg.NodeID < 0 || cfg.NodeID >= cfg.NodeCount {
		return Config{}, fmt.Errorf("config: %s=%d out of range [0,%s=%d)", EnvNodeID, cfg.NodeID, EnvNodeCount, cfg.NodeCount)
	}

	cfg.ReprocessAll = os.Getenv(EnvReprocessAll) == "true"

	if v := os.Getenv(EnvInputRoot); v != "" {
		cfg.InputRoot = v
	}
	if v := os.Getenv(EnvOutputRoot); v != "" {
		cfg.OutputRoot = v
	}
	if v := os.Getenv(EnvUnrecoverableRoot); v != "" {
		cfg.UnrecoverableRoot = v
	}
	if v := os.Getenv(EnvPoolWidth); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: %s must be a positive integer, got %q", EnvPoolWidth, v)
		}
		cfg.PoolWidth = n
	}

	if cfg.InputRoot == "" {
		return Config{}, missingErr(EnvInputRoot)
	}
	if cfg.OutputRoot == "" {
		return Config{}, missingErr(EnvOutputRoot)
	}
	if cfg.UnrecoverableRoot == "" {
		return Config{}, missingErr(EnvUnrecoverableRoot)
	}

	return cfg, nil
}

func missingErr(name string) error {
	return fmt.Errorf("config: required environment variable %s is not set", name)
}

func requireSeconds(name string) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, missingErr(name)
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer number of seconds, got %q: %w", name, raw, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

func requireFloat(name string) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, missingErr(name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number, got %q: %w", name, raw, err)
	}
	return v, nil
}

func requireInt(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, missingErr(name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", name, raw, err)
	}
	return v, nil
}
