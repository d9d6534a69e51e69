// Package config loads Evaluator/CLI configuration from environment
// variables via github.com/caarlos0/env, the same struct-tag pattern
// louisbranch-fracturing.space's internal/platform/config and its
// per-service Config types use, generalized from one raw env struct
// per service to one raw env struct per cu-core component.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete, parsed Compute Unit configuration.
type Config struct {
	// ModuleStoreDir, when set, selects a filesystem-backed
	// ModuleBinaryStore; otherwise ModuleStoreURL selects an HTTP one.
	ModuleStoreDir string
	ModuleStoreURL string

	// InteractionsDir, when set, selects a file-backed interaction
	// Source/Writer; otherwise SUBaseURL selects an HTTP one.
	InteractionsDir string
	SUBaseURL       string

	// CacheDir selects the leveldb directory for the Evaluation Cache.
	// Empty means an in-memory cache.
	CacheDir string

	DefaultGasLimit    uint64
	DefaultMemoryPages uint32
	DefaultCallTimeout time.Duration

	LogLevel string
}

// env_ holds the raw tagged fields; Load translates it into Config so
// callers never see envDefault strings or env tags.
type env_ struct {
	ModuleStoreDir  string        `env:"CU_MODULE_STORE_DIR"`
	ModuleStoreURL  string        `env:"CU_MODULE_STORE_URL"`
	InteractionsDir string        `env:"CU_INTERACTIONS_DIR"`
	SUBaseURL       string        `env:"CU_SU_URL"`
	CacheDir        string        `env:"CU_CACHE_DIR"`
	GasLimit        uint64        `env:"CU_GAS_LIMIT" envDefault:"10000000"`
	MemoryPages     uint32        `env:"CU_MEMORY_PAGES" envDefault:"256"`
	CallTimeout     time.Duration `env:"CU_CALL_TIMEOUT" envDefault:"5s"`
	LogLevel        string        `env:"CU_LOG_LEVEL" envDefault:"info"`
}

// Load parses Config from the process environment, applying the same
// envDefault-backed defaults every run gets when the corresponding
// variable is unset.
func Load() (Config, error) {
	var raw env_
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return Config{
		ModuleStoreDir:     raw.ModuleStoreDir,
		ModuleStoreURL:     raw.ModuleStoreURL,
		InteractionsDir:    raw.InteractionsDir,
		SUBaseURL:          raw.SUBaseURL,
		CacheDir:           raw.CacheDir,
		DefaultGasLimit:    raw.GasLimit,
		DefaultMemoryPages: raw.MemoryPages,
		DefaultCallTimeout: raw.CallTimeout,
		LogLevel:           raw.LogLevel,
	}, nil
}
