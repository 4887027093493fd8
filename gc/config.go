package gc

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the closed configuration set from spec.md §6.
//
// Grounded on chazu-maggie/manifest/manifest.go's BurntSushi/toml struct
// tags and Load(dir)-returns-typed-config pattern.
type Config struct {
	IncrementalBeginDestroyEnabled bool    `toml:"incremental_begin_destroy_enabled"`
	MultithreadedDestructionEnabled bool   `toml:"multithreaded_destruction_enabled"`
	AllowParallel                  bool    `toml:"allow_parallel"`
	NumRetriesBeforeForcingGC      int     `toml:"num_retries_before_forcing_gc"`
	AdditionalFinishDestroyTime    float64 `toml:"additional_finish_destroy_time_seconds"`
	GarbageReferenceTracking       int     `toml:"garbage_reference_tracking"`
	VerifyAssumptionsChance        float64 `toml:"verify_assumptions_chance"`
	NumWorkers                     int     `toml:"num_workers"`
	StallPolicy                    string  `toml:"stall_policy"` // "continue" or "abort"
}

// DefaultConfig returns the resolved defaults from
// original_source/GarbageCollection.cpp (see DESIGN.md's grounding
// ledger for the exact constants).
func DefaultConfig() Config {
	return Config{
		IncrementalBeginDestroyEnabled:  true,
		MultithreadedDestructionEnabled: true,
		AllowParallel:                   true,
		NumRetriesBeforeForcingGC:       10,
		AdditionalFinishDestroyTime:     40,
		GarbageReferenceTracking:        0,
		VerifyAssumptionsChance:         0,
		NumWorkers:                      MaxWorkers,
		StallPolicy:                     "continue",
	}
}

// LoadConfig reads a TOML file at path, overlaying it onto DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolvedStallPolicy converts the config's string field to a StallPolicy.
func (c Config) ResolvedStallPolicy() StallPolicy {
	if c.StallPolicy == "abort" {
		return StallAbort
	}
	return StallLogAndContinue
}
