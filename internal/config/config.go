// Package config holds the simulator's fixed topology and tunables, in the
// struct-plus-DefaultConfig shape the rest of this codebase's lineage uses
// for runtime configuration.
package config

import "github.com/repcrec/repcrec/internal/types"

// Config is the simulator's full configuration: the replication topology,
// the driver's tick size, and logging verbosity.
type Config struct {
	Topology TopologyConfig
	Clock    ClockConfig
	Logging  LoggingConfig
}

// TopologyConfig is not meant to vary at runtime; it is still a struct
// (not bare constants) so tests can exercise the engine at a smaller scale
// without touching production defaults.
type TopologyConfig struct {
	SiteNum int
	VarNum  int
}

// ClockConfig controls how the driver advances logical time.
type ClockConfig struct {
	// Tick is the amount of logical time the driver advances after each
	// non-comment, non-blank input line.
	Tick types.Time
}

// LoggingConfig controls the ambient logger's verbosity.
type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

// DefaultConfig returns the standard topology (10 sites, 20 variables), a
// unit tick, and info-level logging.
func DefaultConfig() *Config {
	return &Config{
		Topology: TopologyConfig{
			SiteNum: 10,
			VarNum:  20,
		},
		Clock: ClockConfig{
			Tick: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
