package config

import (
	"fmt"
	"time"
)

// LogCollectionConfig controls what happens to the lines units write
type LogCollectionConfig struct {
	Enabled bool `yaml:"enabled"`

	// HistoryLines is how many records are kept in memory per unit
	HistoryLines int `yaml:"history_lines"`

	// UnitLogFiles mirrors every unit record into <log dir>/units/<unit>.log
	UnitLogFiles bool `yaml:"unit_log_files"`

	// LogDirectory overrides the OS default log directory
	LogDirectory string `yaml:"log_directory,omitempty"`

	// MaxLineBytes caps a single line read from a unit; longer lines are split
	MaxLineBytes int `yaml:"max_line_bytes"`

	// FlushInterval is how often buffered log files are flushed to disk
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Validate checks if the configuration is valid
func (c *LogCollectionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.HistoryLines <= 0 {
		return fmt.Errorf("history_lines must be positive")
	}
	if c.MaxLineBytes < 1024 {
		return fmt.Errorf("max_line_bytes must be at least 1024")
	}
	if c.UnitLogFiles && c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive when unit_log_files is enabled")
	}
	return nil
}

// DefaultLogCollectionConfig returns the default configuration
func DefaultLogCollectionConfig() LogCollectionConfig {
	return LogCollectionConfig{
		Enabled:       true,
		HistoryLines:  2000,
		UnitLogFiles:  true,
		MaxLineBytes:  1024 * 1024,
		FlushInterval: 2 * time.Second,
	}
}
