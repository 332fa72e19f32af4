package runner

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-desk/pkg/errors"
	logconfig "github.com/core-tools/hsu-desk/pkg/logcollection/config"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

const (
	DefaultPort                 = 50066
	DefaultHTTPAddress          = "127.0.0.1:50067"
	DefaultGracefulTimeout      = 10 * time.Second
	DefaultForceShutdownTimeout = 30 * time.Second
)

// DeskConfig represents the top-level daemon settings file structure
type DeskConfig struct {
	Supervisor    SupervisorConfigOptions        `yaml:"supervisor"`
	LogCollection *logconfig.LogCollectionConfig `yaml:"log_collection,omitempty"`
}

// SupervisorConfigOptions represents supervisor-level settings
type SupervisorConfigOptions struct {
	Port                 int           `yaml:"port"`                   // gRPC control port; negative disables it
	HTTPAddress          string        `yaml:"http_address,omitempty"` // REST and websocket API; "-" disables it
	LogLevel             string        `yaml:"log_level,omitempty"`
	UnitsFile            string        `yaml:"units_file,omitempty"`
	RunDirectory         string        `yaml:"run_directory,omitempty"` // PID files; empty uses the per-user default
	GracefulTimeout      time.Duration `yaml:"graceful_timeout,omitempty"`
	ForceShutdownTimeout time.Duration `yaml:"force_shutdown_timeout,omitempty"`
	Autostart            []string      `yaml:"autostart,omitempty"`
}

// DefaultConfig is used when no settings file is given
func DefaultConfig() *DeskConfig {
	config := &DeskConfig{}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads daemon settings from a YAML file
func LoadConfigFromFile(filename string) (*DeskConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config DeskConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	setConfigDefaults(&config)

	return &config, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *DeskConfig) {
	if config.Supervisor.Port == 0 {
		config.Supervisor.Port = DefaultPort
	}
	if config.Supervisor.HTTPAddress == "" {
		config.Supervisor.HTTPAddress = DefaultHTTPAddress
	}
	if config.Supervisor.LogLevel == "" {
		config.Supervisor.LogLevel = "info"
	}
	if config.Supervisor.GracefulTimeout == 0 {
		config.Supervisor.GracefulTimeout = DefaultGracefulTimeout
	}
	if config.Supervisor.ForceShutdownTimeout == 0 {
		config.Supervisor.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}

	if config.LogCollection == nil {
		defaults := logconfig.DefaultLogCollectionConfig()
		config.LogCollection = &defaults
		return
	}

	defaults := logconfig.DefaultLogCollectionConfig()
	if config.LogCollection.HistoryLines == 0 {
		config.LogCollection.HistoryLines = defaults.HistoryLines
	}
	if config.LogCollection.MaxLineBytes == 0 {
		config.LogCollection.MaxLineBytes = defaults.MaxLineBytes
	}
	if config.LogCollection.FlushInterval == 0 {
		config.LogCollection.FlushInterval = defaults.FlushInterval
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *DeskConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateSupervisorConfig(&config.Supervisor); err != nil {
		return errors.NewValidationError("invalid supervisor configuration", err)
	}

	if config.LogCollection != nil {
		if err := config.LogCollection.Validate(); err != nil {
			return errors.NewValidationError("invalid log collection configuration", err)
		}
	}

	return nil
}

func validateSupervisorConfig(options *SupervisorConfigOptions) error {
	if options.Port > 65535 {
		return errors.NewValidationError(fmt.Sprintf("port out of range: %d", options.Port), nil)
	}

	if options.HTTPAddress != "-" {
		if _, _, err := net.SplitHostPort(options.HTTPAddress); err != nil {
			return errors.NewValidationError("invalid http_address", err).WithContext("http_address", options.HTTPAddress)
		}
	}

	switch options.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewValidationError("invalid log_level", nil).WithContext("log_level", options.LogLevel)
	}

	if options.GracefulTimeout < 0 || options.ForceShutdownTimeout < 0 {
		return errors.NewValidationError("timeouts cannot be negative", nil)
	}

	seen := make(map[string]bool, len(options.Autostart))
	for _, name := range options.Autostart {
		if name == "" {
			return errors.NewValidationError("autostart contains an empty unit name", nil)
		}
		if seen[name] {
			return errors.NewValidationError("autostart lists a unit twice", nil).WithContext("unit", name)
		}
		seen[name] = true
	}

	return nil
}

// ValidateConfigFile validates a configuration file without running anything
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return err
	}
	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return nil
}

// LogSummary writes the effective settings to the daemon log
func LogSummary(config *DeskConfig, logger logging.Logger) {
	logger.Infof("Control port: %d, HTTP address: %s, log level: %s",
		config.Supervisor.Port, config.Supervisor.HTTPAddress, config.Supervisor.LogLevel)
	logger.Infof("Graceful timeout: %v, force shutdown timeout: %v, autostart: %v",
		config.Supervisor.GracefulTimeout, config.Supervisor.ForceShutdownTimeout, config.Supervisor.Autostart)
	if lc := config.LogCollection; lc != nil {
		logger.Infof("Log collection, enabled: %t, history lines: %d, unit log files: %t",
			lc.Enabled, lc.HistoryLines, lc.UnitLogFiles)
	}
}
