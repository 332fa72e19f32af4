package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-desk/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		check      func(t *testing.T, config *DeskConfig)
	}{
		{
			name:       "empty file gets every default",
			configYAML: "",
			check: func(t *testing.T, config *DeskConfig) {
				assert.Equal(t, DefaultPort, config.Supervisor.Port)
				assert.Equal(t, DefaultHTTPAddress, config.Supervisor.HTTPAddress)
				assert.Equal(t, "info", config.Supervisor.LogLevel)
				assert.Equal(t, DefaultGracefulTimeout, config.Supervisor.GracefulTimeout)
				assert.Equal(t, DefaultForceShutdownTimeout, config.Supervisor.ForceShutdownTimeout)
				require.NotNil(t, config.LogCollection)
				assert.True(t, config.LogCollection.Enabled)
				assert.Equal(t, 2000, config.LogCollection.HistoryLines)
			},
		},
		{
			name: "explicit values are kept",
			configYAML: `
supervisor:
  port: 51000
  http_address: 127.0.0.1:51001
  log_level: debug
  units_file: /tmp/units.json
  graceful_timeout: 3s
  force_shutdown_timeout: 1m
  autostart: ["Worker", "Cron Task"]
log_collection:
  enabled: true
  history_lines: 50
  unit_log_files: false
`,
			check: func(t *testing.T, config *DeskConfig) {
				assert.Equal(t, 51000, config.Supervisor.Port)
				assert.Equal(t, "127.0.0.1:51001", config.Supervisor.HTTPAddress)
				assert.Equal(t, "debug", config.Supervisor.LogLevel)
				assert.Equal(t, "/tmp/units.json", config.Supervisor.UnitsFile)
				assert.Equal(t, 3*time.Second, config.Supervisor.GracefulTimeout)
				assert.Equal(t, time.Minute, config.Supervisor.ForceShutdownTimeout)
				assert.Equal(t, []string{"Worker", "Cron Task"}, config.Supervisor.Autostart)
				assert.Equal(t, 50, config.LogCollection.HistoryLines)
				assert.False(t, config.LogCollection.UnitLogFiles)
				assert.Equal(t, 1024*1024, config.LogCollection.MaxLineBytes)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfigFromFile(writeConfig(t, tt.configYAML))
			require.NoError(t, err)
			require.NoError(t, ValidateConfig(config))
			tt.check(t, config)
		})
	}
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsIOError(err))

	_, err = LoadConfigFromFile(writeConfig(t, "supervisor: [unclosed"))
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(config *DeskConfig)
		valid  bool
	}{
		{"defaults", func(*DeskConfig) {}, true},
		{"disabled servers", func(c *DeskConfig) { c.Supervisor.Port = -1; c.Supervisor.HTTPAddress = "-" }, true},
		{"port out of range", func(c *DeskConfig) { c.Supervisor.Port = 70000 }, false},
		{"bad http address", func(c *DeskConfig) { c.Supervisor.HTTPAddress = "localhost" }, false},
		{"bad log level", func(c *DeskConfig) { c.Supervisor.LogLevel = "chatty" }, false},
		{"negative timeout", func(c *DeskConfig) { c.Supervisor.GracefulTimeout = -time.Second }, false},
		{"duplicate autostart", func(c *DeskConfig) { c.Supervisor.Autostart = []string{"Worker", "Worker"} }, false},
		{"empty autostart name", func(c *DeskConfig) { c.Supervisor.Autostart = []string{""} }, false},
		{"bad history size", func(c *DeskConfig) { c.LogCollection.HistoryLines = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := ValidateConfig(config)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsValidationError(err), "got %v", err)
			}
		})
	}

	assert.Error(t, ValidateConfig(nil))
}

func TestValidateConfigFile(t *testing.T) {
	assert.NoError(t, ValidateConfigFile(writeConfig(t, "supervisor:\n  port: 50070\n")))
	assert.Error(t, ValidateConfigFile(writeConfig(t, "supervisor:\n  log_level: loud\n")))
}
