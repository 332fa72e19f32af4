package runner

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logcollection"
	"github.com/core-tools/hsu-desk/pkg/logging"
)

// Run loads the settings, runs the desk until a signal arrives or the run
// duration elapses, then stops every unit
func Run(runDuration int, configFile string, coreLogger coreLogging.Logger, structured logcollection.StructuredLogger, logger logging.Logger) error {
	logger.Infof("Desk runner starting...")

	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var config *DeskConfig
	if configFile != "" {
		logger.Infof("Using CONFIGURATION FILE: %s", configFile)
		var err error
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return err
		}
	} else {
		logger.Infof("No configuration file, using defaults")
		config = DefaultConfig()
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	LogSummary(config, logger)

	if leveled, ok := structured.(interface{ SetLevel(logcollection.LogLevel) }); ok {
		leveled.SetLevel(logcollection.ParseLogLevel(config.Supervisor.LogLevel))
	}

	desk, err := NewDesk(config, coreLogger, structured, logger)
	if err != nil {
		return err
	}

	desk.Start(ctx)

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	logger.Infof("Desk is ready, starting autostart units...")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		desk.Autostart(ctx, config.Supervisor.Autostart)
		logger.Infof("Desk is fully operational")
	}()

	select {
	case receivedSignal := <-sig:
		logger.Infof("Desk runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Desk runner timed out")
	}

	logger.Infof("Waiting for autostart to finish...")
	wg.Wait()

	// Reset context to background so units get their graceful timeout
	desk.Stop(context.Background())

	logger.Infof("Desk runner stopped")

	return nil
}
