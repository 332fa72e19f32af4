package runner

import (
	"context"
	"path/filepath"
	"time"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
	"github.com/thejerf/suture/v4"

	"github.com/core-tools/hsu-desk/pkg/api"
	"github.com/core-tools/hsu-desk/pkg/control"
	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logcollection"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/metrics"
	"github.com/core-tools/hsu-desk/pkg/outputsink"
	"github.com/core-tools/hsu-desk/pkg/processfile"
	"github.com/core-tools/hsu-desk/pkg/supervisor"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

const appName = "hsu-desk"

// Desk wires the supervisor to its sinks, its control server and its
// background services
type Desk struct {
	config *DeskConfig
	logger logging.Logger

	store      *unitconfig.Store
	book       *outputsink.LogBook
	fileWriter *logcollection.UnitFileWriter
	supervisor *supervisor.Supervisor
	contract   domain.Contract

	server      corecontrol.Server
	httpService *api.HTTPService
	tree        *suture.Supervisor

	cancelTree context.CancelFunc
	treeDone   <-chan error
}

// NewDesk builds every component; nothing is started yet. A malformed units
// file is logged and replaced by the defaults; an unreadable one is fatal.
func NewDesk(config *DeskConfig, coreLogger coreLogging.Logger, structured logcollection.StructuredLogger, logger logging.Logger) (*Desk, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if structured == nil {
		structured = logcollection.NopLogger()
	}

	fileConfig := processfile.GetRecommendedProcessFileConfig("", appName)
	if config.Supervisor.RunDirectory != "" {
		fileConfig.BaseDirectory = config.Supervisor.RunDirectory
		fileConfig.UseSubdirectory = false
	}
	processFiles := processfile.NewProcessFileManager(fileConfig, logger)

	unitsFile := config.Supervisor.UnitsFile
	if unitsFile == "" {
		unitsFile = processfile.DefaultUnitsFilePath()
	}
	store := unitconfig.NewStore(unitsFile, logger)
	definitions, err := store.Load()
	if err != nil {
		if !errors.IsConfigUnreadableError(err) {
			return nil, errors.NewIOError("failed to load units file", err).WithContext("units_file", unitsFile)
		}
		logger.Errorf("Units file is unreadable, running with defaults: %v", err)
	}
	logger.Infof("Loaded %d units from %s", definitions.Len(), unitsFile)

	lc := config.LogCollection
	book := outputsink.NewLogBook(lc.HistoryLines)
	sink := outputsink.OutputSink(book)

	var fileWriter *logcollection.UnitFileWriter
	if lc.Enabled && lc.UnitLogFiles {
		pathFor := processFiles.GenerateUnitLogFilePath
		if lc.LogDirectory != "" {
			pathFor = func(unitName string) string {
				return filepath.Join(lc.LogDirectory, "units", processfile.FileStem(unitName)+".log")
			}
		}
		fileWriter = logcollection.NewUnitFileWriter(pathFor, lc.FlushInterval, structured)
		sink = outputsink.Fanout(book, fileWriter)
	}

	collector := logcollection.NewStreamCollector(*lc, structured)
	collector.SetLineObserver(metrics.RecordLogLine)

	sup, err := supervisor.NewSupervisor(supervisor.Config{
		Definitions:     definitions,
		Store:           store,
		Sink:            sink,
		LogClearer:      book,
		Collector:       collector,
		ProcessFiles:    processFiles,
		GracefulTimeout: config.Supervisor.GracefulTimeout,
	}, logging.WithPrefix(logger, "supervisor , "))
	if err != nil {
		return nil, errors.NewInternalError("failed to create supervisor", err)
	}

	d := &Desk{
		config:     config,
		logger:     logger,
		store:      store,
		book:       book,
		fileWriter: fileWriter,
		supervisor: sup,
		contract:   supervisor.NewHandler(sup, book, logger),
	}

	if config.Supervisor.Port > 0 {
		server, err := corecontrol.NewServer(corecontrol.ServerOptions{Port: config.Supervisor.Port}, coreLogger)
		if err != nil {
			return nil, errors.NewInternalError("failed to create control server", err).WithContext("port", config.Supervisor.Port)
		}

		// Core services answer ping for RetryPing
		coreHandler := coredomain.NewDefaultHandler(coreLogger)
		corecontrol.RegisterGRPCServerHandler(server.GRPC(), coreHandler, coreLogger)

		control.RegisterGRPCServerHandler(server.GRPC(), d.contract, logger)
		d.server = server
	}

	d.tree = suture.New(appName, suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warnf("Supervision tree event: %s", e)
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	if config.Supervisor.HTTPAddress != "-" {
		httpAPI := api.NewAPI(d.contract, book, logging.WithPrefix(logger, "api , "))
		d.httpService = api.NewHTTPService(config.Supervisor.HTTPAddress, httpAPI, 5*time.Second, logger)
		d.tree.Add(d.httpService)
	}
	if fileWriter != nil {
		d.tree.Add(fileWriter)
	}

	return d, nil
}

// Contract is the same surface the control server and the HTTP API expose
func (d *Desk) Contract() domain.Contract {
	return d.contract
}

// Supervisor gives direct access to the unit runtime
func (d *Desk) Supervisor() *supervisor.Supervisor {
	return d.supervisor
}

// HTTPService is nil when the HTTP API is disabled
func (d *Desk) HTTPService() *api.HTTPService {
	return d.httpService
}

// Start brings up the control server and the background services
func (d *Desk) Start(ctx context.Context) {
	d.logger.Infof("Starting desk...")

	if d.server != nil {
		d.server.Start(ctx)
	}

	treeCtx, cancel := context.WithCancel(context.Background())
	d.cancelTree = cancel
	d.treeDone = d.tree.ServeBackground(treeCtx)

	d.logger.Infof("Desk started")
}

// Autostart starts the named units in order; one failing unit does not stop
// the rest
func (d *Desk) Autostart(ctx context.Context, names []string) {
	for _, name := range names {
		if err := d.supervisor.Start(ctx, name, unitconfig.Overrides{}); err != nil {
			d.logger.Errorf("Failed to autostart unit %s: %v", name, err)
			continue
		}
		d.logger.Infof("Autostarted unit: %s", name)
	}
}

// Stop stops every unit, then the servers. All of it is bounded by the force
// shutdown timeout.
func (d *Desk) Stop(ctx context.Context) {
	d.logger.Infof("Stopping desk...")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, d.config.Supervisor.ForceShutdownTimeout)
	defer cancel()

	if err := d.supervisor.Close(ctx); err != nil {
		d.logger.Errorf("Some units did not stop cleanly: %v", err)
	}

	if d.server != nil {
		d.server.Shutdown(ctx)
	}

	if d.cancelTree != nil {
		d.cancelTree()
		select {
		case err := <-d.treeDone:
			d.logger.Debugf("Supervision tree stopped: %v", err)
		case <-ctx.Done():
			d.logger.Warnf("Supervision tree did not stop in time")
		}
	}

	d.logger.Infof("Desk stopped")
}
