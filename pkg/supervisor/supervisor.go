package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/core-tools/hsu-desk/pkg/cron"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logcollection"
	logconfig "github.com/core-tools/hsu-desk/pkg/logcollection/config"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/metrics"
	"github.com/core-tools/hsu-desk/pkg/outputsink"
	"github.com/core-tools/hsu-desk/pkg/process"
	"github.com/core-tools/hsu-desk/pkg/processfile"
	"github.com/core-tools/hsu-desk/pkg/processstate"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

const (
	DefaultGracefulTimeout = 10 * time.Second

	// Time the output reader gets to drain after the process exited. A
	// grandchild that inherited the pipe would otherwise keep it open.
	outputDrainTimeout = 2 * time.Second
)

// terminateProcess is replaced in tests to simulate a process that outlives a stop
var terminateProcess = process.Terminate

// LogClearer drops the accumulated log of a unit
type LogClearer interface {
	Clear(unitName string)
}

type Config struct {
	Definitions *unitconfig.Definitions
	// Store persists definitions on start; nil disables persistence
	Store *unitconfig.Store
	Sink  outputsink.OutputSink
	// LogClearer serves ClearLog; usually the same LogBook as Sink
	LogClearer   LogClearer
	Collector    *logcollection.StreamCollector
	ProcessFiles *processfile.ProcessFileManager

	GracefulTimeout time.Duration
	HTTPClient      *http.Client
	Clock           func() time.Time
}

// Supervisor owns the runtime of every unit and serves start, stop, restart
// and log requests for them. Per-unit failures are written to the unit's
// sink and returned as typed errors; they never affect other units.
type Supervisor struct {
	config    Config
	emitter   *outputsink.Emitter
	collector *logcollection.StreamCollector
	logger    logging.Logger

	defsMutex   sync.RWMutex
	definitions *unitconfig.Definitions

	mutex sync.RWMutex
	units map[string]*unitRuntime

	// Base context of cron pollers; a request context ends with its request
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSupervisor(config Config, logger logging.Logger) (*Supervisor, error) {
	if config.Definitions == nil {
		return nil, errors.NewValidationError("definitions are required", nil)
	}
	if config.Sink == nil {
		config.Sink = outputsink.Discard
	}
	if config.GracefulTimeout <= 0 {
		config.GracefulTimeout = DefaultGracefulTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = cron.NewHTTPClient()
	}

	collector := config.Collector
	if collector == nil {
		collector = logcollection.NewStreamCollector(logconfig.DefaultLogCollectionConfig(), logcollection.NopLogger())
		collector.SetLineObserver(metrics.RecordLogLine)
	}

	emitter := outputsink.NewEmitter(config.Sink)
	if config.Clock != nil {
		emitter = emitter.WithClock(config.Clock)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		config:      config,
		emitter:     emitter,
		collector:   collector,
		logger:      logger,
		definitions: config.Definitions,
		units:       make(map[string]*unitRuntime),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, name := range config.Definitions.Names() {
		s.units[name] = newUnitRuntime(name)
	}

	s.reportLeftovers()

	logger.Infof("Supervisor created, units: %d", len(s.units))
	return s, nil
}

// Start launches the unit, first merging overrides into its definition and
// persisting the whole definition set.
func (s *Supervisor) Start(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	rt, err := s.runtime(name)
	if err != nil {
		return err
	}

	rt.opMutex.Lock()
	defer rt.opMutex.Unlock()

	return s.startLocked(ctx, rt, overrides)
}

// Stop ends the unit and waits until its process is gone
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	rt, err := s.runtime(name)
	if err != nil {
		return err
	}

	rt.opMutex.Lock()
	defer rt.opMutex.Unlock()

	return s.stopLocked(ctx, rt, s.emitFor(name))
}

// Restart stops the unit if it runs and starts it again. Nothing else can
// start or stop the unit in between.
func (s *Supervisor) Restart(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	rt, err := s.runtime(name)
	if err != nil {
		return err
	}

	rt.opMutex.Lock()
	defer rt.opMutex.Unlock()

	if err := s.stopLocked(ctx, rt, s.emitFor(name)); err != nil && !errors.IsNotRunningError(err) {
		return err
	}
	return s.startLocked(ctx, rt, overrides)
}

// StopAll stops every running unit concurrently without writing to the sink
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.logger.Infof("Stopping all units...")

	var g errgroup.Group
	var collectionMutex sync.Mutex
	collection := errors.NewErrorCollection()

	for _, rt := range s.runtimes() {
		if !rt.isRunning() {
			continue
		}
		rt := rt
		g.Go(func() error {
			rt.opMutex.Lock()
			defer rt.opMutex.Unlock()

			err := s.stopLocked(ctx, rt, func(string) {})
			if err != nil && !errors.IsNotRunningError(err) {
				s.logger.Errorf("Failed to stop unit %s: %v", rt.name, err)
				collectionMutex.Lock()
				collection.Add(err)
				collectionMutex.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Infof("All units stopped")
	return collection.ToError()
}

// Close stops every unit and releases the supervisor
func (s *Supervisor) Close(ctx context.Context) error {
	err := s.StopAll(ctx)
	s.cancel()
	return err
}

// ClearLog drops the accumulated log of the unit; its state is untouched
func (s *Supervisor) ClearLog(name string) error {
	if _, err := s.runtime(name); err != nil {
		return err
	}
	if s.config.LogClearer != nil {
		s.config.LogClearer.Clear(name)
	}
	s.logger.Debugf("Log cleared, unit: %s", name)
	return nil
}

// Status returns a snapshot of every unit sorted by name
func (s *Supervisor) Status() []UnitStatus {
	runtimes := s.runtimes()
	result := make([]UnitStatus, 0, len(runtimes))
	for _, rt := range runtimes {
		def, _ := s.definition(rt.name)
		result = append(result, rt.snapshot(def))
	}
	return result
}

func (s *Supervisor) UnitStatus(name string) (UnitStatus, error) {
	rt, err := s.runtime(name)
	if err != nil {
		return UnitStatus{}, err
	}
	def, _ := s.definition(name)
	return rt.snapshot(def), nil
}

// Definitions returns the current definition set
func (s *Supervisor) Definitions() *unitconfig.Definitions {
	s.defsMutex.RLock()
	defer s.defsMutex.RUnlock()
	return s.definitions
}

func (s *Supervisor) startLocked(ctx context.Context, rt *unitRuntime, overrides unitconfig.Overrides) error {
	name := rt.name
	logger := s.unitLogger(name)

	if rt.isRunning() {
		s.emitter.Emit(name, "Service is already running.")
		return errors.NewAlreadyRunningError("unit is already running", nil).WithContext("unit", name)
	}

	def, _ := s.definition(name)
	merged, err := overrides.Apply(def)
	if err != nil {
		s.emitter.Emitf(name, "Error starting service: %v", err)
		return err
	}
	if err := s.persist(merged); err != nil {
		logger.Errorf("Failed to save unit definitions: %v", err)
		s.emitter.Emitf(name, "Error saving configuration: %v", err)
	}

	s.emitter.Emitf(name, "Starting %s...", name)

	runID := uuid.NewString()
	if merged.IsCron() {
		err = s.launchCron(rt, merged, runID, logger)
	} else {
		err = s.launchProcess(rt, merged, runID, logger)
	}
	if err != nil {
		metrics.RecordSpawnFailure(name)
		logger.Errorf("Failed to start: %v", err)
		s.emitter.Emitf(name, "Error starting service: %v", err)
		return err
	}

	metrics.RecordStart(name)
	logger.Infof("Started, run: %s", runID)
	return nil
}

func (s *Supervisor) launchCron(rt *unitRuntime, def unitconfig.UnitDefinition, runID string, logger logging.Logger) error {
	name := rt.name
	poller := cron.NewPoller(cron.Config{
		URL:      def.URL,
		Interval: time.Duration(def.IntervalSeconds) * time.Second,
		Client:   s.config.HTTPClient,
	}, name, s.emitFor(name), logger)
	poller.SetObserver(func(statusCode int, duration time.Duration) {
		metrics.RecordPoll(name, statusCode, duration)
	})

	rt.mutex.Lock()
	rt.state = UnitStateRunning
	rt.poller = poller
	rt.child = nil
	rt.stopping = false
	rt.runID = runID
	rt.startedAt = time.Now()
	rt.lastExit = ""
	rt.mutex.Unlock()

	s.emitter.Emit(name, "Service started")

	if err := poller.Start(s.ctx); err != nil {
		rt.mutex.Lock()
		rt.state = UnitStateStopped
		rt.poller = nil
		rt.mutex.Unlock()
		return err
	}
	return nil
}

func (s *Supervisor) launchProcess(rt *unitRuntime, def unitconfig.UnitDefinition, runID string, logger logging.Logger) error {
	name := rt.name
	child, err := process.Spawn(process.ExecutionConfig{
		Command:          def.CommandLine,
		WorkingDirectory: def.WorkingDirectory,
	}, name, logger)
	if err != nil {
		return err
	}

	exited := make(chan struct{})

	rt.mutex.Lock()
	rt.state = UnitStateRunning
	rt.child = child
	rt.poller = nil
	rt.exited = exited
	rt.stopping = false
	rt.runID = runID
	rt.startedAt = time.Now()
	rt.lastExit = ""
	rt.mutex.Unlock()

	if s.config.ProcessFiles != nil {
		if err := s.config.ProcessFiles.WritePIDFile(name, child.Pid()); err != nil {
			logger.Warnf("Failed to write PID file: %v", err)
		}
	}

	s.emitter.Emit(name, "Service started")

	readerDone := s.collector.Collect(name, child.Output, func(line string) {
		s.emitter.Emit(name, line)
	})
	go s.watch(rt, child, readerDone, exited, runID, logger)
	return nil
}

// watch waits for the process to exit and reconciles the unit state. An exit
// nobody asked for leaves the unit Exited.
func (s *Supervisor) watch(rt *unitRuntime, child *process.Child, readerDone <-chan struct{}, exited chan struct{}, runID string, logger logging.Logger) {
	exitCode, waitErr := child.Wait()

	timer := time.NewTimer(outputDrainTimeout)
	select {
	case <-readerDone:
	case <-timer.C:
		logger.Warnf("Output still open after exit, closing it")
	}
	timer.Stop()
	child.CloseOutput()
	<-readerDone

	reason := fmt.Sprintf("exit code %d", exitCode)
	if waitErr != nil {
		reason = waitErr.Error()
	}

	rt.mutex.Lock()
	expected := rt.stopping
	current := rt.runID == runID
	if current {
		if expected {
			rt.state = UnitStateStopped
		} else {
			rt.state = UnitStateExited
		}
		rt.child = nil
		rt.stoppedAt = time.Now()
		rt.lastExit = reason
	}
	rt.mutex.Unlock()
	close(exited)

	if current && s.config.ProcessFiles != nil {
		if err := s.config.ProcessFiles.RemovePIDFile(rt.name); err != nil {
			logger.Warnf("Failed to remove PID file: %v", err)
		}
	}

	if expected {
		logger.Debugf("Process exited after stop, %s", reason)
		return
	}
	metrics.RecordExit(rt.name)
	logger.Warnf("Process exited unexpectedly, %s", reason)
	s.emitter.Emitf(rt.name, "Service exited: %s", reason)
}

func (s *Supervisor) stopLocked(ctx context.Context, rt *unitRuntime, emit func(string)) error {
	name := rt.name
	logger := s.unitLogger(name)

	rt.mutex.Lock()
	if rt.state != UnitStateRunning {
		rt.mutex.Unlock()
		emit("Service is not running.")
		return errors.NewNotRunningError("unit is not running", nil).WithContext("unit", name)
	}
	rt.stopping = true
	child, poller, exited := rt.child, rt.poller, rt.exited
	rt.mutex.Unlock()

	emit(fmt.Sprintf("Stopping %s...", name))

	var stopErr error
	if poller != nil {
		poller.Stop()
	} else if child != nil {
		stopErr = s.terminate(ctx, name, child.Pid(), exited, logger)
	}

	rt.mutex.Lock()
	if stopErr != nil && child != nil && rt.child == child {
		// The exit watcher has not seen the process go away, so it still runs
		rt.stopping = false
		rt.mutex.Unlock()
		logger.Errorf("Stop failed, process still running: %v", stopErr)
		emit(fmt.Sprintf("Error stopping service: %v", stopErr))
		return stopErr
	}
	rt.state = UnitStateStopped
	rt.poller = nil
	rt.stoppedAt = time.Now()
	rt.mutex.Unlock()

	metrics.RecordStop(name)
	if stopErr != nil {
		logger.Errorf("Stop did not complete cleanly: %v", stopErr)
	} else {
		logger.Infof("Stopped")
	}
	emit("Service stopped")
	return stopErr
}

func (s *Supervisor) terminate(ctx context.Context, name string, pid int, exited <-chan struct{}, logger logging.Logger) error {
	def, _ := s.definition(name)
	if def.KillImage == "" {
		return terminateProcess(ctx, pid, exited, s.config.GracefulTimeout, logger)
	}

	killed, err := process.KillByImageName(ctx, def.KillImage, logger)
	if err != nil {
		logger.Warnf("Kill by image %s failed: %v", def.KillImage, err)
	} else if !killed {
		logger.Debugf("No process with image %s was running", def.KillImage)
	}

	timer := time.NewTimer(s.config.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	// The spawned child itself may carry another image name
	return terminateProcess(ctx, pid, exited, 0, logger)
}

// persist stores def in the definition set and saves the set. The in-memory
// set is updated even when saving fails.
func (s *Supervisor) persist(def unitconfig.UnitDefinition) error {
	s.defsMutex.Lock()
	defer s.defsMutex.Unlock()

	updated, err := s.definitions.With(def)
	if err != nil {
		return err
	}
	s.definitions = updated

	if s.config.Store == nil {
		return nil
	}
	return s.config.Store.Save(updated)
}

// reportLeftovers warns about processes recorded by an earlier run that are still alive
func (s *Supervisor) reportLeftovers() {
	if s.config.ProcessFiles == nil {
		return
	}
	for _, def := range s.definitions.All() {
		if def.IsCron() {
			continue
		}
		pid, err := s.config.ProcessFiles.ReadPIDFile(def.Name)
		if err != nil {
			if !errors.IsNotFoundError(err) {
				s.logger.Warnf("Unreadable PID file of %s: %v", def.Name, err)
			}
			continue
		}
		running, err := processstate.IsProcessRunning(pid)
		if err == nil && running {
			s.logger.Warnf("Process of %s from a previous run is still alive, pid: %d", def.Name, pid)
			s.emitter.Emitf(def.Name, "Process %d from a previous run is still running", pid)
		}
		if err := s.config.ProcessFiles.RemovePIDFile(def.Name); err != nil {
			s.logger.Warnf("Failed to remove stale PID file of %s: %v", def.Name, err)
		}
	}
}

func (s *Supervisor) runtime(name string) (*unitRuntime, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rt, ok := s.units[name]
	if !ok {
		return nil, errors.NewNotFoundError("unit not found", nil).WithContext("unit", name)
	}
	return rt, nil
}

func (s *Supervisor) runtimes() []*unitRuntime {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	result := make([]*unitRuntime, 0, len(s.units))
	for _, rt := range s.units {
		result = append(result, rt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

func (s *Supervisor) definition(name string) (unitconfig.UnitDefinition, bool) {
	s.defsMutex.RLock()
	defer s.defsMutex.RUnlock()
	return s.definitions.Get(name)
}

func (s *Supervisor) emitFor(name string) func(string) {
	return func(text string) {
		s.emitter.Emit(name, text)
	}
}

func (s *Supervisor) unitLogger(name string) logging.Logger {
	return logging.WithPrefix(s.logger, logging.UnitPrefix(name))
}
